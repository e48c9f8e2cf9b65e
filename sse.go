package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wordrace/internal/game"
	"wordrace/internal/store"
)

// roomStreamHandler is the long-lived viewer connection: an SSE stream
// of full room snapshots. Updates arrive two ways — pushed via the
// room's pub/sub channel the moment a write commits, and polled from
// the store on an interval as the correctness backstop. Both paths send
// the complete snapshot, so a missed push heals on the next delivery.
func (app *App) roomStreamHandler(c *gin.Context) {
	ctx := c.Request.Context()
	roomCode := c.Query("roomCode")
	playerID := c.Query("playerId")
	if roomCode == "" || playerID == "" {
		badRequest(c, ErrorMissingRoomCode)
		return
	}

	// A viewer must already be associated with the room. The player
	// mapping may have expired while the room is still alive, so fall
	// back to the room's member list.
	if mapped, err := app.Store.PlayerRoom(ctx, playerID); err != nil || mapped != roomCode {
		room, _, err := app.Store.LoadRoom(ctx, roomCode)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found.", "kind": KindNotFound})
			return
		}
		if err != nil {
			app.renderError(c, err)
			return
		}
		if !room.HasPlayer(playerID) {
			c.JSON(http.StatusForbidden, gin.H{"error": game.ErrPlayerNotInRoom.Error(), "kind": KindForbidden})
			return
		}
	}

	setStreamHeaders(c)
	logInfo("%sSSE room stream opened: room=%s player=%s", reqPrefix(ctx), roomCode, playerID)

	sub := app.Store.SubscribeRoomUpdates(ctx, roomCode)
	defer sub.Close()

	// sendSnapshot loads, derives, and writes one frame. Returns false
	// once the room has expired and the close event has been sent.
	sendSnapshot := func() bool {
		room, _, err := app.Store.LoadRoom(ctx, roomCode)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprint(c.Writer, "event: close\ndata: {\"message\":\"Room no longer exists\"}\n\n")
			c.Writer.Flush()
			return false
		}
		if err != nil {
			logWarn("SSE room %s load failed: %v", roomCode, err)
			return true
		}
		now := time.Now()
		if room.Status == game.StatusCountdown && room.RemainingCountdown(now) == 0 {
			// Persist the elapsed countdown. Racing another viewer here is
			// harmless: the write is idempotent.
			if updated, _, err := app.Coord.Apply(ctx, roomCode, game.BeginPlay{}); err == nil {
				room = updated
			}
		}
		payload, err := json.Marshal(game.Snapshot(room, now))
		if err != nil {
			logWarn("SSE room %s marshal failed: %v", roomCode, err)
			return true
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
		return true
	}

	if !sendSnapshot() {
		return
	}

	poll := time.NewTicker(app.SSEUpdateInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(app.SSEHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logInfo("SSE room stream closed: room=%s player=%s", roomCode, playerID)
			return
		case <-sub.Channel():
			// The payload itself is ignored; re-reading the store keeps a
			// single code path and re-derives time-sensitive fields.
			if !sendSnapshot() {
				return
			}
		case <-poll.C:
			if !sendSnapshot() {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

// playerCountStreamHandler streams the live player count.
func (app *App) playerCountStreamHandler(c *gin.Context) {
	ctx := c.Request.Context()
	setStreamHeaders(c)

	sendCount := func() {
		count, err := app.Store.SessionCount(ctx)
		if err != nil {
			logWarn("SSE player count failed: %v", err)
			return
		}
		fmt.Fprintf(c.Writer, "data: {\"playerCount\":%d,\"timestamp\":%d}\n\n", count, time.Now().UnixMilli())
		c.Writer.Flush()
	}

	sendCount()
	update := time.NewTicker(app.SSECountInterval)
	defer update.Stop()
	heartbeat := time.NewTicker(app.SSEHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-update.C:
			sendCount()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

func setStreamHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}
