package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"wordrace/internal/coordinator"
	"wordrace/internal/game"
	"wordrace/internal/store"
)

// createRoomHandler opens a new room for its first player. With
// random=true the player is matched against the waiting queue instead
// (joining the oldest open random room, or opening one and waiting).
func (app *App) createRoomHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PlayerID == "" {
		badRequest(c, ErrorMissingPlayerID)
		return
	}

	var (
		room *game.Room
		err  error
	)
	if req.Random {
		room, err = app.Coord.JoinRandom(ctx, req.PlayerID, req.Nickname)
	} else {
		room, err = app.Coord.Create(ctx, req.PlayerID, req.Nickname, game.RoomCustom)
	}
	if err != nil {
		app.renderError(c, err)
		return
	}

	logInfo("%sPlayer %s entered room %s (type=%s, players=%d)",
		reqPrefix(ctx), req.PlayerID, room.Code, room.Type, len(room.Players))
	c.JSON(http.StatusOK, gin.H{
		"roomCode": room.Code,
		"room":     game.Snapshot(room, time.Now()),
		"message":  "Room created successfully",
	})
}

// joinRoomHandler admits a second player to a room by code.
func (app *App) joinRoomHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomCode == "" || req.PlayerID == "" {
		badRequest(c, ErrorMissingRoomCode)
		return
	}

	room, _, err := app.Coord.Apply(ctx, req.RoomCode, game.Join{PlayerID: req.PlayerID, Nickname: req.Nickname})
	if err != nil {
		app.renderError(c, err)
		return
	}

	logInfo("%sPlayer %s joined room %s (players=%d)", reqPrefix(ctx), req.PlayerID, room.Code, len(room.Players))
	c.JSON(http.StatusOK, gin.H{
		"roomCode": room.Code,
		"room":     game.Snapshot(room, time.Now()),
		"message":  "Joined room successfully",
	})
}

// roomInfoHandler returns the current snapshot, with the remaining
// countdown computed at read time, to a member of the room.
func (app *App) roomInfoHandler(c *gin.Context) {
	ctx := c.Request.Context()
	roomCode := c.Query("roomCode")
	playerID := c.Query("playerId")
	if roomCode == "" || playerID == "" {
		badRequest(c, ErrorMissingRoomCode)
		return
	}

	room, _, err := app.Store.LoadRoom(ctx, roomCode)
	if err != nil {
		app.renderError(c, err)
		return
	}
	if !room.HasPlayer(playerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": game.ErrPlayerNotInRoom.Error(), "kind": KindNotInRoom})
		return
	}

	now := time.Now()
	if room.Status == game.StatusCountdown && room.RemainingCountdown(now) == 0 {
		// Persist the observed transition; losing this race is fine, the
		// winner writes the same thing.
		if updated, _, err := app.Coord.Apply(ctx, roomCode, game.BeginPlay{}); err == nil {
			room = updated
		}
	}
	c.JSON(http.StatusOK, game.Snapshot(room, now))
}

// readyHandler marks a player ready; the countdown starts once every
// seat is filled and ready.
func (app *App) readyHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var req roomActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomCode == "" || req.PlayerID == "" {
		badRequest(c, ErrorMissingRoomCode)
		return
	}

	room, _, err := app.Coord.Apply(ctx, req.RoomCode, game.MarkReady{PlayerID: req.PlayerID})
	if err != nil {
		app.renderError(c, err)
		return
	}

	message := "Player marked as ready"
	if room.Status == game.StatusCountdown {
		message = "All players ready, countdown started!"
	}
	logInfo("%sPlayer %s ready in room %s (status=%s)", reqPrefix(ctx), req.PlayerID, room.Code, room.Status)
	c.JSON(http.StatusOK, gin.H{
		"roomCode": room.Code,
		"room":     game.Snapshot(room, time.Now()),
		"message":  message,
	})
}

// guessHandler resolves a whole-word attempt. Exactly one of two racing
// correct guesses for the same word index is credited; the loser gets an
// already_advanced envelope with the post-advance index.
func (app *App) guessHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var req guessRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomCode == "" || req.PlayerID == "" ||
		req.Success == nil || req.ExpectedWordIndex == nil {
		badRequest(c, ErrorMissingSuccess)
		return
	}

	room, _, err := app.Coord.Apply(ctx, req.RoomCode, game.SubmitGuess{
		PlayerID:          req.PlayerID,
		Success:           *req.Success,
		Solution:          req.Solution,
		ExpectedWordIndex: *req.ExpectedWordIndex,
	})
	if err != nil {
		app.renderError(c, err)
		return
	}

	logInfo("%sPlayer %s guess in room %s: success=%t index=%d gameOver=%t",
		reqPrefix(ctx), req.PlayerID, room.Code, *req.Success, room.CurrentWordIndex, room.GameOver)
	c.JSON(http.StatusOK, gin.H{
		"roomCode":         room.Code,
		"currentWordIndex": room.CurrentWordIndex,
		"scores":           room.Scores,
		"gameOver":         room.GameOver,
		"winner":           nullableWinner(room),
		"solution":         req.Solution,
		"message":          "Word advanced successfully",
	})
}

// scoreHandler applies an additive partial-credit adjustment, used for
// per-letter scoring independent of word advancement.
func (app *App) scoreHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomCode == "" || req.PlayerID == "" || req.Points == nil {
		badRequest(c, ErrorMissingPoints)
		return
	}

	room, _, err := app.Coord.Apply(ctx, req.RoomCode, game.AdjustScore{PlayerID: req.PlayerID, Points: *req.Points})
	if err != nil {
		app.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomCode": room.Code,
		"playerId": req.PlayerID,
		"newScore": room.Scores[req.PlayerID],
		"scores":   room.Scores,
		"message":  "Score updated successfully",
	})
}

// wordsHandler populates the shared word list, once.
func (app *App) wordsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var req wordsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomCode == "" || req.PlayerID == "" || len(req.Words) == 0 {
		badRequest(c, ErrorMissingWords)
		return
	}
	words := lo.Map(req.Words, func(w string, _ int) string {
		return strings.ToLower(strings.TrimSpace(w))
	})
	if lo.SomeBy(words, func(w string) bool { return w == "" }) {
		badRequest(c, ErrorMissingWords)
		return
	}

	room, _, err := app.Coord.Apply(ctx, req.RoomCode, game.SetWords{PlayerID: req.PlayerID, Words: words})
	if err != nil {
		app.renderError(c, err)
		return
	}

	logInfo("%sRoom %s word list set (%d words)", reqPrefix(ctx), room.Code, len(room.Words))
	c.JSON(http.StatusOK, gin.H{
		"roomCode": room.Code,
		"words":    room.Words,
		"message":  "Words updated successfully",
	})
}

// leaveHandler removes a player; the last player out deletes the room,
// and a mid-game departure forfeits to the opponent.
func (app *App) leaveHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var req roomActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomCode == "" || req.PlayerID == "" {
		badRequest(c, ErrorMissingRoomCode)
		return
	}

	room, eff, err := app.Coord.Apply(ctx, req.RoomCode, game.Leave{PlayerID: req.PlayerID})
	if err != nil {
		app.renderError(c, err)
		return
	}

	logInfo("%sPlayer %s left room %s (remaining=%d, deleted=%t)",
		reqPrefix(ctx), req.PlayerID, req.RoomCode, len(room.Players), eff.Delete)
	c.JSON(http.StatusOK, gin.H{
		"message":     "Successfully left room",
		"playersLeft": len(room.Players),
	})
}

// gameOverHandler forces the terminal state (explicit forfeit).
func (app *App) gameOverHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var req gameOverRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomCode == "" || req.PlayerID == "" {
		badRequest(c, ErrorMissingRoomCode)
		return
	}

	room, _, err := app.Coord.Apply(ctx, req.RoomCode, game.ForceGameOver{PlayerID: req.PlayerID, Winner: req.Winner})
	if err != nil {
		app.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomCode": room.Code,
		"gameOver": room.GameOver,
		"winner":   nullableWinner(room),
		"message":  "Game over state updated successfully",
	})
}

// activityHandler is the lightweight keep-alive: it refreshes the room
// TTL, the liveness index, and the player mapping. Recent activity is a
// no-op so clients can call it freely.
func (app *App) activityHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var req roomActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomCode == "" || req.PlayerID == "" {
		badRequest(c, ErrorMissingRoomCode)
		return
	}

	_, eff, err := app.Coord.Apply(ctx, req.RoomCode, game.Touch{PlayerID: req.PlayerID})
	if err != nil {
		app.renderError(c, err)
		return
	}

	message := "Activity updated"
	if eff.Skip {
		message = "Activity recently updated"
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": message})
}

// roomCleanupHandler runs the cooperative liveness sweep on demand
// (cron or manual maintenance).
func (app *App) roomCleanupHandler(c *gin.Context) {
	ctx := c.Request.Context()
	before, err := app.Store.RoomCount(ctx)
	if err != nil {
		app.renderError(c, err)
		return
	}
	alive, err := app.Store.CleanActiveRooms(ctx, app.LivenessWindow)
	if err != nil {
		app.renderError(c, err)
		return
	}
	after := int64(len(alive))
	logInfo("Room cleanup: %d -> %d entries", before, after)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"cleaned":   before - after,
		"before":    before,
		"after":     after,
		"timestamp": time.Now().UnixMilli(),
	})
}

// playerCountHandler registers the caller's session (when it sends one)
// and returns the live player count.
func (app *App) playerCountHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if sessionID := c.GetHeader(SessionIDHeader); sessionID != "" {
		if err := app.Store.TouchSession(ctx, sessionID, app.SessionTTL); err != nil {
			logWarn("Failed to touch session %s: %v", sessionID, err)
		}
	}
	count, err := app.Store.SessionCount(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"count": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count, "timestamp": time.Now().UnixMilli()})
}

// playerCountRemoveHandler drops a session on explicit tab close.
func (app *App) playerCountRemoveHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.GetHeader(SessionIDHeader)
	if sessionID == "" {
		badRequest(c, ErrorMissingSession)
		return
	}
	if err := app.Store.RemoveSession(ctx, sessionID); err != nil {
		app.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// playerCountCleanupHandler sweeps expired sessions out of the presence
// set and reports the before/after counts.
func (app *App) playerCountCleanupHandler(c *gin.Context) {
	ctx := c.Request.Context()
	before, err := app.Store.Client().SCard(ctx, "active_sessions").Result()
	if err != nil {
		app.renderError(c, err)
		return
	}
	after, err := app.Store.SessionCount(ctx)
	if err != nil {
		app.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"cleaned":   before - after,
		"before":    before,
		"after":     after,
		"timestamp": time.Now().UnixMilli(),
	})
}

// healthzHandler returns a JSON health check with server stats.
func (app *App) healthzHandler(c *gin.Context) {
	ctx := c.Request.Context()
	uptime := time.Since(app.StartTime)
	redisStatus := "ok"
	if err := app.Store.Client().Ping(ctx).Err(); err != nil {
		redisStatus = err.Error()
	}
	rooms, _ := app.Store.RoomCount(ctx)
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"env":          map[bool]string{true: "production", false: "development"}[app.IsProduction],
		"redis":        redisStatus,
		"active_rooms": rooms,
		"uptime":       formatUptime(uptime),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// badRequest rejects malformed input before any store I/O happens.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "kind": KindValidation})
}

// renderError maps domain and store errors onto the stable error
// envelope. Semantic rejections keep their specific kind; anything
// unexpected collapses to a generic internal error.
func (app *App) renderError(c *gin.Context, err error) {
	var advanced *game.WordAdvancedError
	switch {
	case errors.As(err, &advanced):
		c.JSON(http.StatusConflict, gin.H{
			"error":            "Word already advanced by opponent.",
			"kind":             KindAlreadyAdvanced,
			"alreadyAdvanced":  true,
			"currentWordIndex": advanced.CurrentWordIndex,
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found.", "kind": KindNotFound})
	case errors.Is(err, game.ErrRoomFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Room is already full.", "kind": KindRoomFull})
	case errors.Is(err, game.ErrNicknameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Nickname is already taken in this room.", "kind": KindNicknameTaken})
	case errors.Is(err, game.ErrPlayerNotInRoom):
		c.JSON(http.StatusForbidden, gin.H{"error": "Player not in this room.", "kind": KindNotInRoom})
	case errors.Is(err, game.ErrGameOver):
		c.JSON(http.StatusConflict, gin.H{"error": "Game is already over.", "kind": KindGameOver})
	case errors.Is(err, game.ErrWordsAlreadySet):
		c.JSON(http.StatusConflict, gin.H{"error": "Word list has already been set.", "kind": KindWordsSet})
	case errors.Is(err, game.ErrStaleIndex):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Expected word index is ahead of the room.", "kind": KindStaleIndex})
	case errors.Is(err, coordinator.ErrTryAgain):
		c.JSON(http.StatusConflict, gin.H{
			"error":           "Could not process action due to concurrent updates. Please try again.",
			"kind":            KindTryAgain,
			"alreadyAdvanced": false,
		})
	default:
		logWarn("Unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrorInternal, "kind": KindInternal})
	}
}

func nullableWinner(room *game.Room) any {
	if room.Winner == "" {
		return nil
	}
	return room.Winner
}
