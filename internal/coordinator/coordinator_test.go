package coordinator

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"wordrace/internal/game"
	"wordrace/internal/store"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &Coordinator{Store: store.New(client), RoomTTL: 15 * time.Minute}
}

func TestCreateGeneratesFiveDigitCode(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	room, err := c.Create(ctx, "alice", "Alice", game.RoomCustom)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !regexp.MustCompile(`^\d{5}$`).MatchString(room.Code) {
		t.Errorf("code = %q, want five digits", room.Code)
	}
	if room.Status != game.StatusWaiting || len(room.Players) != 1 {
		t.Errorf("room = %+v, want waiting with one player", room)
	}

	// Custom rooms never enter the matchmaking queue.
	if n, _ := c.Store.WaitingCount(ctx); n != 0 {
		t.Errorf("queue depth = %d, want 0", n)
	}
}

func TestCreateRandomEnqueues(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	room, err := c.Create(ctx, "alice", "Alice", game.RoomRandom)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	code, ok, err := c.Store.PopWaiting(ctx)
	if err != nil || !ok || code != room.Code {
		t.Errorf("queue head = %q/%t (%v), want %q", code, ok, err, room.Code)
	}
}

func TestApplySemanticRejection(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	room, err := c.Create(ctx, "alice", "Alice", game.RoomCustom)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := c.Apply(ctx, room.Code, game.MarkReady{PlayerID: "mallory"}); !errors.Is(err, game.ErrPlayerNotInRoom) {
		t.Fatalf("error = %v, want ErrPlayerNotInRoom", err)
	}
	if _, _, err := c.Apply(ctx, "00000", game.MarkReady{PlayerID: "alice"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestApplyPersistsAndMaps(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	room, err := c.Create(ctx, "alice", "Alice", game.RoomCustom)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := c.Apply(ctx, room.Code, game.Join{PlayerID: "bob", Nickname: "Bob"}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	saved, _, err := c.Store.LoadRoom(ctx, room.Code)
	if err != nil {
		t.Fatal(err)
	}
	if !saved.HasPlayer("bob") {
		t.Error("join was not persisted")
	}
	if code, err := c.Store.PlayerRoom(ctx, "bob"); err != nil || code != room.Code {
		t.Errorf("PlayerRoom(bob) = %q (%v), want %q", code, err, room.Code)
	}
}

// Two players race a correct guess for the same word. Exactly one is
// credited; the other learns the index already moved, with no retry
// turning its guess into a guess for the next word.
func TestGuessRaceCreditsExactlyOne(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	room, err := c.Create(ctx, "alice", "Alice", game.RoomCustom)
	if err != nil {
		t.Fatal(err)
	}
	code := room.Code
	if _, _, err := c.Apply(ctx, code, game.Join{PlayerID: "bob", Nickname: "Bob"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Apply(ctx, code, game.SetWords{PlayerID: "alice", Words: []string{"crane", "slate", "pride"}}); err != nil {
		t.Fatal(err)
	}

	errs := make(map[string]error, 2)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, player := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(player string) {
			defer wg.Done()
			_, _, err := c.Apply(ctx, code, game.SubmitGuess{
				PlayerID:          player,
				Success:           true,
				Solution:          "crane",
				ExpectedWordIndex: 0,
			})
			mu.Lock()
			errs[player] = err
			mu.Unlock()
		}(player)
	}
	wg.Wait()

	var winner, loser string
	for player, err := range errs {
		if err == nil {
			if winner != "" {
				t.Fatal("both guesses were credited")
			}
			winner = player
		} else {
			loser = player
			var advanced *game.WordAdvancedError
			if !errors.As(err, &advanced) {
				t.Fatalf("loser error = %v, want WordAdvancedError", err)
			}
			if advanced.CurrentWordIndex != 1 {
				t.Errorf("loser sees index %d, want 1", advanced.CurrentWordIndex)
			}
		}
	}
	if winner == "" {
		t.Fatal("no guess was credited")
	}

	saved, _, err := c.Store.LoadRoom(ctx, code)
	if err != nil {
		t.Fatal(err)
	}
	if saved.CurrentWordIndex != 1 {
		t.Errorf("currentWordIndex = %d, want 1", saved.CurrentWordIndex)
	}
	if saved.Scores[winner] != 1 || saved.Scores[loser] != 0 {
		t.Errorf("scores = %v, want %s=1 %s=0", saved.Scores, winner, loser)
	}
}

func TestJoinRandomMatchesOldestRoom(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.Create(ctx, "alice", "Alice", game.RoomRandom)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create(ctx, "bob", "Bob", game.RoomRandom); err != nil {
		t.Fatal(err)
	}

	matched, err := c.JoinRandom(ctx, "carol", "Carol")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if matched.Code != first.Code {
		t.Errorf("matched %q, want the oldest room %q", matched.Code, first.Code)
	}
	if !matched.HasPlayer("carol") || len(matched.Players) != 2 {
		t.Errorf("players = %v, want alice and carol", matched.Players)
	}
}

func TestJoinRandomSkipsDeadEntries(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	// A queue entry whose room has expired must be skipped, not matched.
	if err := c.Store.EnqueueWaiting(ctx, "00000"); err != nil {
		t.Fatal(err)
	}
	live, err := c.Create(ctx, "alice", "Alice", game.RoomRandom)
	if err != nil {
		t.Fatal(err)
	}

	matched, err := c.JoinRandom(ctx, "bob", "Bob")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if matched.Code != live.Code {
		t.Errorf("matched %q, want %q", matched.Code, live.Code)
	}
}

// A waiting player re-issuing join-random (a page refresh) pops their
// own room's queue entry. The room must go back in the queue or it can
// never be matched again.
func TestJoinRandomSelfRejoinKeepsRoomWaiting(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	room, err := c.JoinRandom(ctx, "alice", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	again, err := c.JoinRandom(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("repeat join failed: %v", err)
	}
	if again.Code != room.Code || len(again.Players) != 1 {
		t.Fatalf("repeat join = %q with %v, want the same solo room", again.Code, again.Players)
	}
	if n, _ := c.Store.WaitingCount(ctx); n != 1 {
		t.Fatalf("queue depth = %d, want the room back in the queue", n)
	}

	matched, err := c.JoinRandom(ctx, "bob", "Bob")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if matched.Code != room.Code || len(matched.Players) != 2 {
		t.Errorf("matched %q with %v, want alice's room filled", matched.Code, matched.Players)
	}
}

// A rejected join (here a nickname conflict) must not strand the popped
// room outside the queue.
func TestJoinRandomRequeuesOnRejectedJoin(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	room, err := c.Create(ctx, "alice", "Alice", game.RoomRandom)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.JoinRandom(ctx, "bob", "alice"); !errors.Is(err, game.ErrNicknameTaken) {
		t.Fatalf("error = %v, want ErrNicknameTaken", err)
	}

	matched, err := c.JoinRandom(ctx, "carol", "Carol")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if matched.Code != room.Code {
		t.Errorf("matched %q, want %q still waiting", matched.Code, room.Code)
	}
}

func TestJoinRandomEmptyQueueOpensRoom(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	room, err := c.JoinRandom(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if room.Type != game.RoomRandom || len(room.Players) != 1 {
		t.Errorf("room = %+v, want a fresh random room", room)
	}
	// The new room waits in the queue for the next player.
	code, ok, err := c.Store.PopWaiting(ctx)
	if err != nil || !ok || code != room.Code {
		t.Errorf("queue head = %q/%t (%v), want %q", code, ok, err, room.Code)
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	room, err := c.Create(ctx, "alice", "Alice", game.RoomCustom)
	if err != nil {
		t.Fatal(err)
	}

	_, eff, err := c.Apply(ctx, room.Code, game.Leave{PlayerID: "alice"})
	if err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if !eff.Delete {
		t.Error("effect.Delete = false, want true")
	}
	if _, _, err := c.Store.LoadRoom(ctx, room.Code); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("load after delete = %v, want ErrNotFound", err)
	}
	if _, err := c.Store.PlayerRoom(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("player mapping survived leave: %v", err)
	}
}

func TestLeaveRequeuesWaitingRandomRoom(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	room, err := c.Create(ctx, "alice", "Alice", game.RoomRandom)
	if err != nil {
		t.Fatal(err)
	}
	matched, err := c.JoinRandom(ctx, "bob", "Bob")
	if err != nil || matched.Code != room.Code {
		t.Fatalf("matchmaking failed: %q (%v)", matched.Code, err)
	}
	// The match consumed the queue entry.
	if n, _ := c.Store.WaitingCount(ctx); n != 0 {
		t.Fatalf("queue depth = %d, want 0 after match", n)
	}

	if _, _, err := c.Apply(ctx, room.Code, game.Leave{PlayerID: "bob"}); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	code, ok, err := c.Store.PopWaiting(ctx)
	if err != nil || !ok || code != room.Code {
		t.Errorf("queue head = %q/%t (%v), want the vacated room back", code, ok, err)
	}
}

func TestLeaveMidGameForfeits(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	room, err := c.Create(ctx, "alice", "Alice", game.RoomCustom)
	if err != nil {
		t.Fatal(err)
	}
	code := room.Code
	if _, _, err := c.Apply(ctx, code, game.Join{PlayerID: "bob", Nickname: "Bob"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Apply(ctx, code, game.MarkReady{PlayerID: "alice"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Apply(ctx, code, game.MarkReady{PlayerID: "bob"}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := c.Apply(ctx, code, game.Leave{PlayerID: "alice"}); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	saved, _, err := c.Store.LoadRoom(ctx, code)
	if err != nil {
		t.Fatal(err)
	}
	if !saved.GameOver || saved.Winner != "bob" {
		t.Errorf("gameOver=%t winner=%q, want forfeit to bob", saved.GameOver, saved.Winner)
	}
}

func TestTouchSkipStillReturnsRoom(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	room, err := c.Create(ctx, "alice", "Alice", game.RoomCustom)
	if err != nil {
		t.Fatal(err)
	}

	got, eff, err := c.Apply(ctx, room.Code, game.Touch{PlayerID: "alice"})
	if err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if !eff.Skip {
		t.Error("fresh room touch was not skipped")
	}
	if got == nil || got.Code != room.Code {
		t.Errorf("room = %+v, want the loaded record", got)
	}
}
