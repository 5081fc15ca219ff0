package main

import (
	"sync"
	"testing"
	"time"
)

// fakeRegistry stands in for the hub's connection index
type fakeRegistry struct {
	mu    sync.Mutex
	conns map[string]*mockConn
}

func newFakeRegistry(ids ...string) *fakeRegistry {
	r := &fakeRegistry{conns: make(map[string]*mockConn)}
	for _, id := range ids {
		r.conns[id] = &mockConn{}
	}
	return r
}

func (r *fakeRegistry) Conn(playerID string) Broadcaster {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[playerID]
	if !ok {
		return nil
	}
	return c
}

func (r *fakeRegistry) get(playerID string) *mockConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[playerID]
}

func (r *fakeRegistry) drop(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, playerID)
}

func newTestEngine(reg *fakeRegistry) *Engine {
	return NewEngine(NewDirectory(), reg, nil, nil)
}

func stopAll(e *Engine) {
	e.mu.Lock()
	games := make([]*Game, 0, len(e.games))
	for _, g := range e.games {
		games = append(games, g)
	}
	e.mu.Unlock()
	for _, g := range games {
		g.Stop()
	}
}

func TestCreateGameSingleplayer(t *testing.T) {
	reg := newFakeRegistry("alice")
	e := newTestEngine(reg)
	defer stopAll(e)

	g := e.CreateGame(ModeSingle, "alice", "")

	snap := g.Snapshot()
	if snap.Player1.ID != "alice" || snap.Player2.ID != BotPlayerID {
		t.Errorf("players = %q, %q; want alice, %q", snap.Player1.ID, snap.Player2.ID, BotPlayerID)
	}
	if e.directory.Get("alice") != g.id {
		t.Error("player1 not registered in the directory")
	}
	// only the human connection is directory-bound in singleplayer
	if e.directory.Get(BotPlayerID) != "" {
		t.Error("bot should not have a directory entry")
	}
}

func TestCreateGameLocal(t *testing.T) {
	reg := newFakeRegistry("alice")
	e := newTestEngine(reg)
	defer stopAll(e)

	g := e.CreateGame(ModeLocal, "alice", "")

	if e.directory.Get("alice") != g.id || e.directory.Get(LocalPlayerID) != g.id {
		t.Error("both local slots should be directory-bound")
	}
}

func TestCreateGameRemote(t *testing.T) {
	reg := newFakeRegistry("alice", "bob")
	e := newTestEngine(reg)
	defer stopAll(e)

	g := e.CreateGame(ModeRemote, "alice", "bob")

	snap := g.Snapshot()
	if snap.Mode != ModeRemote {
		t.Errorf("mode = %s, want %s", snap.Mode, ModeRemote)
	}
	if e.directory.Get("alice") != g.id || e.directory.Get("bob") != g.id {
		t.Error("both players should be directory-bound")
	}
	if snap.Ball.X != BallInitialX || snap.Ball.Y != BallInitialY {
		t.Error("ball should start centered")
	}
}

func TestMovePaddleUnknownGameIsNoop(t *testing.T) {
	e := newTestEngine(newFakeRegistry())
	e.MovePaddle("alice", "no-such-game", "up", 0) // must not panic
}

func TestRematchRemoteRejected(t *testing.T) {
	reg := newFakeRegistry("alice", "bob")
	e := newTestEngine(reg)
	defer stopAll(e)

	g := e.CreateGame(ModeRemote, "alice", "bob")

	_, err := e.RequestRematch(g.id, "alice")
	if err != errRematchRemote {
		t.Fatalf("err = %v, want %v", err, errRematchRemote)
	}
	if e.GameCount() != 1 {
		t.Errorf("game count = %d, rejection must not create or destroy sessions", e.GameCount())
	}
	if e.Game(g.id) == nil {
		t.Error("original session should still exist")
	}
}

func TestRematchUnknownGame(t *testing.T) {
	e := newTestEngine(newFakeRegistry())
	if _, err := e.RequestRematch("no-such-game", "alice"); err != errGameNotFound {
		t.Errorf("err = %v, want %v", err, errGameNotFound)
	}
}

func TestRematchSingleplayerCreatesFreshSession(t *testing.T) {
	reg := newFakeRegistry("alice")
	e := newTestEngine(reg)
	defer stopAll(e)

	old := e.CreateGame(ModeSingle, "alice", "")
	// Some played state that must not carry over
	old.mu.Lock()
	old.player1.Score = 2
	old.ball.Speed = 1.9
	old.mu.Unlock()

	newID, err := e.RequestRematch(old.id, "alice")
	if err != nil {
		t.Fatalf("rematch failed: %v", err)
	}
	if newID == old.id {
		t.Fatal("rematch must produce a fresh session id")
	}
	if e.Game(old.id) != nil {
		t.Error("old session should be discarded")
	}

	ng := e.Game(newID)
	if ng == nil {
		t.Fatal("new session missing")
	}
	snap := ng.Snapshot()
	if snap.Mode != ModeSingle {
		t.Errorf("mode = %s, want %s", snap.Mode, ModeSingle)
	}
	if snap.Player1.ID != "alice" || snap.Player2.ID != BotPlayerID {
		t.Error("rematch should keep the same participants")
	}
	if snap.Player1.Score != 0 || snap.Ball.Speed != BallBaseSpeed {
		t.Error("rematch state should be fresh")
	}
	if e.directory.Get("alice") != newID {
		t.Error("directory should point at the new session")
	}
}

func TestHandleDisconnectTearsDownSession(t *testing.T) {
	reg := newFakeRegistry("alice", "bob")
	e := newTestEngine(reg)

	g := e.CreateGame(ModeRemote, "alice", "bob")

	e.HandleDisconnect("alice")

	if e.Game(g.id) != nil {
		t.Error("session should be gone after a disconnect")
	}
	if e.directory.Get("alice") != "" || e.directory.Get("bob") != "" {
		t.Error("directory entries should be cleared with the session")
	}
	if msgs := reg.get("bob").envelopes(MsgDisconnected); len(msgs) != 1 {
		t.Errorf("bob got %d playerDisconnected messages, want 1", len(msgs))
	}
}

func TestHandleDisconnectUnknownPlayer(t *testing.T) {
	e := newTestEngine(newFakeRegistry())
	e.HandleDisconnect("stranger") // must not panic
}

func TestHandleDisconnectStaleDirectoryEntry(t *testing.T) {
	e := newTestEngine(newFakeRegistry())
	e.directory.Set("alice", "destroyed-game")

	e.HandleDisconnect("alice")

	if e.directory.Get("alice") != "" {
		t.Error("stale directory entry should be cleared, not crash")
	}
}

func TestGameOverExpiresAfterGrace(t *testing.T) {
	prevGrace := GraceCleanupDelay
	GraceCleanupDelay = 60 * time.Millisecond
	defer func() { GraceCleanupDelay = prevGrace }()

	reg := newFakeRegistry("alice", "bob")
	e := newTestEngine(reg)

	g := e.CreateGame(ModeRemote, "alice", "bob")

	// Force a win on the running loop's next tick
	g.mu.Lock()
	g.player1.Score = ScoreLimit
	g.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.GameCount() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if e.GameCount() != 0 {
		t.Fatal("ended session was not cleaned up after the grace window")
	}
	if e.directory.Get("alice") != "" || e.directory.Get("bob") != "" {
		t.Error("directory entries should be cleared")
	}
	if msgs := reg.get("alice").envelopes(MsgGameOver); len(msgs) != 1 {
		t.Errorf("alice got %d gameOver messages, want exactly 1", len(msgs))
	}
}

func TestGraceCleanupKeepsNewerSession(t *testing.T) {
	prevGrace := GraceCleanupDelay
	GraceCleanupDelay = 60 * time.Millisecond
	defer func() { GraceCleanupDelay = prevGrace }()

	reg := newFakeRegistry("alice", "bob")
	e := newTestEngine(reg)

	g1 := e.CreateGame(ModeRemote, "alice", "bob")
	g1.mu.Lock()
	g1.player1.Score = ScoreLimit
	g1.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(reg.get("alice").envelopes(MsgGameOver)) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Both players pair up again inside the old game's grace window
	g2 := e.CreateGame(ModeRemote, "alice", "bob")
	defer g2.Stop()

	for time.Now().Before(deadline) {
		if e.Game(g1.id) == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if e.Game(g1.id) != nil {
		t.Fatal("ended session survived the grace window")
	}

	// The old game's cleanup must not touch bindings that already point
	// at the new session
	if e.directory.Get("alice") != g2.id || e.directory.Get("bob") != g2.id {
		t.Fatalf("directory = %q/%q, want both bound to %s",
			e.directory.Get("alice"), e.directory.Get("bob"), g2.id)
	}

	// Drop-on-disconnect still reaches the new session
	e.HandleDisconnect("alice")
	if e.Game(g2.id) != nil {
		t.Error("disconnect did not tear the new session down")
	}
}
