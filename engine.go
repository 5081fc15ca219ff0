package main

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ConnRegistry resolves a connection id to a live client. A nil return
// means the connection is gone; that is the only liveness signal the
// engine and queue use.
type ConnRegistry interface {
	Conn(playerID string) Broadcaster
}

// AccountResolver maps a connection id to an authenticated account id,
// 0 when the connection is a guest
type AccountResolver interface {
	AccountID(playerID string) int64
}

// Engine owns every live session and the player->session directory.
// It is the only writer of directory entries: they are set when a game
// is created and cleared in the same operation that destroys it.
type Engine struct {
	mu        sync.RWMutex
	games     map[string]*Game
	rematch   map[string][]string // gameID -> player ids that acked a rematch
	directory *Directory
	conns     ConnRegistry
	accounts  AccountResolver // optional
	recorder  *MatchRecorder  // optional
}

// NewEngine creates an Engine around the given directory and registry
func NewEngine(directory *Directory, conns ConnRegistry, accounts AccountResolver, recorder *MatchRecorder) *Engine {
	return &Engine{
		games:     make(map[string]*Game),
		rematch:   make(map[string][]string),
		directory: directory,
		conns:     conns,
		accounts:  accounts,
		recorder:  recorder,
	}
}

// CreateGame builds a session for the given mode, registers its players
// in the directory, and starts its tick loop. Solo and local modes
// replace player2 with a synthetic opponent id.
func (e *Engine) CreateGame(mode GameMode, player1ID, player2ID string) *Game {
	switch mode {
	case ModeSingle:
		player2ID = BotPlayerID
	case ModeLocal:
		player2ID = LocalPlayerID
	}

	id := GenerateUUID()
	g := NewGame(id, mode, player1ID, player2ID)
	g.onGameOver = e.finishGame
	g.onDisconnected = func(g *Game) { e.teardown(g, true) }

	if e.conns != nil {
		if c := e.conns.Conn(player1ID); c != nil {
			g.SetClient(player1ID, c)
		}
		if mode == ModeRemote {
			if c := e.conns.Conn(player2ID); c != nil {
				g.SetClient(player2ID, c)
			}
		}
	}

	e.directory.Set(player1ID, id)
	if mode != ModeSingle {
		e.directory.Set(player2ID, id)
	}

	e.mu.Lock()
	e.games[id] = g
	e.mu.Unlock()

	go g.Run()
	log.Printf("game %s created (%s: %s vs %s)", id, mode, player1ID, player2ID)
	return g
}

// Game returns a live session by id, nil if unknown
func (e *Engine) Game(id string) *Game {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.games[id]
}

// GameCount returns the number of live sessions
func (e *Engine) GameCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.games)
}

// MovePaddle routes a paddle command to its session. Unknown sessions
// are a silent no-op.
func (e *Engine) MovePaddle(playerID, gameID, direction string, slot int) {
	g := e.Game(gameID)
	if g == nil {
		return
	}
	g.MovePaddle(playerID, direction, slot)
}

// Snapshot returns the current state of a session
func (e *Engine) Snapshot(gameID string) (GameSnapshot, bool) {
	g := e.Game(gameID)
	if g == nil {
		return GameSnapshot{}, false
	}
	return g.Snapshot(), true
}

var (
	errGameNotFound  = errors.New("Game not found")
	errRematchRemote = errors.New("Rematch not available in Remote Multiplayer mode")
)

// RequestRematch records an acknowledgement and, for solo/local modes,
// immediately starts the rematch: a fresh session id and state for the
// same participants, directory entries replaced, old session discarded.
// Remote sessions are rejected outright.
func (e *Engine) RequestRematch(gameID, playerID string) (string, error) {
	e.mu.Lock()
	g, ok := e.games[gameID]
	if !ok {
		e.mu.Unlock()
		return "", errGameNotFound
	}
	if g.mode == ModeRemote {
		e.mu.Unlock()
		return "", errRematchRemote
	}
	acks := e.rematch[gameID]
	seen := false
	for _, id := range acks {
		if id == playerID {
			seen = true
			break
		}
	}
	if !seen {
		e.rematch[gameID] = append(acks, playerID)
	}
	// One acknowledgement suffices in solo/local: there is only one
	// human connection behind the session.
	delete(e.games, gameID)
	delete(e.rematch, gameID)
	e.mu.Unlock()

	g.Stop()
	snap := g.Snapshot()
	ng := e.CreateGame(snap.Mode, snap.Player1.ID, snap.Player2.ID)
	log.Printf("game %s rematch -> %s", gameID, ng.id)
	return ng.id, nil
}

// HandleDisconnect tears down the session a connection belongs to.
// An in-progress rally is discarded; the remaining player is notified.
func (e *Engine) HandleDisconnect(playerID string) {
	gameID := e.directory.Get(playerID)
	if gameID == "" {
		return
	}
	g := e.Game(gameID)
	if g == nil {
		// Directory entry outlived its game; recover by clearing it.
		e.directory.Remove(playerID, gameID)
		return
	}
	g.MarkDisconnected(playerID)
	e.teardown(g, true)
}

// finishGame runs after a session reaches the score limit: persist the
// result (networked matches only, fire-and-forget) and schedule the
// grace-period cleanup that a rematch may supersede.
func (e *Engine) finishGame(g *Game, winner *Player, slot string) {
	snap := g.Snapshot()
	log.Printf("game %s over, %s (%s) won %d-%d", g.id, slot, winner.ID,
		snap.Player1.Score, snap.Player2.Score)

	if snap.Mode == ModeRemote {
		loserID := snap.Player1.ID
		if loserID == winner.ID {
			loserID = snap.Player2.ID
		}
		rec := MatchRecord{
			Player1ID:    snap.Player1.ID,
			Player2ID:    snap.Player2.ID,
			Player1Score: snap.Player1.Score,
			Player2Score: snap.Player2.Score,
			Mode:         snap.Mode,
			StartedAt:    g.startedAt,
			EndedAt:      time.Now(),
			WinnerID:     winner.ID,
		}
		if e.accounts != nil {
			rec.WinnerAccount = e.accounts.AccountID(winner.ID)
			rec.LoserAccount = e.accounts.AccountID(loserID)
		}
		if e.recorder != nil {
			e.recorder.Record(rec)
		}
		// Remote players are free to queue again right away
		e.directory.Remove(snap.Player1.ID, g.id)
		e.directory.Remove(snap.Player2.ID, g.id)
	}

	time.AfterFunc(GraceCleanupDelay, func() { e.expireGame(g.id) })
}

// expireGame removes an ended session whose grace window lapsed with no
// rematch. A rematch replaces the map entry, so finding it gone is the
// normal superseded case.
func (e *Engine) expireGame(gameID string) {
	e.mu.Lock()
	g, ok := e.games[gameID]
	if ok {
		delete(e.games, gameID)
		delete(e.rematch, gameID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	g.Stop()
	snap := g.Snapshot()
	e.directory.Remove(snap.Player1.ID, gameID)
	e.directory.Remove(snap.Player2.ID, gameID)
	log.Printf("game %s expired without rematch", gameID)
}

// teardown destroys a session and clears its directory entries in one
// operation. Idempotent: a session already removed is a no-op.
func (e *Engine) teardown(g *Game, notify bool) {
	e.mu.Lock()
	if _, ok := e.games[g.id]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.games, g.id)
	delete(e.rematch, g.id)
	e.mu.Unlock()

	if notify {
		g.Broadcast(Envelope{T: MsgDisconnected})
	}
	g.Stop()
	snap := g.Snapshot()
	e.directory.Remove(snap.Player1.ID, g.id)
	e.directory.Remove(snap.Player2.ID, g.id)
	log.Printf("game %s torn down", g.id)
}
