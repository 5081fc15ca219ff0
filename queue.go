package main

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ConfirmWindow is how long paired players wait before the match is
// committed; disconnects are detected at expiry. Var so tests can shrink it.
var ConfirmWindow = 5 * time.Second

var (
	errQueueNoConn  = errors.New("Error: Invalid connection")
	errQueueAlready = errors.New("Error: Already in queue")
)

// Queue is the FIFO matchmaking list. It owns queue membership only;
// session creation is delegated to the engine once a pairing survives
// its confirmation window.
type Queue struct {
	mu      sync.Mutex
	waiting []string
	pending map[string]bool // ids inside a confirmation window
	engine  *Engine
	conns   ConnRegistry
}

// NewQueue creates a matchmaking queue backed by the given engine
func NewQueue(engine *Engine, conns ConnRegistry) *Queue {
	return &Queue{
		pending: make(map[string]bool),
		engine:  engine,
		conns:   conns,
	}
}

// Join appends a player to the tail and attempts a pairing. Rejected
// without state change if the connection is dead or already queued.
func (q *Queue) Join(playerID string) error {
	if q.conns.Conn(playerID) == nil {
		return errQueueNoConn
	}

	q.mu.Lock()
	if q.pending[playerID] || q.indexLocked(playerID) >= 0 {
		q.mu.Unlock()
		return errQueueAlready
	}
	q.waiting = append(q.waiting, playerID)
	log.Printf("queue: %s joined (%d waiting)", playerID, len(q.waiting))
	q.mu.Unlock()

	q.sendStatus(playerID, QueueInQueue)
	q.tryMatch()
	return nil
}

// Leave removes a player from the waiting list; idempotent. A player
// already inside a confirmation window is handled by the liveness check
// at window expiry, not here.
func (q *Queue) Leave(playerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexLocked(playerID); i >= 0 {
		q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
		log.Printf("queue: %s left (%d waiting)", playerID, len(q.waiting))
	}
}

// Waiting returns the number of unmatched entries
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

func (q *Queue) indexLocked(playerID string) int {
	for i, id := range q.waiting {
		if id == playerID {
			return i
		}
	}
	return -1
}

// tryMatch pops the two oldest waiters into a confirmation window
func (q *Queue) tryMatch() {
	q.mu.Lock()
	for len(q.waiting) >= 2 {
		p1, p2 := q.waiting[0], q.waiting[1]
		q.waiting = q.waiting[2:]
		q.pending[p1] = true
		q.pending[p2] = true
		log.Printf("queue: paired %s and %s", p1, p2)

		q.mu.Unlock()
		for _, id := range []string{p1, p2} {
			if c := q.conns.Conn(id); c != nil {
				c.SendJSON(Envelope{T: MsgQueueStatus, Data: QueueStatusMsg{Status: QueueMatched}})
				c.SendJSON(Envelope{T: MsgCountdown, Data: CountdownMsg{Duration: int(ConfirmWindow / time.Second)}})
			}
		}
		time.AfterFunc(ConfirmWindow, func() { q.resolve(p1, p2) })
		q.mu.Lock()
	}
	q.mu.Unlock()
}

// resolve runs at confirmation-window expiry. Both still live: create
// the remote session. One dropped: requeue the survivor at the tail as
// a fresh arrival. Never a hard error.
func (q *Queue) resolve(p1, p2 string) {
	c1 := q.conns.Conn(p1)
	c2 := q.conns.Conn(p2)

	if c1 != nil && c2 != nil {
		q.mu.Lock()
		delete(q.pending, p1)
		delete(q.pending, p2)
		q.mu.Unlock()

		g := q.engine.CreateGame(ModeRemote, p1, p2)
		g.Broadcast(Envelope{T: MsgMatchFound, Data: GameRefMsg{GameID: g.id}})
		return
	}

	survivor := ""
	if c1 != nil {
		survivor = p1
	} else if c2 != nil {
		survivor = p2
	}

	// Clearing pending and requeueing the survivor must be one critical
	// section: a Join racing the window expiry could otherwise pass the
	// duplicate check and leave the survivor queued twice.
	q.mu.Lock()
	delete(q.pending, p1)
	delete(q.pending, p2)
	requeued := false
	if survivor != "" && q.indexLocked(survivor) < 0 {
		q.waiting = append(q.waiting, survivor)
		requeued = true
	}
	q.mu.Unlock()

	if requeued {
		log.Printf("queue: pairing failed, %s requeued", survivor)
		q.sendStatus(survivor, QueueInQueue)
		q.tryMatch()
	}
}

func (q *Queue) sendStatus(playerID, status string) {
	if c := q.conns.Conn(playerID); c != nil {
		c.SendJSON(Envelope{T: MsgQueueStatus, Data: QueueStatusMsg{Status: status}})
	}
}
