package main

import "sync"

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub owns live connections and routes their lifecycle into the queue
// and engine. It implements ConnRegistry (is this connection alive,
// send it a message) and AccountResolver for the engine.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	byID       map[string]*Client // connection id -> client
	register   chan *Client
	unregister chan *Client

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	directory *Directory
	engine    *Engine
	queue     *Queue
	recorder  *MatchRecorder
	db        *DB
	auth      *Auth
}

// NewHub wires the directory, engine and queue together. db may be nil;
// match persistence and accounts are disabled without it.
func NewHub(db *DB) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		byID:       make(map[string]*Client),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		ipConns:    make(map[string]int),
		directory:  NewDirectory(),
		db:         db,
	}
	if db != nil {
		h.recorder = NewMatchRecorder(db)
		h.auth = NewAuth(db)
	}
	h.engine = NewEngine(h.directory, h, h, h.recorder)
	h.queue = NewQueue(h.engine, h)
	return h
}

// Conn returns the live client for a connection id, nil if gone
func (h *Hub) Conn(playerID string) Broadcaster {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byID[playerID]
	if !ok {
		return nil
	}
	return c
}

// AccountID returns the authenticated account behind a connection, 0 for guests
func (h *Hub) AccountID(playerID string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byID[playerID]
	if !ok {
		return 0
	}
	return c.AuthPlayerID()
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.byID[client.id] = client
			h.mu.Unlock()
			client.SendJSON(Envelope{T: MsgWelcome, Data: WelcomeMsg{PlayerID: client.id, Name: client.name}})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				delete(h.byID, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			// Dead connections leave the queue and drop their session
			h.queue.Leave(client.id)
			h.engine.HandleDisconnect(client.id)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
