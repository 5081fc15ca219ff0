package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120 // must stay above one paddle command per tick
)

// Client represents a WebSocket connection. Its id doubles as the
// player id throughout the queue, directory, and engine.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         string
	name       string // guest display name until the connection authenticates
	gameID     string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time

	// Auth state, written by the read pump, read by the engine
	authMu       sync.Mutex
	authPlayerID int64
	authUsername string
}

// NewClient creates a new Client with a fresh connection id
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		id:         GenerateID(8),
		name:       GenerateGuestName(),
		remoteAddr: remoteAddr,
	}
}

// AuthPlayerID returns the authenticated account id, 0 for guests
func (c *Client) AuthPlayerID() int64 {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authPlayerID
}

func (c *Client) setAuth(id int64, username string) {
	c.authMu.Lock()
	c.authPlayerID = id
	c.authUsername = username
	c.authMu.Unlock()
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF marker byte so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgJoinGame:
		c.handleJoinGame(env.D)
	case MsgMovePaddle:
		c.handleMovePaddle(env.D)
	case MsgGetState:
		c.handleGetState(env.D)
	case MsgRematch:
		c.handleRematch(env.D)
	case MsgJoinQueue:
		c.handleJoinQueue()
	case MsgLeaveQueue:
		c.handleLeaveQueue()
	case MsgLeaveGame:
		c.handleLeaveGame()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	case MsgLeaderboard:
		c.handleLeaderboard()
	}
}

func (c *Client) handleJoinGame(data json.RawMessage) {
	var msg JoinGameMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.GameMode {
	case ModeSingle, ModeLocal:
		g := c.hub.engine.CreateGame(msg.GameMode, c.id, "")
		c.gameID = g.id
		g.Broadcast(Envelope{T: MsgGameStarted, Data: GameRefMsg{GameID: g.id}})
	case ModeRemote:
		// Remote games go through the matchmaking queue
		c.SendJSON(Envelope{T: MsgQueueStatus, Data: QueueStatusMsg{Status: QueueJoining}})
		if err := c.hub.queue.Join(c.id); err != nil {
			c.sendError(err.Error())
		}
	default:
		c.sendError("unknown game mode")
	}
}

func (c *Client) handleMovePaddle(data json.RawMessage) {
	var msg MovePaddleMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Direction != "up" && msg.Direction != "down" {
		return
	}
	c.hub.engine.MovePaddle(c.id, msg.GameID, msg.Direction, msg.Player)
}

func (c *Client) handleGetState(data json.RawMessage) {
	var msg GameRefMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	snap, ok := c.hub.engine.Snapshot(msg.GameID)
	if !ok {
		c.sendError("game not found")
		return
	}
	c.SendJSON(Envelope{T: MsgGameState, Data: snap})
}

func (c *Client) handleRematch(data json.RawMessage) {
	var msg GameRefMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	newID, err := c.hub.engine.RequestRematch(msg.GameID, c.id)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.gameID = newID
	c.SendJSON(Envelope{T: MsgRematchStarted, Data: GameRefMsg{GameID: newID}})
	c.SendJSON(Envelope{T: MsgGameStarted, Data: GameRefMsg{GameID: newID}})
}

func (c *Client) handleJoinQueue() {
	if err := c.hub.queue.Join(c.id); err != nil {
		c.sendError(err.Error())
	}
}

func (c *Client) handleLeaveQueue() {
	c.hub.queue.Leave(c.id)
	c.SendJSON(Envelope{T: MsgQueueStatus, Data: QueueStatusMsg{Status: QueueInactive}})
}

func (c *Client) handleLeaveGame() {
	if c.gameID == "" {
		return
	}
	c.hub.engine.HandleDisconnect(c.id)
	c.gameID = ""
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.setAuth(id, msg.Username)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id}})
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.setAuth(id, msg.Username)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id}})
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError("invalid token")
		return
	}
	c.setAuth(id, username)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: msg.Token, Username: username, PlayerID: id}})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.AuthPlayerID() == 0 {
		c.sendError("not authenticated")
		return
	}
	stats, err := c.hub.db.GetStats(c.AuthPlayerID())
	if err != nil || stats == nil {
		c.sendError("profile not found")
		return
	}
	c.authMu.Lock()
	name := c.authUsername
	c.authMu.Unlock()
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username: name,
		Wins:     stats.Wins,
		Losses:   stats.Losses,
	}})
}

func (c *Client) handleLeaderboard() {
	if c.hub.db == nil {
		c.sendError("leaderboard unavailable")
		return
	}
	entries, err := c.hub.db.GetLeaderboard(10)
	if err != nil {
		c.sendError("leaderboard unavailable")
		return
	}
	c.SendJSON(Envelope{T: MsgLeaderboardData, Data: entries})
}
