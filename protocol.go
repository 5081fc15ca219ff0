package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoinGame    = "joinGame"
	MsgMovePaddle  = "movePaddle"
	MsgGetState    = "getGameState"
	MsgRematch     = "requestRematch"
	MsgJoinQueue   = "joinQueue"
	MsgLeaveQueue  = "leaveQueue"
	MsgLeaveGame   = "leaveGame"
	MsgRegister    = "register"
	MsgLogin       = "login"
	MsgAuth        = "auth"
	MsgProfile     = "profile"
	MsgLeaderboard = "leaderboard"
)

// Server -> Client message types
const (
	MsgWelcome         = "welcome"
	MsgGameStarted     = "gameStarted"
	MsgGameState       = "gameState"
	MsgGameOver        = "gameOver"
	MsgDisconnected    = "playerDisconnected"
	MsgRematchStarted  = "rematchStarted"
	MsgQueueStatus     = "queueStatus"
	MsgCountdown       = "countdown"
	MsgMatchFound      = "matchFound"
	MsgError           = "error"
	MsgAuthOK          = "authOk"
	MsgProfileData     = "profileData"
	MsgLeaderboardData = "leaderboardData"
)

// Queue status values pushed to clients as their matchmaking state changes
const (
	QueueJoining  = "joining"
	QueueInQueue  = "inQueue"
	QueueMatched  = "matched"
	QueueInactive = "inactive"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinGameMsg starts a solo or local session, or signals intent to queue
type JoinGameMsg struct {
	GameMode GameMode `json:"gameMode"`
}

// MovePaddleMsg steps a paddle one increment up or down. Player is the
// optional slot (1 or 2) used by local multiplayer where one connection
// drives both paddles; 0 means resolve by connection id.
type MovePaddleMsg struct {
	GameID    string `json:"gameId"`
	Direction string `json:"direction"`
	Player    int    `json:"player,omitempty"`
}

// GameRefMsg carries just a session reference
type GameRefMsg struct {
	GameID string `json:"gameId"`
}

// GameOverMsg names the winner and the deadline for requesting a rematch
type GameOverMsg struct {
	Winner         string `json:"winner"` // "player1" or "player2"
	WinnerID       string `json:"winnerId"`
	RematchTimeout int64  `json:"rematchTimeout"` // unix millis
}

// QueueStatusMsg reports matchmaking state
type QueueStatusMsg struct {
	Status string `json:"status"`
}

// CountdownMsg starts a client-side countdown; GameID is empty during
// the matchmaking confirmation window (no session exists yet)
type CountdownMsg struct {
	GameID   string `json:"gameId,omitempty"`
	Duration int    `json:"duration"` // seconds
}

// WelcomeMsg tells a client its connection id
type WelcomeMsg struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// ErrorMsg sends a rejection message to the client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// RegisterMsg / LoginMsg create or resume an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg re-authenticates with a previously issued token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"playerId"`
}

// ProfileDataMsg returns account stats
type ProfileDataMsg struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

// LeaderboardEntry is one row of the win leaderboard
type LeaderboardEntry struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

// GameSnapshot is the full per-tick state broadcast. It goes out as a
// binary msgpack frame every tick and as JSON for getGameState replies.
type GameSnapshot struct {
	ID      string   `json:"gameId" msgpack:"gameId"`
	Player1 Player   `json:"player1" msgpack:"player1"`
	Player2 Player   `json:"player2" msgpack:"player2"`
	Ball    Ball     `json:"ball" msgpack:"ball"`
	PowerUp *PowerUp `json:"powerUp,omitempty" msgpack:"powerUp,omitempty"`
	Mode    GameMode `json:"gameMode" msgpack:"gameMode"`
	Tick    uint64   `json:"tick" msgpack:"tick"`
}
