package main

import "time"

// GameMode selects bot activation and rematch eligibility for a session
type GameMode string

const (
	ModeSingle GameMode = "singleplayer"
	ModeLocal  GameMode = "localMultiplayer"
	ModeRemote GameMode = "remoteMultiplayer"
)

// PaddleControl tags who drives a paddle; only the move trigger differs
type PaddleControl string

const (
	ControlHuman PaddleControl = "human"
	ControlBot   PaddleControl = "bot"
)

// Synthetic opponent IDs for sessions without a second connection
const (
	BotPlayerID   = "Bot"
	LocalPlayerID = "Local Challenger"
)

// Playfield is normalized to 0-100 on both axes; clients scale to pixels
const (
	FieldSize = 100.0

	PaddleWidth  = 2.0
	PaddleHeight = 10.0
	PaddleSpeed  = 1.0
	Paddle1X     = 2.0
	Paddle2X     = 96.0

	BallRadius    = 2.0
	BallInitialX  = 50.0
	BallInitialY  = 50.0
	BallInitialVX = 0.5
	BallInitialVY = 0.5
	BallBaseSpeed = 0.75
	BallSpeedInc  = 0.05
	BallMaxSpeed  = 2.0

	ScoreLimit  = 3
	BotDeadZone = 5.0

	PowerUpSize         = 3.0
	PowerUpHeightFactor = 2.0
)

// Power-up and post-game timing. Vars so tests can shrink them.
var (
	PowerUpSpawnDelay = 2 * time.Second
	PowerUpLifetime   = 5 * time.Second
	PowerUpEffectTime = 10 * time.Second

	RematchGrace      = 10 * time.Second
	GraceCleanupDelay = 11 * time.Second
)

// Paddle position/size on the normalized field. X is fixed per side.
type Paddle struct {
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
	Speed  float64 `json:"speed" msgpack:"speed"`
}

// Ball carries velocity components plus a scalar speed that is
// reapplied on every paddle bounce
type Ball struct {
	X         float64 `json:"x" msgpack:"x"`
	Y         float64 `json:"y" msgpack:"y"`
	Radius    float64 `json:"radius" msgpack:"radius"`
	VelocityX float64 `json:"velocityX" msgpack:"velocityX"`
	VelocityY float64 `json:"velocityY" msgpack:"velocityY"`
	Speed     float64 `json:"speed" msgpack:"speed"`
}

// PowerUp is an on-field pickup; at most one exists per session
type PowerUp struct {
	X       float64   `json:"x" msgpack:"x"`
	Y       float64   `json:"y" msgpack:"y"`
	Width   float64   `json:"width" msgpack:"width"`
	Spawned time.Time `json:"-" msgpack:"-"`
}

// Player is one side of a session. InGame flips to false when the
// backing connection drops.
type Player struct {
	ID      string        `json:"id" msgpack:"id"`
	Paddle  Paddle        `json:"paddle" msgpack:"paddle"`
	Score   int           `json:"score" msgpack:"score"`
	InGame  bool          `json:"inGame" msgpack:"inGame"`
	Control PaddleControl `json:"-" msgpack:"-"`
}

// NewPlayer creates a player with a default paddle at the given side offset
func NewPlayer(id string, paddleX float64, control PaddleControl) *Player {
	return &Player{
		ID: id,
		Paddle: Paddle{
			X:      paddleX,
			Y:      (FieldSize - PaddleHeight) / 2,
			Width:  PaddleWidth,
			Height: PaddleHeight,
			Speed:  PaddleSpeed,
		},
		InGame:  true,
		Control: control,
	}
}

// NewBall returns a centered ball with the base serve velocity
func NewBall() Ball {
	return Ball{
		X:         BallInitialX,
		Y:         BallInitialY,
		Radius:    BallRadius,
		VelocityX: BallInitialVX,
		VelocityY: BallInitialVY,
		Speed:     BallBaseSpeed,
	}
}
