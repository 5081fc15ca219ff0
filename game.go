package main

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	TickRate     = 60 // simulation ticks per second
	TickDuration = time.Second / TickRate
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

type stepResult int

const (
	stepRunning stepResult = iota
	stepGameOver
	stepDisconnected
)

// Game holds the state of one session and runs its own tick loop.
// All of its nested paddle/ball/power-up state is owned exclusively by
// this struct; mutation happens under mu.
type Game struct {
	mu      sync.RWMutex
	id      string
	mode    GameMode
	player1 *Player
	player2 *Player
	ball    Ball
	powerUp *PowerUp
	clients map[string]Broadcaster
	tick    uint64
	running bool
	ended   bool
	stop    chan struct{}

	startedAt  time.Time
	roundStart time.Time // times the power-up spawn delay
	reverts    []*time.Timer

	// Set by the engine before Run; called with no locks held.
	onGameOver     func(g *Game, winner *Player, slot string)
	onDisconnected func(g *Game)
}

// NewGame creates a session with symmetric default paddles and a
// centered ball. The second player is bot-controlled in singleplayer.
func NewGame(id string, mode GameMode, player1ID, player2ID string) *Game {
	now := time.Now()
	p2Control := ControlHuman
	if mode == ModeSingle {
		p2Control = ControlBot
	}
	return &Game{
		id:         id,
		mode:       mode,
		player1:    NewPlayer(player1ID, Paddle1X, ControlHuman),
		player2:    NewPlayer(player2ID, Paddle2X, p2Control),
		ball:       NewBall(),
		clients:    make(map[string]Broadcaster),
		stop:       make(chan struct{}),
		startedAt:  now,
		roundStart: now,
	}
}

// Run drives the session at a fixed rate until it ends or is stopped
func (g *Game) Run() {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	g.running = true
	g.mu.Unlock()

	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, winner, slot := g.step()
			switch res {
			case stepGameOver:
				if g.onGameOver != nil {
					g.onGameOver(g, winner, slot)
				}
				return
			case stepDisconnected:
				if g.onDisconnected != nil {
					g.onDisconnected(g)
				}
				return
			}
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the tick loop and cancels pending effect reversions
func (g *Game) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.reverts {
		t.Stop()
	}
	g.reverts = nil
	if g.running {
		g.running = false
		close(g.stop)
	}
}

// SetClient associates a broadcaster with a player id
func (g *Game) SetClient(playerID string, client Broadcaster) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if client != nil {
		g.clients[playerID] = client
	}
}

// RemoveClient drops a player's broadcaster
func (g *Game) RemoveClient(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, playerID)
}

// MarkDisconnected flips a player's inGame flag; the loop (or the
// engine teardown path) picks this up
func (g *Game) MarkDisconnected(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.player1.ID == playerID {
		g.player1.InGame = false
	} else if g.player2.ID == playerID {
		g.player2.InGame = false
	}
}

// MovePaddle applies one paddle step and clamps into the legal range.
// Commands apply immediately; the next tick's broadcast carries them.
// Slot 1 or 2 selects a paddle explicitly (local multiplayer drives
// both paddles over one connection); 0 resolves by player id.
func (g *Game) MovePaddle(playerID, direction string, slot int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var paddle *Paddle
	switch slot {
	case 1:
		paddle = &g.player1.Paddle
	case 2:
		paddle = &g.player2.Paddle
	default:
		if g.player1.ID == playerID {
			paddle = &g.player1.Paddle
		} else if g.player2.ID == playerID {
			paddle = &g.player2.Paddle
		} else {
			return
		}
	}

	switch direction {
	case "up":
		paddle.Y -= paddle.Speed
	case "down":
		paddle.Y += paddle.Speed
	}
	paddle.Y = Clamp(paddle.Y, 0, FieldSize-paddle.Height)
}

// Snapshot returns a copy of the full session state
func (g *Game) Snapshot() GameSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() GameSnapshot {
	snap := GameSnapshot{
		ID:      g.id,
		Player1: *g.player1,
		Player2: *g.player2,
		Ball:    g.ball,
		Mode:    g.mode,
		Tick:    g.tick,
	}
	if g.powerUp != nil {
		pu := *g.powerUp
		snap.PowerUp = &pu
	}
	return snap
}

// Broadcast sends a JSON envelope to every client in the session
func (g *Game) Broadcast(msg Envelope) {
	for _, c := range g.clientList() {
		c.SendJSON(msg)
	}
}

func (g *Game) clientList() []Broadcaster {
	g.mu.RLock()
	defer g.mu.RUnlock()
	list := make([]Broadcaster, 0, len(g.clients))
	for _, c := range g.clients {
		list = append(list, c)
	}
	return list
}

// step runs one simulation tick and broadcasts the resulting state
func (g *Game) step() (stepResult, *Player, string) {
	g.mu.Lock()
	if !g.player1.InGame || !g.player2.InGame {
		g.mu.Unlock()
		return stepDisconnected, nil, ""
	}

	now := time.Now()
	g.tick++

	g.updatePowerUpLocked(now)

	if g.player2.Control == ControlBot {
		moveBotPaddle(&g.player2.Paddle, g.ball)
	}

	g.ball.X += g.ball.VelocityX
	g.ball.Y += g.ball.VelocityY

	// Top/bottom walls reflect and reposition in-bounds
	if g.ball.Y+g.ball.Radius > FieldSize {
		g.ball.Y = FieldSize - g.ball.Radius
		g.ball.VelocityY = -g.ball.VelocityY
	} else if g.ball.Y-g.ball.Radius < 0 {
		g.ball.Y = g.ball.Radius
		g.ball.VelocityY = -g.ball.VelocityY
	}

	checkPaddleBounce(&g.player1.Paddle, &g.ball)
	checkPaddleBounce(&g.player2.Paddle, &g.ball)

	if g.ball.X+g.ball.Radius < 0 {
		g.player2.Score++
		g.resetRoundLocked(now)
	} else if g.ball.X-g.ball.Radius > FieldSize {
		g.player1.Score++
		g.resetRoundLocked(now)
	}

	var winner *Player
	var slot string
	if g.player1.Score >= ScoreLimit {
		winner, slot = g.player1, "player1"
	} else if g.player2.Score >= ScoreLimit {
		winner, slot = g.player2, "player2"
	}
	if winner != nil {
		g.ended = true
	}
	snap := g.snapshotLocked()
	g.mu.Unlock()

	if data, err := msgpack.Marshal(&snap); err == nil {
		for _, c := range g.clientList() {
			c.SendBinary(data)
		}
	}

	if winner != nil {
		g.Broadcast(Envelope{T: MsgGameOver, Data: GameOverMsg{
			Winner:         slot,
			WinnerID:       winner.ID,
			RematchTimeout: time.Now().Add(RematchGrace).UnixMilli(),
		}})
		return stepGameOver, winner, slot
	}
	return stepRunning, nil, ""
}

// updatePowerUpLocked runs the spawn/expire/collect lifecycle
func (g *Game) updatePowerUpLocked(now time.Time) {
	if g.powerUp == nil && now.Sub(g.roundStart) >= PowerUpSpawnDelay {
		g.powerUp = &PowerUp{
			X:       20 + rand.Float64()*60,
			Y:       rand.Float64() * FieldSize,
			Width:   PowerUpSize,
			Spawned: now,
		}
	}

	if g.powerUp != nil && now.Sub(g.powerUp.Spawned) >= PowerUpLifetime {
		g.powerUp = nil
	}

	if g.powerUp == nil {
		return
	}

	b := &g.ball
	pu := g.powerUp
	if b.X+b.Radius <= pu.X || b.X-b.Radius >= pu.X+pu.Width ||
		b.Y+b.Radius <= pu.Y || b.Y-b.Radius >= pu.Y+pu.Width {
		return
	}

	// Collected: the player the ball is heading toward gets a taller paddle
	affected := g.player1
	if b.VelocityX > 0 {
		affected = g.player2
	}
	if affected.Paddle.Height == PaddleHeight {
		affected.Paddle.Height = PaddleHeight * PowerUpHeightFactor
		affected.Paddle.Y = Clamp(affected.Paddle.Y, 0, FieldSize-affected.Paddle.Height)
		g.scheduleRevertLocked(affected)
	}
	g.powerUp = nil
}

// scheduleRevertLocked arms the height reversion. A timer that fires
// after teardown is canceled in Stop; the closure re-clamps so the
// paddle invariant holds at the smaller height.
func (g *Game) scheduleRevertLocked(p *Player) {
	t := time.AfterFunc(PowerUpEffectTime, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		p.Paddle.Height = PaddleHeight
		p.Paddle.Y = Clamp(p.Paddle.Y, 0, FieldSize-p.Paddle.Height)
	})
	g.reverts = append(g.reverts, t)
}

// resetRoundLocked recenters the ball at base speed with both velocity
// directions inverted, clears any power-up, and restarts the round clock
func (g *Game) resetRoundLocked(now time.Time) {
	dirX, dirY := 1.0, 1.0
	if g.ball.VelocityX > 0 {
		dirX = -1
	}
	if g.ball.VelocityY > 0 {
		dirY = -1
	}
	g.ball = NewBall()
	g.ball.VelocityX = BallInitialVX * dirX
	g.ball.VelocityY = BallInitialVY * dirY
	g.powerUp = nil
	g.roundStart = now
}

// moveBotPaddle tracks the ball's y with a dead zone around the paddle center
func moveBotPaddle(p *Paddle, b Ball) {
	center := p.Y + p.Height/2
	if center < b.Y-BotDeadZone {
		p.Y += p.Speed
	} else if center > b.Y+BotDeadZone {
		p.Y -= p.Speed
	}
	p.Y = Clamp(p.Y, 0, FieldSize-p.Height)
}

// checkPaddleBounce reflects the ball off a paddle. The bounce angle
// comes from where on the paddle the ball struck: offset from paddle
// center normalized by half the height, mapped to at most 45 degrees.
func checkPaddleBounce(p *Paddle, b *Ball) {
	if b.X+b.Radius <= p.X || b.X-b.Radius >= p.X+p.Width ||
		b.Y+b.Radius <= p.Y || b.Y-b.Radius >= p.Y+p.Height {
		return
	}

	offset := (b.Y - (p.Y + p.Height/2)) / (p.Height / 2)
	angle := math.Pi / 4 * offset
	dir := 1.0
	if b.X >= FieldSize/2 {
		dir = -1
	}
	b.VelocityX = dir * b.Speed * math.Cos(angle)
	b.VelocityY = b.Speed * math.Sin(angle)
	b.Speed = math.Min(b.Speed+BallSpeedInc, BallMaxSpeed)
}
