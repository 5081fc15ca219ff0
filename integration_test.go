package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// startTestServer spins up an httptest.Server with a Hub (no database)
// and returns the server, its WebSocket URL, and a cleanup func.
func startTestServer(t *testing.T) (*httptest.Server, string, func()) {
	t.Helper()

	prevWindow := ConfirmWindow
	ConfirmWindow = 80 * time.Millisecond

	// Minimal client dir so SPA routes resolve
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte("<html>test</html>"), 0o644)

	hub := NewHub(nil)
	go hub.Run()

	mux := SetupRoutes(hub, tmpDir)
	srv := httptest.NewServer(mux)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	return srv, wsURL, func() {
		ConfirmWindow = prevWindow
		srv.Close()
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	return conn
}

// readEnvelope reads one message from the WebSocket. Binary frames are
// msgpack-encoded snapshots and come back wrapped as gameState.
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if msgType == websocket.BinaryMessage {
		var snap GameSnapshot
		if err := msgpack.Unmarshal(raw, &snap); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		return Envelope{T: MsgGameState, Data: snap}
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

// waitFor reads messages until one of the given type arrives,
// skipping state frames and any other traffic in between.
func waitFor(t *testing.T, conn *websocket.Conn, msgType string) Envelope {
	t.Helper()
	for i := 0; i < 300; i++ {
		env := readEnvelope(t, conn)
		if env.T == msgType {
			return env
		}
	}
	t.Fatalf("no %s message within 300 reads", msgType)
	return Envelope{}
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	env := Envelope{T: msgType, Data: data}
	raw, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// dataMap extracts the Data field as map[string]interface{}.
func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	return m
}

// ---------- UUID generation ----------

func TestGenerateUUIDFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := GenerateUUID()
		if !uuidRegex.MatchString(id) {
			t.Errorf("GenerateUUID() = %q, does not match UUID v4 format", id)
		}
	}
}

func TestGenerateUUIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateUUID()
		if seen[id] {
			t.Fatalf("duplicate UUID generated: %s", id)
		}
		seen[id] = true
	}
}

// ---------- Connection lifecycle ----------

func TestWelcomeOnConnect(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	welcome := waitFor(t, c, MsgWelcome)
	m := dataMap(t, welcome)
	if pid, _ := m["playerId"].(string); pid == "" {
		t.Error("welcome carries no player id")
	}
	if name, _ := m["name"].(string); name == "" {
		t.Error("welcome carries no guest name")
	}
}

func TestSessionDeepLinkServesClient(t *testing.T) {
	srv, _, cleanup := startTestServer(t)
	defer cleanup()

	for _, path := range []string{"/", "/" + GenerateUUID()} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if !strings.Contains(string(body), "<html>") {
			t.Errorf("%s did not serve the client shell: %q", path, body)
		}
		if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
			t.Errorf("%s Cache-Control = %q, want no-cache", path, cc)
		}
	}
}

// ---------- Solo game over the wire ----------

func TestSingleplayerGameStarts(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	waitFor(t, c, MsgWelcome)

	sendMsg(t, c, MsgJoinGame, JoinGameMsg{GameMode: ModeSingle})

	started := waitFor(t, c, MsgGameStarted)
	gameID, _ := dataMap(t, started)["gameId"].(string)
	if !uuidRegex.MatchString(gameID) {
		t.Fatalf("gameStarted id %q is not a UUID", gameID)
	}

	// The tick loop pushes binary state frames
	state := waitFor(t, c, MsgGameState)
	snap, ok := state.Data.(GameSnapshot)
	if !ok {
		t.Fatalf("state payload has type %T", state.Data)
	}
	if snap.ID != gameID {
		t.Errorf("snapshot game id = %s, want %s", snap.ID, gameID)
	}
	if snap.Player2.ID != BotPlayerID {
		t.Errorf("player2 = %s, want %s", snap.Player2.ID, BotPlayerID)
	}
}

func TestMovePaddleVisibleInBroadcast(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	waitFor(t, c, MsgWelcome)

	sendMsg(t, c, MsgJoinGame, JoinGameMsg{GameMode: ModeSingle})
	started := waitFor(t, c, MsgGameStarted)
	gameID, _ := dataMap(t, started)["gameId"].(string)

	first := waitFor(t, c, MsgGameState).Data.(GameSnapshot)
	for i := 0; i < 5; i++ {
		sendMsg(t, c, MsgMovePaddle, MovePaddleMsg{GameID: gameID, Direction: "up"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := waitFor(t, c, MsgGameState).Data.(GameSnapshot)
		if snap.Player1.Paddle.Y < first.Player1.Paddle.Y {
			return
		}
	}
	t.Error("paddle moves never showed up in the broadcast")
}

func TestGetGameStateReply(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	waitFor(t, c, MsgWelcome)

	sendMsg(t, c, MsgJoinGame, JoinGameMsg{GameMode: ModeLocal})
	started := waitFor(t, c, MsgGameStarted)
	gameID, _ := dataMap(t, started)["gameId"].(string)

	sendMsg(t, c, MsgGetState, GameRefMsg{GameID: gameID})

	// The JSON reply carries the same envelope type as binary frames;
	// match on a JSON-decoded payload (map, not GameSnapshot).
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, c)
		if env.T != MsgGameState {
			continue
		}
		if m, ok := env.Data.(map[string]interface{}); ok {
			if m["gameMode"] != string(ModeLocal) {
				t.Errorf("gameMode = %v, want %s", m["gameMode"], ModeLocal)
			}
			return
		}
	}
	t.Error("no JSON gameState reply")
}

// ---------- Matchmaking over the wire ----------

func queueTwo(t *testing.T, wsURL string) (*websocket.Conn, *websocket.Conn, string) {
	t.Helper()
	c1 := dialWS(t, wsURL)
	c2 := dialWS(t, wsURL)
	waitFor(t, c1, MsgWelcome)
	waitFor(t, c2, MsgWelcome)

	sendMsg(t, c1, MsgJoinQueue, nil)
	sendMsg(t, c2, MsgJoinQueue, nil)

	waitFor(t, c1, MsgCountdown)
	waitFor(t, c2, MsgCountdown)

	found := waitFor(t, c1, MsgMatchFound)
	gameID, _ := dataMap(t, found)["gameId"].(string)
	waitFor(t, c2, MsgMatchFound)
	return c1, c2, gameID
}

func TestQueuePairsAndStartsRemoteGame(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1, c2, gameID := queueTwo(t, wsURL)
	defer c1.Close()
	defer c2.Close()

	if !uuidRegex.MatchString(gameID) {
		t.Fatalf("matchFound id %q is not a UUID", gameID)
	}

	snap := waitFor(t, c1, MsgGameState).Data.(GameSnapshot)
	if snap.Mode != ModeRemote {
		t.Errorf("mode = %s, want %s", snap.Mode, ModeRemote)
	}
	if snap.Ball.Speed != BallBaseSpeed {
		t.Errorf("ball speed = %v, want base speed %v at game start", snap.Ball.Speed, BallBaseSpeed)
	}
}

func TestRemoteRematchRejectedOverWire(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1, c2, gameID := queueTwo(t, wsURL)
	defer c1.Close()
	defer c2.Close()

	sendMsg(t, c1, MsgRematch, GameRefMsg{GameID: gameID})

	errEnv := waitFor(t, c1, MsgError)
	msg, _ := dataMap(t, errEnv)["msg"].(string)
	if !strings.Contains(msg, "Rematch not available") {
		t.Errorf("error = %q, want rematch rejection", msg)
	}
}

func TestDisconnectNotifiesOpponent(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1, c2, _ := queueTwo(t, wsURL)
	defer c2.Close()

	c1.Close()

	waitFor(t, c2, MsgDisconnected)
}

func TestQueueDuplicateJoinRejected(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	waitFor(t, c, MsgWelcome)

	sendMsg(t, c, MsgJoinQueue, nil)
	waitFor(t, c, MsgQueueStatus)

	sendMsg(t, c, MsgJoinQueue, nil)
	errEnv := waitFor(t, c, MsgError)
	msg, _ := dataMap(t, errEnv)["msg"].(string)
	if !strings.Contains(msg, "Already in queue") {
		t.Errorf("error = %q, want already-in-queue rejection", msg)
	}
}

func TestLeaveQueueGoesInactive(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	waitFor(t, c, MsgWelcome)

	sendMsg(t, c, MsgJoinQueue, nil)
	waitFor(t, c, MsgQueueStatus)

	sendMsg(t, c, MsgLeaveQueue, nil)

	// Joining emitted interim statuses; read until the terminal one.
	for i := 0; i < 5; i++ {
		status := waitFor(t, c, MsgQueueStatus)
		if s, _ := dataMap(t, status)["status"].(string); s == QueueInactive {
			return
		}
	}
	t.Errorf("queue never reported %q after leave", QueueInactive)
}
