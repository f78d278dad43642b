package driver

import (
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sc2arena/matcharbiter/internal/engine"
	"github.com/sc2arena/matcharbiter/internal/gamerun"
	"github.com/sc2arena/matcharbiter/internal/protocol"
)

func TestAverageFrameTimeZeroRoundTrips(t *testing.T) {
	s := &State{}
	if got := s.AverageFrameTime(); got != 0 {
		t.Fatalf("AverageFrameTime() with no roundtrips = %v, want 0", got)
	}
}

func TestAverageFrameTimeComputesMean(t *testing.T) {
	s := &State{FrameTimeTotal: 3.0, roundTrips: 2}
	if got := s.AverageFrameTime(); got != 1.5 {
		t.Fatalf("AverageFrameTime() = %v, want 1.5", got)
	}
}

// newWSPair returns both ends of one real websocket connection: the
// upgrade-side (server) and the dial-side (client). Used to stand in for
// both the bot<->driver and driver<->engine socket pairs.
func newWSPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return <-connCh, c
}

func requestFrame(kind protocol.RequestKind, id uint32, payload []byte) []byte {
	buf := make([]byte, 9+len(payload))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], id)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(payload)))
	copy(buf[9:], payload)
	return buf
}

func observationFrame(id uint32, gameLoop uint32, results map[uint32]byte) []byte {
	payload := make([]byte, 4, 5+len(results)*5)
	binary.BigEndian.PutUint32(payload[0:4], gameLoop)
	payload = append(payload, byte(len(results)))
	for pid, res := range results {
		entry := make([]byte, 5)
		binary.BigEndian.PutUint32(entry[0:4], pid)
		entry[4] = res
		payload = append(payload, entry...)
	}
	buf := make([]byte, 9+len(payload))
	buf[0] = byte(protocol.RespObservation)
	binary.BigEndian.PutUint32(buf[1:5], id)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(payload)))
	copy(buf[9:], payload)
	return buf
}

func newTestState(botConn, engineConn *websocket.Conn) *State {
	return &State{
		PlayerNum:    1,
		PlayerID:     1,
		PeerPlayerID: 2,
		Engine:       engine.NewForTesting(engineConn),
		Client:       botConn,
		MaxFrameTime: 5 * time.Second,
		MaxGameTime:  1000,
	}
}

// TestRunAccumulatesFrameTimeAfterClientAwait guards against regressing to
// measuring the engine's round-trip latency instead of the client's
// think-time: the accounting window must be closed when the client's next
// request arrives (spec step 1), not right after the previous engine
// round-trip finished.
func TestRunAccumulatesFrameTimeAfterClientAwait(t *testing.T) {
	botServer, bot := newWSPair(t)
	engineServer, engineClient := newWSPair(t)
	defer engineServer.Close()
	defer botServer.Close()

	state := newTestState(botServer, engineClient)
	out := make(chan gamerun.Message, 1)
	control := make(chan gamerun.Control, 1)

	think := 60 * time.Millisecond

	go func() {
		// The fake engine always replies immediately; any measured delay
		// must come from the bot's own think-time below, not from here.
		_, _, err := engineServer.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, engineServer.WriteMessage(websocket.BinaryMessage, observationFrame(1, 1, nil)))

		_, _, err = engineServer.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, engineServer.WriteMessage(websocket.BinaryMessage, observationFrame(2, 2, map[uint32]byte{1: 0, 2: 1})))
	}()

	go Run(state, out, control, nil)

	require.NoError(t, bot.WriteMessage(websocket.BinaryMessage, requestFrame(protocol.ReqOther, 1, nil)))
	_, _, err := bot.ReadMessage()
	require.NoError(t, err)

	// The bot "thinks" before sending its next request; this gap is what
	// frame-time accounting is meant to capture, bracketing the client's
	// own think-time rather than just the engine's round-trip latency.
	time.Sleep(think)

	require.NoError(t, bot.WriteMessage(websocket.BinaryMessage, requestFrame(protocol.ReqOther, 2, nil)))
	_, _, err = bot.ReadMessage()
	require.NoError(t, err)

	select {
	case msg := <-out:
		gameOver, ok := msg.(gamerun.GameOver)
		require.True(t, ok, "expected a GameOver message, got %T", msg)
		assert.GreaterOrEqual(t, gameOver.FrameTime, think.Seconds()/2,
			"frame time must reflect the client's think-time, not just the engine's near-instant reply")
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not report a terminal message in time")
	}
}

// TestRunSurrenderReportsLeftGame covers the leave_game path: the driver
// must stop forwarding to the engine and report its own departure, leaving
// the peer's Victory to the game runner to resolve.
func TestRunSurrenderReportsLeftGame(t *testing.T) {
	botServer, bot := newWSPair(t)
	engineServer, engineClient := newWSPair(t)
	defer engineServer.Close()
	defer botServer.Close()

	state := newTestState(botServer, engineClient)
	state.Tags = []string{"Tag:gg"}
	out := make(chan gamerun.Message, 1)
	control := make(chan gamerun.Control, 1)

	go Run(state, out, control, nil)

	require.NoError(t, bot.WriteMessage(websocket.BinaryMessage, requestFrame(protocol.ReqLeaveGame, 1, nil)))

	select {
	case msg := <-out:
		left, ok := msg.(gamerun.LeftGame)
		require.True(t, ok, "expected a LeftGame message, got %T", msg)
		assert.Equal(t, 1, left.PlayerNum)
		assert.Equal(t, []string{"Tag:gg"}, left.Tags)
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not report surrender in time")
	}
}
