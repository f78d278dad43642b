// Package driver runs the per-player proxy between one client socket and
// one engine socket, enforcing the arbiter's policy: debug suppression,
// frame-time accounting, race obfuscation, replay capture, and game-over
// detection.
package driver

import (
	"math"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sc2arena/matcharbiter/internal/acceptor"
	"github.com/sc2arena/matcharbiter/internal/engine"
	"github.com/sc2arena/matcharbiter/internal/gamerun"
	"github.com/sc2arena/matcharbiter/internal/protocol"
	"github.com/sc2arena/matcharbiter/internal/sc2"
)

// PlayerData is the per-player identity and engine options resolved by the
// lobby before the driver starts.
type PlayerData struct {
	Race    sc2.Race
	Name    string
	HasName bool
	Options protocol.InterfaceOptions
}

// State is the per-player runtime state handed from the lobby to the
// driver. It is exclusively owned by the driver goroutine for its entire
// lifetime; nothing else touches it concurrently.
type State struct {
	PlayerNum    int // 1 or 2
	PlayerID     uint32
	PeerPlayerID uint32
	Data         PlayerData
	Engine       *engine.Process
	Client       *websocket.Conn
	MaxFrameTime time.Duration
	MaxGameTime  uint32
	ReplayPath   string
	DisableDebug bool

	Loops          uint32
	FrameTimeTotal float64
	roundTrips     int
	Tags           []string
}

// AverageFrameTime returns the accumulated per-roundtrip time divided by
// the number of roundtrips observed; a NaN ratio (zero roundtrips) is
// reported as 0.
func (s *State) AverageFrameTime() float64 {
	if s.roundTrips == 0 {
		return 0
	}
	v := s.FrameTimeTotal / float64(s.roundTrips)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// Run drives one player's proxy loop until the match ends for that player,
// sending exactly one terminal gamerun.Message before returning. control
// carries the game runner's early-teardown signal (gamerun.Quit), forwarded
// down from the supervisor's Quit via the runner; on that signal Run shuts
// the engine down and returns without sending a message. control is checked
// only between client reads.
func Run(state *State, out chan<- gamerun.Message, control <-chan gamerun.Control, log *zap.Logger) {
	var lastRoundTripStart time.Time
	var hadRoundTrip bool
	var surrender bool

	for {
		select {
		case msg := <-control:
			switch msg.(type) {
			case gamerun.Quit:
				state.Engine.Shutdown()
				return
			}
		default:
		}

		state.Client.SetReadDeadline(time.Now().Add(state.MaxFrameTime))
		msgType, raw, err := state.Client.ReadMessage()
		if err != nil {
			state.Engine.Shutdown()
			out <- gamerun.UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return
		}

		if hadRoundTrip {
			state.FrameTimeTotal += time.Since(lastRoundTripStart).Seconds()
			state.roundTrips++
			hadRoundTrip = false
		}
		if msgType != websocket.BinaryMessage {
			state.Engine.Shutdown()
			out <- gamerun.UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return
		}
		if len(raw) > acceptor.MaxFrameSize() {
			state.Engine.Shutdown()
			out <- gamerun.UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return
		}

		req, err := protocol.ParseRequest(raw)
		if err != nil {
			state.Engine.Shutdown()
			out <- gamerun.UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return
		}

		if req.Kind == protocol.ReqDebug && state.DisableDebug {
			resp := protocol.EncodeDebugSuppressionResponse(req.ID)
			if err := state.Client.WriteMessage(websocket.BinaryMessage, resp); err != nil {
				state.Engine.Shutdown()
				out <- gamerun.UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
				return
			}
			continue
		}

		if req.Kind == protocol.ReqLeaveGame {
			surrender = true
			break
		}

		if req.Kind == protocol.ReqAction {
			for _, chat := range req.Chat {
				if tag, ok := strings.CutPrefix(chat, "Tag:"); ok {
					state.Tags = append(state.Tags, tag)
				}
			}
		}

		lastRoundTripStart = time.Now()
		if err := state.Engine.Conn().WriteMessage(websocket.BinaryMessage, raw); err != nil {
			state.Engine.Shutdown()
			out <- gamerun.SC2UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return
		}
		_, respRaw, err := state.Engine.Conn().ReadMessage()
		if err != nil {
			state.Engine.Shutdown()
			out <- gamerun.SC2UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return
		}
		hadRoundTrip = true

		respRaw, err = protocol.RewriteGameInfoRaceObfuscation(respRaw, state.PlayerID)
		if err != nil {
			state.Engine.Shutdown()
			out <- gamerun.SC2UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return
		}

		if err := state.Client.WriteMessage(websocket.BinaryMessage, respRaw); err != nil {
			state.Engine.Shutdown()
			out <- gamerun.UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return
		}

		resp, err := protocol.ParseResponse(respRaw)
		if err != nil {
			state.Engine.Shutdown()
			out <- gamerun.SC2UnexpectedConnectionClose{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return
		}

		switch resp.Kind {
		case protocol.RespQuit:
			state.saveReplay(log)
			state.Engine.Shutdown()
			out <- gamerun.QuitBeforeLeave{PlayerNum: state.PlayerNum, FrameTime: state.AverageFrameTime(), Tags: state.Tags}
			return

		case protocol.RespObservation:
			obs := resp.Observation
			if len(obs.Results) > 0 {
				state.Loops = obs.GameLoop
				results := make(map[uint32]sc2.PlayerResult, len(obs.Results))
				for _, entry := range obs.Results {
					results[entry.PlayerID] = entry.Result
				}
				state.saveReplay(log)
				state.Engine.Shutdown()
				out <- gamerun.GameOver{
					PlayerNum: state.PlayerNum,
					Results:   results,
					Loops:     obs.GameLoop,
					FrameTime: state.AverageFrameTime(),
					Tags:      state.Tags,
				}
				return
			}
			if obs.GameLoop > state.MaxGameTime {
				state.Loops = obs.GameLoop
				state.saveReplay(log)
				state.Engine.Shutdown()
				out <- gamerun.GameOver{
					PlayerNum: state.PlayerNum,
					Results: map[uint32]sc2.PlayerResult{
						state.PlayerID:     sc2.ResultTie,
						state.PeerPlayerID: sc2.ResultTie,
					},
					Loops:     obs.GameLoop,
					FrameTime: state.AverageFrameTime(),
					Tags:      state.Tags,
				}
				return
			}
		}
	}

	// Surrender path (leave_game): save the replay, then report our own
	// departure and let the game runner resolve the peer's Victory.
	if surrender {
		state.saveReplay(log)
		state.Engine.Shutdown()
		out <- gamerun.LeftGame{
			PlayerNum: state.PlayerNum,
			FrameTime: state.AverageFrameTime(),
			Tags:      state.Tags,
		}
	}
}

func (s *State) saveReplay(log *zap.Logger) {
	if s.ReplayPath == "" {
		return
	}
	req := protocol.EncodeSaveReplayRequest(0)
	if err := s.Engine.Conn().WriteMessage(websocket.BinaryMessage, req); err != nil {
		if log != nil {
			log.Warn("save_replay request failed", zap.Int("player", s.PlayerNum), zap.Error(err))
		}
		return
	}
	_, raw, err := s.Engine.Conn().ReadMessage()
	if err != nil {
		if log != nil {
			log.Warn("save_replay response read failed", zap.Int("player", s.PlayerNum), zap.Error(err))
		}
		return
	}
	resp, err := protocol.ParseResponse(raw)
	if err != nil || resp.SaveReplay == nil {
		if log != nil {
			log.Warn("save_replay response decode failed", zap.Int("player", s.PlayerNum), zap.Error(err))
		}
		return
	}
	if err := os.WriteFile(s.ReplayPath, resp.SaveReplay.Data, 0o644); err != nil && log != nil {
		log.Warn("write replay file failed", zap.String("path", s.ReplayPath), zap.Error(err))
	}
}
