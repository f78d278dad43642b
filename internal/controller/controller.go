// Package controller implements the arbiter's top-level state machine: it
// owns the supervisor and client sockets, the lobby, and the running game,
// and drives all of them from a single cooperative polling loop.
package controller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sc2arena/matcharbiter/config"
	"github.com/sc2arena/matcharbiter/internal/acceptor"
	"github.com/sc2arena/matcharbiter/internal/engine"
	"github.com/sc2arena/matcharbiter/internal/lobby"
	"github.com/sc2arena/matcharbiter/internal/match"
	"github.com/sc2arena/matcharbiter/internal/protocol"
)

// State is one phase of the Controller's match lifecycle.
type State int

const (
	StateIdle State = iota
	StateConfiguring
	StateReady
	StateAssembling
	StateRunning
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateReady:
		return "ready"
	case StateAssembling:
		return "assembling"
	case StateRunning:
		return "running"
	case StateReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

type botFrame struct {
	data []byte
	err  error
}

type playlistClient struct {
	playerNum  int
	conn       *websocket.Conn
	frames     <-chan botFrame
	joinedGame bool
}

func spawnBotReader(conn *websocket.Conn) <-chan botFrame {
	ch := make(chan botFrame, 4)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				ch <- botFrame{err: err}
				return
			}
			if len(data) > acceptor.MaxFrameSize() {
				ch <- botFrame{err: errors.Errorf("frame of %d bytes exceeds the %d byte per-frame cap", len(data), acceptor.MaxFrameSize())}
				return
			}
			ch <- botFrame{data: data}
		}
	}()
	return ch
}

// Controller is the single-instance top-level state machine.
type Controller struct {
	log         *zap.Logger
	acceptorOut <-chan acceptor.Classified
	tick        time.Duration
	baseDir     string

	state            State
	supervisorConn   *websocket.Conn
	supervisorEvents chan SupervisorEvent

	cfg      *config.MatchConfig
	clients  [2]*playlistClient
	lobbyRef *lobby.Lobby
	game     *lobby.Game

	buildInfo func() (protocol.BuildInfo, error)
}

// New constructs a Controller. acceptorOut is the acceptor's output queue;
// baseDir is the resolved engine installation root used to read build info
// lazily on the first Pong reply.
func New(acceptorOut <-chan acceptor.Classified, tick time.Duration, baseDir string, log *zap.Logger) *Controller {
	return &Controller{
		log:         log,
		acceptorOut: acceptorOut,
		tick:        tick,
		baseDir:     baseDir,
		state:       StateIdle,
		lobbyRef:    lobby.New(log),
		buildInfo:   engine.NewBuildInfoReader(baseDir),
	}
}

// Run drives the main loop until ctx is canceled or a ForceQuit event is
// received from the supervisor.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			return
		case classified := <-c.acceptorOut:
			c.handleClassified(classified)
		case ev := <-c.maybeSupervisorEvents():
			if !c.handleSupervisorEvent(ev) {
				c.teardown()
				return
			}
		case <-ticker.C:
			c.tickOnce(ctx)
		}
	}
}

// maybeSupervisorEvents returns the current supervisor event channel, or a
// nil channel (which blocks forever in a select) when no supervisor is
// bound yet.
func (c *Controller) maybeSupervisorEvents() chan SupervisorEvent {
	return c.supervisorEvents
}

func (c *Controller) handleClassified(cl acceptor.Classified) {
	if cl.Role == acceptor.RoleSupervisor {
		if c.supervisorConn != nil {
			c.log.Warn("replacing already-bound supervisor connection")
			c.supervisorConn.Close()
		}
		c.supervisorConn = cl.Conn
		c.supervisorEvents = make(chan SupervisorEvent, 8)
		go runSupervisorListener(c.supervisorConn, c.supervisorEvents, c.log)
		c.writeSupervisorText(`{"Status":"Connected"}`)
		if c.state == StateIdle {
			c.state = StateConfiguring
		}
		return
	}

	if c.supervisorConn == nil {
		cl.Conn.Close()
		return
	}
	if c.cfg == nil {
		panic("controller: bot connection received before match config")
	}
	slot := -1
	for i, existing := range c.clients {
		if existing == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		cl.Conn.Close()
		return
	}
	c.clients[slot] = &playlistClient{
		playerNum: slot + 1,
		conn:      cl.Conn,
		frames:    spawnBotReader(cl.Conn),
	}
	cl.Conn.WriteMessage(websocket.TextMessage, []byte(`{"Bot":"Connected"}`))
	if c.state == StateReady {
		c.state = StateAssembling
	}
}

func (c *Controller) handleSupervisorEvent(ev SupervisorEvent) bool {
	switch e := ev.(type) {
	case EventConfig:
		cfg, err := config.ParseMatchConfig(e.Payload)
		if err != nil {
			c.log.Warn("failed to parse supervisor config", zap.Error(err))
			return true
		}
		if cfg.MatchID == 0 {
			cfg.MatchID = int64(uuid.New().ID())
		}
		c.cfg = &cfg
		if c.state == StateConfiguring {
			c.state = StateReady
		}
		c.writeSupervisorText(`{"Config":"Received"}`)

	case EventReceived:
		c.log.Debug("supervisor acknowledged")

	case EventQuit:
		c.teardown()
		c.writeSupervisorText("Reset")
		c.supervisorConn = nil
		c.state = StateIdle

	case EventForceQuit:
		return false

	case EventPing:
		if c.supervisorConn != nil {
			_ = c.supervisorConn.WriteControl(websocket.PongMessage, e.Payload, time.Now().Add(time.Second))
		}
	}
	return true
}

func (c *Controller) tickOnce(ctx context.Context) {
	for i, cl := range c.clients {
		if cl == nil || cl.joinedGame {
			continue
		}
		select {
		case frame := <-cl.frames:
			if frame.err != nil {
				c.clients[i] = nil
				continue
			}
			c.handlePlaylistMessage(ctx, i, frame.data)
		default:
		}
	}

	if c.game != nil {
		select {
		case result := <-c.game.ResultCh:
			c.reportResult(result)
			c.resetMatch()
		default:
		}
	}
}

func (c *Controller) handlePlaylistMessage(ctx context.Context, slot int, data []byte) {
	cl := c.clients[slot]
	req, err := protocol.ParseRequest(data)
	if err != nil {
		c.kick(slot)
		return
	}

	switch req.Kind {
	case protocol.ReqQuit:
		resp := protocol.EncodeQuitResponse(req.ID)
		cl.conn.WriteMessage(websocket.BinaryMessage, resp)
		cl.conn.Close()
		c.clients[slot] = nil

	case protocol.ReqPing:
		info, err := c.buildInfo()
		if err != nil {
			c.log.Warn("build info unavailable for pong reply", zap.Error(err))
			info = protocol.BuildInfo{}
		}
		resp := protocol.EncodePingResponse(req.ID, info)
		cl.conn.WriteMessage(websocket.BinaryMessage, resp)

	case protocol.ReqJoinGame:
		if cl.joinedGame {
			c.kick(slot)
			return
		}
		cl.joinedGame = true
		ready := c.lobbyRef.Join(slot+1, cl.conn, *req.JoinGame, req.ID, *c.cfg)
		if ready {
			game, err := c.lobbyRef.Start(ctx, *c.cfg, c.log)
			if err != nil {
				c.log.Error("lobby handshake failed", zap.Int64("match_id", c.cfg.MatchID), zap.Error(err))
				c.resetMatch()
				return
			}
			c.game = game
			c.lobbyRef = lobby.New(c.log)
			c.state = StateRunning
		} else {
			c.state = StateAssembling
		}

	default:
		c.kick(slot)
	}
}

func (c *Controller) kick(slot int) {
	if c.clients[slot] == nil {
		return
	}
	c.clients[slot].conn.Close()
	c.clients[slot] = nil
}

func (c *Controller) reportResult(result match.Result) {
	c.state = StateReporting
	if c.supervisorConn == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		c.log.Error("failed to marshal match result", zap.Error(err))
		return
	}
	if err := c.supervisorConn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("failed to write match result to supervisor", zap.Error(err))
	}
}

func (c *Controller) resetMatch() {
	c.game = nil
	c.cfg = nil
	c.clients = [2]*playlistClient{}
	c.lobbyRef = lobby.New(c.log)
	if c.supervisorConn != nil {
		c.state = StateConfiguring
	} else {
		c.state = StateIdle
	}
}

// teardown aborts any running game and closes every client socket the
// Controller still holds, used for both a supervisor Quit and an external
// shutdown. The supervisor socket is left open.
func (c *Controller) teardown() {
	if c.game != nil {
		c.game.Abort()
		select {
		case <-c.game.ResultCh:
		case <-time.After(5 * time.Second):
		}
		c.game = nil
	}
	for i, cl := range c.clients {
		if cl != nil {
			cl.conn.Close()
			c.clients[i] = nil
		}
	}
	c.cfg = nil
	c.lobbyRef = lobby.New(c.log)
}

func (c *Controller) writeSupervisorText(text string) {
	if c.supervisorConn == nil {
		return
	}
	if err := c.supervisorConn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		c.log.Warn("failed to write to supervisor", zap.Error(err))
	}
}
