// Package lobby performs the two-phase create-game/join-game handshake
// across both players and hands the result off to a running game.
package lobby

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sc2arena/matcharbiter/config"
	"github.com/sc2arena/matcharbiter/internal/driver"
	"github.com/sc2arena/matcharbiter/internal/engine"
	"github.com/sc2arena/matcharbiter/internal/gamerun"
	"github.com/sc2arena/matcharbiter/internal/match"
	"github.com/sc2arena/matcharbiter/internal/paths"
	"github.com/sc2arena/matcharbiter/internal/protocol"
	"github.com/sc2arena/matcharbiter/internal/sc2"
)

// pendingPlayer is what the Lobby knows about one player before the
// handshake starts.
type pendingPlayer struct {
	name       string
	race       sc2.Race
	options    protocol.InterfaceOptions
	clientConn *websocket.Conn
	joinReqID  uint32
}

// Lobby holds up to two pending players until both have requested to join,
// then drives the create-game/join-game handshake.
type Lobby struct {
	players [2]*pendingPlayer
	log     *zap.Logger
}

// New returns an empty Lobby.
func New(log *zap.Logger) *Lobby {
	return &Lobby{log: log}
}

// Join records one player's join request. playerNum is 1 or 2, fixed by
// enrollment order. It returns true once both players have joined and the
// handshake is ready to start.
func (l *Lobby) Join(playerNum int, clientConn *websocket.Conn, joinReq protocol.JoinGameRequest, joinReqID uint32, cfg config.MatchConfig) bool {
	name := cfg.Player1
	raceOverride, hasOverride := cfg.Player1BotRace()
	if playerNum == 2 {
		name = cfg.Player2
		raceOverride, hasOverride = cfg.Player2BotRace()
	}

	race := joinReq.Race
	if hasOverride {
		race = raceOverride
	}

	opts := joinReq.Options
	opts.RawAffectsSelection = !cfg.Archon

	l.players[playerNum-1] = &pendingPlayer{
		name:       name,
		race:       race,
		options:    opts,
		clientConn: clientConn,
		joinReqID:  joinReqID,
	}
	return l.players[0] != nil && l.players[1] != nil
}

// Game is the handed-off result of a successful handshake: a running match
// the Controller can poll for completion or abort early.
type Game struct {
	ResultCh chan match.Result
	control  chan gamerun.Control
}

// Abort instructs the running game to stop waiting for driver outcomes and
// report a QuitRequest result immediately.
func (g *Game) Abort() {
	select {
	case g.control <- gamerun.Quit{}:
	default:
	}
}

// Start launches both engines, performs create-game then join-game, and on
// success spawns the game runner and both player drivers, returning a
// handle the Controller polls for the final result. On any handshake
// failure all spawned engines are killed and the error is returned.
func (l *Lobby) Start(ctx context.Context, cfg config.MatchConfig, log *zap.Logger) (*Game, error) {
	players := l.players
	if players[0] == nil || players[1] == nil {
		return nil, errors.New("lobby: start called before both players joined")
	}

	execPath, err := paths.ExecutablePath()
	if err != nil {
		return nil, errors.Wrap(err, "resolve engine executable")
	}
	baseDir := paths.BaseDir()
	cwd := paths.CwdDir()

	procs := make([]*engine.Process, 2)
	launch := func(i int, port uint16) error {
		p, err := engine.Launch(engine.LaunchConfig{
			ExecutablePath: execPath,
			BaseDir:        baseDir,
			WorkingDir:     cwd,
			Port:           port,
		}, log)
		if err != nil {
			return errors.Wrapf(err, "launch engine for player %d", i+1)
		}
		if err := p.Connect(ctx); err != nil {
			p.Shutdown()
			return errors.Wrapf(err, "connect engine for player %d", i+1)
		}
		procs[i] = p
		return nil
	}

	ports, err := pickEnginePorts()
	if err != nil {
		return nil, errors.Wrap(err, "pick engine listen ports")
	}

	if cfg.LightMode {
		for i, port := range ports {
			if err := launch(i, port); err != nil {
				killAll(procs)
				return nil, err
			}
		}
	} else {
		g, _ := errgroup.WithContext(ctx)
		for i, port := range ports {
			i, port := i, port
			g.Go(func() error { return launch(i, port) })
		}
		if err := g.Wait(); err != nil {
			killAll(procs)
			return nil, err
		}
	}

	mapPath, err := paths.FindMap(cfg.Map)
	if err != nil {
		killAll(procs)
		return nil, errors.Wrap(err, "resolve map")
	}

	setups := make([]protocol.PlayerSetup, len(players))
	for i := range players {
		setups[i] = protocol.PlayerSetup{Participant: true}
	}
	createReq := protocol.EncodeCreateGameRequest(1, mapPath, cfg.RealTime, setups)
	if err := procs[0].Conn().WriteMessage(websocket.BinaryMessage, createReq); err != nil {
		killAll(procs)
		return nil, errors.Wrap(err, "send create_game")
	}
	_, createRaw, err := procs[0].Conn().ReadMessage()
	if err != nil {
		killAll(procs)
		return nil, errors.Wrap(err, "read create_game response")
	}
	createResp, err := protocol.ParseResponse(createRaw)
	if err != nil {
		killAll(procs)
		return nil, errors.Wrap(err, "parse create_game response")
	}
	if createResp.CreateGame != nil && createResp.CreateGame.HasError {
		killAll(procs)
		return nil, errors.Errorf("create_game failed: %s", createResp.CreateGame.Error)
	}

	portConfig, err := paths.AllocatePortConfig()
	if err != nil {
		killAll(procs)
		return nil, errors.Wrap(err, "allocate port config")
	}

	// Dispatch both join requests before awaiting either response, per the
	// engine's port-synchronization semantics (both sides must see the
	// join before either can proceed).
	for i, p := range players {
		req := protocol.EncodeJoinGameRequest(p.joinReqID, p.race, p.name, p.options, &portConfig)
		if err := procs[i].Conn().WriteMessage(websocket.BinaryMessage, req); err != nil {
			killAll(procs)
			return nil, errors.Wrapf(err, "send join_game for player %d", i+1)
		}
	}

	joinResps := make([]protocol.Response, 2)
	for i := range players {
		_, raw, err := procs[i].Conn().ReadMessage()
		if err != nil {
			killAll(procs)
			return nil, errors.Wrapf(err, "read join_game response for player %d", i+1)
		}
		resp, err := protocol.ParseResponse(raw)
		if err != nil {
			killAll(procs)
			return nil, errors.Wrapf(err, "parse join_game response for player %d", i+1)
		}
		if resp.JoinGame == nil || resp.JoinGame.HasError {
			killAll(procs)
			return nil, errors.Errorf("join_game failed for player %d", i+1)
		}
		joinResps[i] = resp
		if err := players[i].clientConn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
			killAll(procs)
			return nil, errors.Wrapf(err, "forward join_game response to player %d", i+1)
		}
	}

	slots := [2]gamerun.PlayerSlot{
		{Name: players[0].name, PlayerID: joinResps[0].JoinGame.PlayerID},
		{Name: players[1].name, PlayerID: joinResps[1].JoinGame.PlayerID},
	}
	runner := gamerun.New(slots, cfg.MatchID, cfg.Map, cfg.ReplayPath, log)

	msgs := make(chan gamerun.Message, 4)
	control := make(chan gamerun.Control, 1)
	resultCh := make(chan match.Result, 1)

	playerControls := [2]chan gamerun.Control{
		make(chan gamerun.Control, 1),
		make(chan gamerun.Control, 1),
	}
	sendControls := [2]chan<- gamerun.Control{playerControls[0], playerControls[1]}

	go func() {
		resultCh <- runner.Run(msgs, control, sendControls)
	}()

	for i := range players {
		peer := 1 - i
		state := &driver.State{
			PlayerNum:    i + 1,
			PlayerID:     joinResps[i].JoinGame.PlayerID,
			PeerPlayerID: joinResps[peer].JoinGame.PlayerID,
			Data: driver.PlayerData{
				Race:    players[i].race,
				Name:    players[i].name,
				HasName: players[i].name != "",
				Options: players[i].options,
			},
			Engine:       procs[i],
			Client:       players[i].clientConn,
			MaxFrameTime: time.Duration(cfg.MaxFrameTime) * time.Second,
			MaxGameTime:  cfg.MaxGameTime,
			ReplayPath:   cfg.ReplayPath,
			DisableDebug: cfg.DisableDebug,
		}
		go driver.Run(state, msgs, playerControls[i], log)
	}

	return &Game{ResultCh: resultCh, control: control}, nil
}

func killAll(procs []*engine.Process) {
	for _, p := range procs {
		if p != nil {
			p.Shutdown()
		}
	}
}

func pickEnginePorts() ([2]uint16, error) {
	var ports [2]uint16
	for i := range ports {
		p, err := paths.AllocateListenPort()
		if err != nil {
			return ports, err
		}
		ports[i] = p
	}
	return ports, nil
}
