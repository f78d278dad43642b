// Package acceptor binds the arbiter's single network endpoint and
// classifies each incoming connection as a supervisor or a bot socket.
package acceptor

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Role is the classification assigned to a newly accepted connection.
type Role int

const (
	RoleBot Role = iota
	RoleSupervisor
)

func (r Role) String() string {
	if r == RoleSupervisor {
		return "supervisor"
	}
	return "bot"
}

// maxMessageSize bounds a single incoming message (128 MiB) and is applied
// with SetReadLimit on every accepted connection. maxFrameSize is the 32 MiB
// per-frame cap; gorilla/websocket has no native notion of a frame smaller
// than a message, so it is checked by the readers of bot sockets (see
// MaxFrameSize), not by the acceptor itself.
const (
	maxMessageSize = 128 << 20
	maxFrameSize   = 32 << 20
)

// Classified is a newly accepted, role-tagged connection handed to the
// Controller. Its Conn is owned exclusively by the Controller until it is
// handed off to a lobby or driver.
type Classified struct {
	Role Role
	Conn *websocket.Conn
}

// Acceptor binds one TCP listener and pushes classified connections onto a
// bounded queue the Controller drains every tick.
type Acceptor struct {
	listener net.Listener
	upgrader websocket.Upgrader
	out      chan Classified
	log      *zap.Logger
}

// New binds addr and returns an Acceptor ready to Serve. The output channel
// has capacity 8: at most two bot sockets and one supervisor socket are
// ever expected concurrently, so a full channel can only mean the
// Controller has stopped draining; the upgrade handler of the connection
// being pushed then blocks until the Controller drains it.
func New(addr string, log *zap.Logger) (*Acceptor, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "bind acceptor listener on %q", addr)
	}
	return &Acceptor{
		listener: l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		out: make(chan Classified, 8),
		log: log,
	}, nil
}

// Out is the queue of classified connections for the Controller to drain.
func (a *Acceptor) Out() <-chan Classified {
	return a.out
}

// Close stops accepting new connections.
func (a *Acceptor) Close() error {
	return a.listener.Close()
}

// Serve accepts connections until the listener is closed, handling the
// websocket upgrade and role classification for each on its own goroutine
// so a slow or stalled handshake on one socket never blocks another.
func (a *Acceptor) Serve() {
	mux := http.NewServeMux()
	mux.HandleFunc("/sc2api", a.handleUpgrade)
	srv := &http.Server{Handler: mux}
	if err := srv.Serve(a.listener); err != nil {
		a.log.Info("acceptor stopped", zap.Error(err))
	}
}

func (a *Acceptor) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket handshake failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	role := RoleBot
	if r.Header.Get("supervisor") != "" {
		role = RoleSupervisor
	}
	a.out <- Classified{Role: role, Conn: conn}
}

// MaxFrameSize is exported so the controller's playlist reader and the
// driver's client read path can reject an oversized read before forwarding
// it, since gorilla/websocket enforces only the combined message-size limit
// natively, not a separate per-frame cap.
func MaxFrameSize() int { return maxFrameSize }
