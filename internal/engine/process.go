// Package engine manages the lifecycle of one game-engine subprocess: spawn,
// connect its websocket API, and tear it down.
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	connectPollInterval = time.Second
	connectMaxAttempts  = 60
	dialTimeout         = 120 * time.Second
)

// LaunchConfig describes how to start one engine subprocess.
type LaunchConfig struct {
	ExecutablePath string
	BaseDir        string
	WorkingDir     string
	Port           uint16
}

// Process owns one spawned engine subprocess and, once connected, its
// websocket API socket. It is exclusively owned by a single player driver
// for its entire lifetime.
type Process struct {
	cmd     *exec.Cmd
	tempDir string
	port    uint16
	log     *zap.Logger

	conn *websocket.Conn

	killOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

// Launch spawns the engine binary with the arguments the API expects and
// redirects its stdout/stderr into captured pipes for diagnostics.
func Launch(cfg LaunchConfig, log *zap.Logger) (*Process, error) {
	tempDir, err := os.MkdirTemp("", "sc2-engine-*")
	if err != nil {
		return nil, errors.Wrap(err, "create engine temp dir")
	}

	args := []string{
		"-listen", "127.0.0.1",
		"-port", strconv.Itoa(int(cfg.Port)),
		"-dataDir", cfg.BaseDir,
		"-displayMode", "0",
		"-tempDir", tempDir,
	}

	cmd := exec.Command(cfg.ExecutablePath, args...)
	cmd.Dir = cfg.WorkingDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, errors.Wrap(err, "attach engine stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, errors.Wrap(err, "attach engine stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		os.RemoveAll(tempDir)
		return nil, errors.Wrapf(err, "start engine binary %q", cfg.ExecutablePath)
	}

	p := &Process{cmd: cmd, tempDir: tempDir, port: cfg.Port, log: log}
	go drainPipe(log, "stdout", stdout)
	go drainPipe(log, "stderr", stderr)
	return p, nil
}

func drainPipe(log *zap.Logger, name string, r interface{ Read([]byte) (int, error) }) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && log != nil {
			log.Debug("engine output", zap.String("stream", name), zap.ByteString("chunk", buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Connect polls for the engine's websocket API to become available,
// retrying once per second for up to 60 attempts, each with its own dial
// timeout. It returns an error if the engine never accepts a connection.
func (p *Process) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", p.port)
	var lastErr error
	for attempt := 0; attempt < connectMaxAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, "ws://"+addr+"/sc2api", nil)
		cancel()
		if err == nil {
			p.conn = conn
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectPollInterval):
		}
	}
	return errors.Wrapf(lastErr, "connect to engine at %s after %d attempts", addr, connectMaxAttempts)
}

// Conn returns the connected engine websocket, or nil before Connect
// succeeds.
func (p *Process) Conn() *websocket.Conn {
	return p.conn
}

// Kill sends a termination signal to the subprocess. It is safe to call
// more than once; only the first call has any effect. A Process without a
// backing subprocess (see NewForTesting) treats this as a no-op.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	})
}

// Wait blocks until the subprocess has exited and releases its resources.
// Like Kill, it is idempotent: a second call returns the first call's
// result without waiting again.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		if p.cmd != nil {
			p.waitErr = p.cmd.Wait()
		}
		if p.tempDir != "" {
			os.RemoveAll(p.tempDir)
		}
	})
	return p.waitErr
}

// NewForTesting wraps an already-connected websocket as a Process with no
// backing subprocess, so other packages can drive a driver loop against a
// fake engine socket without spawning the real binary.
func NewForTesting(conn *websocket.Conn) *Process {
	return &Process{conn: conn}
}

// Shutdown kills the subprocess and awaits its exit, treating either step
// as a no-op if already performed. This replaces the kill-then-wait call
// pair that, performed separately and unconditionally, double-kills an
// already-reaped process.
func (p *Process) Shutdown() error {
	p.Kill()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	return p.Wait()
}
