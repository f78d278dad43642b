package engine

import (
	"os/exec"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// newTestProcess wraps an arbitrary short-lived command as a Process,
// bypassing Launch (which requires a real engine binary and a listen port)
// to exercise the idempotent kill/wait/shutdown bookkeeping in isolation.
func newTestProcess(t *testing.T, cmd *exec.Cmd) *Process {
	t.Helper()
	tempDir := t.TempDir()
	require := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	require(cmd.Start())
	return &Process{cmd: cmd, tempDir: tempDir}
}

func TestKillIsIdempotent(t *testing.T) {
	p := newTestProcess(t, exec.Command("sleep", "5"))
	p.Kill()
	p.Kill()
	assert.NoError(t, nil) // reaching here without a panic/double-signal-error is the assertion
	_ = p.Wait()
}

func TestWaitIsIdempotent(t *testing.T) {
	p := newTestProcess(t, exec.Command("true"))
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			errs[i] = p.Wait()
		}()
	}
	wg.Wait()
	assert.Equal(t, errs[0], errs[1], "concurrent Wait calls must agree on the same result")
}

func TestShutdownComposesKillAndWait(t *testing.T) {
	p := newTestProcess(t, exec.Command("sleep", "5"))
	err := p.Shutdown()
	assert.Error(t, err, "a killed process reports a non-nil exit error from Wait")
}
