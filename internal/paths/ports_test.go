package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatePortConfigReturnsDistinctPorts(t *testing.T) {
	pc, err := AllocatePortConfig()
	require.NoError(t, err)

	seen := map[uint16]bool{}
	for _, p := range []uint16{pc.Shared, pc.ServerGame, pc.ServerBase, pc.ClientGame, pc.ClientBase} {
		assert.NotZero(t, p)
		assert.False(t, seen[p], "port %d was allocated twice", p)
		seen[p] = true
	}
}

func TestAllocateListenPort(t *testing.T) {
	p, err := AllocateListenPort()
	require.NoError(t, err)
	assert.NotZero(t, p)
}
