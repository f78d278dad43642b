package acceptor

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAcceptorClassifiesBySupervisorHeader(t *testing.T) {
	a, err := New("127.0.0.1:0", zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	go a.Serve()

	addr := a.listener.Addr().String()

	botConn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/sc2api", nil)
	require.NoError(t, err)
	defer botConn.Close()

	header := http.Header{}
	header.Set("supervisor", "1")
	supConn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/sc2api", header)
	require.NoError(t, err)
	defer supConn.Close()

	seen := map[Role]bool{}
	for i := 0; i < 2; i++ {
		select {
		case classified := <-a.Out():
			seen[classified.Role] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for classified connection")
		}
	}
	assert.True(t, seen[RoleBot])
	assert.True(t, seen[RoleSupervisor])
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "bot", RoleBot.String())
	assert.Equal(t, "supervisor", RoleSupervisor.String())
}
