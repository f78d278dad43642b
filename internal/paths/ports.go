package paths

import (
	"net"

	"github.com/pkg/errors"
	"github.com/sc2arena/matcharbiter/internal/protocol"
)

// AllocatePortConfig picks five distinct, currently-unused TCP ports for a
// multiplayer join_game request. No dedicated port-picker library appears
// anywhere in the retrieved example pack (grep across other_examples'
// manifests turned up none), so this binds ephemeral listeners via the
// standard library and closes them immediately, the same technique
// net/http's httptest package uses internally to find a free port.
func AllocatePortConfig() (protocol.PortConfig, error) {
	ports := make([]uint16, 0, 5)
	seen := make(map[uint16]bool, 5)
	for len(ports) < 5 {
		p, err := pickUnusedPort()
		if err != nil {
			return protocol.PortConfig{}, errors.Wrap(err, "allocate port config")
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		ports = append(ports, p)
	}
	return protocol.PortConfig{
		Shared:     ports[0],
		ServerGame: ports[1],
		ServerBase: ports[2],
		ClientGame: ports[3],
		ClientBase: ports[4],
	}, nil
}

// AllocateListenPort picks one currently-unused TCP port for an engine
// subprocess's own `-port` websocket listen argument, distinct from the
// five ports a join_game request carries.
func AllocateListenPort() (uint16, error) {
	return pickUnusedPort()
}

func pickUnusedPort() (uint16, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return uint16(l.Addr().(*net.TCPAddr).Port), nil
}
