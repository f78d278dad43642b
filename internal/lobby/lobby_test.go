package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sc2arena/matcharbiter/config"
	"github.com/sc2arena/matcharbiter/internal/protocol"
	"github.com/sc2arena/matcharbiter/internal/sc2"
)

func TestJoinReturnsReadyOnlyAfterBothPlayers(t *testing.T) {
	l := New(zap.NewNop())
	cfg := config.MatchConfig{Player1: "bot1", Player2: "bot2"}

	ready := l.Join(1, nil, protocol.JoinGameRequest{Race: sc2.RaceTerran}, 1, cfg)
	assert.False(t, ready, "lobby must not be ready with only one player joined")

	ready = l.Join(2, nil, protocol.JoinGameRequest{Race: sc2.RaceZerg}, 2, cfg)
	assert.True(t, ready, "lobby is ready once both players have joined")
}

func TestJoinAppliesValidatedRaceOverride(t *testing.T) {
	l := New(zap.NewNop())
	race := "Protoss"
	cfg := config.MatchConfig{
		Player1:      "bot1",
		Player2:      "bot2",
		ValidateRace: true,
		Player1Race:  &race,
	}

	l.Join(1, nil, protocol.JoinGameRequest{Race: sc2.RaceRandom}, 1, cfg)
	require.NotNil(t, l.players[0])
	assert.Equal(t, sc2.RaceProtoss, l.players[0].race, "a validated race override replaces the client's requested race")
}

func TestJoinArchonModeForcesRawAffectsSelectionOff(t *testing.T) {
	l := New(zap.NewNop())
	cfg := config.MatchConfig{Player1: "bot1", Player2: "bot2", Archon: true}

	opts := protocol.InterfaceOptions{RawAffectsSelection: true}
	l.Join(1, nil, protocol.JoinGameRequest{Race: sc2.RaceTerran, Options: opts}, 1, cfg)

	require.NotNil(t, l.players[0])
	assert.False(t, l.players[0].options.RawAffectsSelection, "Archon mode forces RawAffectsSelection off regardless of the client's request")
}

func TestStartBeforeBothJoinedFails(t *testing.T) {
	l := New(zap.NewNop())
	_, err := l.Start(nil, config.MatchConfig{}, zap.NewNop())
	assert.Error(t, err)
}
