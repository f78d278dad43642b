package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sc2arena/matcharbiter/internal/sc2"
)

func TestParseMatchConfig(t *testing.T) {
	payload := []byte(`{
		"Map": "AcidPlantLE",
		"MaxGameTime": 60480,
		"MaxFrameTime": 40,
		"Player1": "bot1",
		"Player2": "bot2",
		"ValidateRace": true,
		"Player1Race": "Zerg",
		"Archon": false
	}`)

	cfg, err := ParseMatchConfig(payload)
	require.NoError(t, err)
	assert.Equal(t, "AcidPlantLE", cfg.Map)
	assert.Equal(t, uint32(60480), cfg.MaxGameTime)
	assert.Equal(t, "bot1", cfg.Player1)

	race, ok := cfg.Player1BotRace()
	require.True(t, ok)
	assert.Equal(t, sc2.RaceZerg, race)

	_, ok = cfg.Player2BotRace()
	assert.False(t, ok, "no Player2Race was supplied")
}

func TestPlayerBotRaceIgnoredWithoutValidateRace(t *testing.T) {
	cfg := MatchConfig{ValidateRace: false, Player1Race: strPtr("Terran")}
	_, ok := cfg.Player1BotRace()
	assert.False(t, ok, "race overrides only apply when ValidateRace is set")
}

func TestMatchConfigMarshalRoundTrip(t *testing.T) {
	cfg := MatchConfig{Map: "map", Player1: "a", Player2: "b", MatchID: 7}
	data, err := cfg.Marshal()
	require.NoError(t, err)

	decoded, err := ParseMatchConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, decoded)
}

func strPtr(s string) *string { return &s }
