package sc2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBotRace(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  Race
	}{
		{"letter P", "p", RaceProtoss},
		{"letter T upper", "T", RaceTerran},
		{"full name", "zerg", RaceZerg},
		{"dotted form", "race.Protoss", RaceProtoss},
		{"digit form", "2", RaceZerg},
		{"unknown falls back to random", "nonsense", RaceRandom},
		{"empty falls back to random", "", RaceRandom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBotRace(tt.token))
		})
	}
}

func TestFromWireResult(t *testing.T) {
	assert.Equal(t, ResultVictory, FromWireResult(0))
	assert.Equal(t, ResultDefeat, FromWireResult(1))
	assert.Equal(t, ResultTie, FromWireResult(2))
	assert.Equal(t, ResultTie, FromWireResult(99), "unrecognized wire codes default to Tie")
}

func TestRaceString(t *testing.T) {
	assert.Equal(t, "Terran", RaceTerran.String())
	assert.Equal(t, "Random", RaceRandom.String())
}
