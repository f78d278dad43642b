package match

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sc2arena/matcharbiter/internal/sc2"
)

func TestNewResult(t *testing.T) {
	r := New(123, "AcidPlantLE", "/replays/foo.SC2Replay", "bot1", "bot2",
		sc2.ResultVictory, sc2.ResultDefeat, uint32(4032), 1.5, 2.25, []string{"Tag:rush"}, nil)

	assert.Equal(t, int64(123), r.MatchID)
	assert.Equal(t, "Victory", r.Result["bot1"])
	assert.Equal(t, "Defeat", r.Result["bot2"])
	assert.Equal(t, "00:03:00", r.GameTimeFormatted)
	assert.InDelta(t, 1.5, r.AverageFrameTime["bot1"], 0.0001)
	assert.Equal(t, []string{"Tag:rush"}, r.Tags["bot1"])
	assert.Empty(t, r.Tags["bot2"], "nil tags are reported as an empty, not nil, slice")
}

func TestNewResultCoercesNaNFrameTime(t *testing.T) {
	r := New(1, "map", "", "a", "b", sc2.ResultTie, sc2.ResultTie, 0, math.NaN(), 0, nil, nil)
	assert.Equal(t, float64(0), r.AverageFrameTime["a"])
}

func TestQuitRequestResult(t *testing.T) {
	r := QuitRequest(5, "map", "a", "b")
	assert.Equal(t, "QuitRequest", r.Status)
	assert.Empty(t, r.Result, "a QuitRequest result has no per-player outcomes")
	assert.Equal(t, "a", r.Bots["1"])
	assert.Equal(t, "b", r.Bots["2"])
}

func TestResultMarshalsToJSON(t *testing.T) {
	r := New(1, "map", "", "a", "b", sc2.ResultVictory, sc2.ResultDefeat, 224, 0, 0, nil, nil)
	data, err := r.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "map", decoded["Map"])
}
