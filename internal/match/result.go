// Package match builds the JSON result record the arbiter reports to the
// supervisor at the end of every match.
package match

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// LoopsPerSecond is the engine's fixed simulation rate, used to convert a
// game-loop count into wall-clock seconds.
const LoopsPerSecond = 22.4

// Result is the terminal JSON report sent to the supervisor. Field names
// and casing match the supervisor-facing schema exactly.
type Result struct {
	MatchID           int64               `json:"MatchID"`
	Result            map[string]string   `json:"Result"`
	GameTime          uint32              `json:"GameTime"`
	GameTimeSeconds   float64             `json:"GameTimeSeconds"`
	GameTimeFormatted string              `json:"GameTimeFormatted"`
	AverageFrameTime  map[string]float64  `json:"AverageFrameTime"`
	Status            string              `json:"Status"`
	Bots              map[string]string   `json:"Bots"`
	Map               string              `json:"Map"`
	ReplayPath        string              `json:"ReplayPath"`
	Tags              map[string][]string `json:"Tags"`
}

// New builds a Result from per-player data. player1Name/player2Name key the
// Result, AverageFrameTime and Tags maps; player1Result/player2Result are
// the respective final outcomes.
func New(matchID int64, mapName, replayPath string, player1Name, player2Name string, player1Result, player2Result fmt.Stringer, loops uint32, player1FrameTime, player2FrameTime float64, player1Tags, player2Tags []string) Result {
	return Result{
		MatchID: matchID,
		Result: map[string]string{
			player1Name: player1Result.String(),
			player2Name: player2Result.String(),
		},
		GameTime:          loops,
		GameTimeSeconds:   float64(loops) / LoopsPerSecond,
		GameTimeFormatted: formatGameTime(loops),
		AverageFrameTime: map[string]float64{
			player1Name: coerceFrameTime(player1FrameTime),
			player2Name: coerceFrameTime(player2FrameTime),
		},
		Status: "Complete",
		Bots: map[string]string{
			"1": player1Name,
			"2": player2Name,
		},
		Map:        mapName,
		ReplayPath: replayPath,
		Tags: map[string][]string{
			player1Name: nonNilTags(player1Tags),
			player2Name: nonNilTags(player2Tags),
		},
	}
}

// QuitRequest builds the terminal report sent when the supervisor issues a
// Quit before the match completes: the Result map carries no per-player
// outcomes, and the status is "QuitRequest".
func QuitRequest(matchID int64, mapName string, player1Name, player2Name string) Result {
	return Result{
		MatchID: matchID,
		Result:  map[string]string{},
		Status:  "QuitRequest",
		Bots: map[string]string{
			"1": player1Name,
			"2": player2Name,
		},
		Map:              mapName,
		AverageFrameTime: map[string]float64{},
		Tags:             map[string][]string{},
	}
}

// coerceFrameTime maps a NaN (seen when a player observed zero loops, 0/0)
// average down to 0, per the frame-time reporting invariant.
func coerceFrameTime(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func formatGameTime(loops uint32) string {
	totalSeconds := int(float64(loops) / LoopsPerSecond)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Marshal encodes the result as the JSON bytes sent to the supervisor.
func (r Result) Marshal() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "marshal match result")
	}
	return b, nil
}
