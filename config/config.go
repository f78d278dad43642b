// Package config holds the two configuration surfaces the arbiter deals
// with: MatchConfig, the JSON document a supervisor submits to describe one
// match, and ServerConfig, the process-level settings the arbiter itself is
// started with.
package config

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sc2arena/matcharbiter/internal/sc2"
)

// MatchConfig is the JSON document a supervisor submits over the control
// socket to describe the match about to be played.
type MatchConfig struct {
	Map          string  `json:"Map"`
	MaxGameTime  uint32  `json:"MaxGameTime"`
	MaxFrameTime int32   `json:"MaxFrameTime"`
	Strikes      int32   `json:"Strikes"`
	Player1      string  `json:"Player1"`
	Player2      string  `json:"Player2"`
	ReplayPath   string  `json:"ReplayPath"`
	MatchID      int64   `json:"MatchID"`
	ReplayName   string  `json:"ReplayName"`
	DisableDebug bool    `json:"DisableDebug"`
	RealTime     bool    `json:"RealTime"`
	LightMode    bool    `json:"LightMode"`
	ValidateRace bool    `json:"ValidateRace"`
	Player1Race  *string `json:"Player1Race"`
	Player2Race  *string `json:"Player2Race"`
	Archon       bool    `json:"Archon"`

	// Visualize is carried for JSON round-trip fidelity with real
	// supervisor payloads. Nothing in this repo reads it, matching the
	// original engine launcher, which never wired it to behavior either.
	Visualize bool `json:"Visualize"`
}

// ParseMatchConfig decodes a supervisor-submitted JSON payload.
func ParseMatchConfig(payload []byte) (MatchConfig, error) {
	var cfg MatchConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return MatchConfig{}, errors.Wrap(err, "parse match config")
	}
	return cfg, nil
}

// Marshal re-encodes the config, used only by round-trip tests.
func (c MatchConfig) Marshal() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "marshal match config")
	}
	return b, nil
}

// Player1BotRace resolves the validated race override for player 1, if
// ValidateRace is set and a race token was supplied.
func (c MatchConfig) Player1BotRace() (sc2.Race, bool) {
	return resolveRace(c.ValidateRace, c.Player1Race)
}

// Player2BotRace resolves the validated race override for player 2, if
// ValidateRace is set and a race token was supplied.
func (c MatchConfig) Player2BotRace() (sc2.Race, bool) {
	return resolveRace(c.ValidateRace, c.Player2Race)
}

func resolveRace(validate bool, token *string) (sc2.Race, bool) {
	if !validate || token == nil {
		return sc2.RaceRandom, false
	}
	return sc2.ParseBotRace(*token), true
}
