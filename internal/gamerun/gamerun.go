// Package gamerun aggregates the two player drivers' outcomes into a single
// match result.
package gamerun

import (
	"go.uber.org/zap"

	"github.com/sc2arena/matcharbiter/internal/match"
	"github.com/sc2arena/matcharbiter/internal/sc2"
)

// PlayerSlot is one enrolled player's identity, as known to the runner.
type PlayerSlot struct {
	Name     string
	PlayerID uint32
}

// Runner owns the two player drivers' outcomes for one match.
type Runner struct {
	players    [2]PlayerSlot
	matchID    int64
	mapName    string
	replayPath string
	log        *zap.Logger
}

// New constructs a Runner for one match. players[0] is player 1,
// players[1] is player 2. replayPath is echoed into the result record
// as-is; whether a replay file actually exists there is the driver's
// concern, not the runner's.
func New(players [2]PlayerSlot, matchID int64, mapName, replayPath string, log *zap.Logger) *Runner {
	return &Runner{players: players, matchID: matchID, mapName: mapName, replayPath: replayPath, log: log}
}

// Run loops until every player_results slot is filled by messages from the
// two driver goroutines, or the supervisor sends Quit on control, and
// returns the final match result.
func (r *Runner) Run(msgs <-chan Message, control <-chan Control, playerControls [2]chan<- Control) match.Result {
	var results [2]*sc2.PlayerResult
	var frameTimes [2]float64
	var tags [2][]string
	var crashed [2]bool
	var loops uint32

	filled := func() bool {
		return results[0] != nil && results[1] != nil
	}

	for !filled() {
		select {
		case c := <-control:
			switch c.(type) {
			case Quit:
				for _, pc := range playerControls {
					select {
					case pc <- Quit{}:
					default:
					}
				}
				return match.QuitRequest(r.matchID, r.mapName, r.players[0].Name, r.players[1].Name)
			}
		case m := <-msgs:
			r.apply(m, &results, &frameTimes, &tags, &crashed, &loops)
			// A crash report can infer the peer's outcome as an early
			// Victory, but if the peer's own report was already sitting in
			// the buffer (both sides failed around the same time), it must
			// be applied before that inference is allowed to stand.
		drain:
			for {
				select {
				case m2 := <-msgs:
					r.apply(m2, &results, &frameTimes, &tags, &crashed, &loops)
				default:
					break drain
				}
			}
		}
	}

	result1 := orDefault(results[0])
	result2 := orDefault(results[1])
	return match.New(
		r.matchID, r.mapName, r.replayPath,
		r.players[0].Name, r.players[1].Name,
		result1, result2,
		loops,
		frameTimes[0], frameTimes[1],
		tags[0], tags[1],
	)
}

func orDefault(r *sc2.PlayerResult) sc2.PlayerResult {
	if r == nil {
		return sc2.ResultTie
	}
	return *r
}

func (r *Runner) apply(m Message, results *[2]*sc2.PlayerResult, frameTimes *[2]float64, tags *[2][]string, crashed *[2]bool, loops *uint32) {
	idx := func(playerID uint32) int {
		if playerID == r.players[0].PlayerID {
			return 0
		}
		return 1
	}
	setIfEmpty := func(i int, v sc2.PlayerResult) {
		if results[i] == nil {
			results[i] = &v
		}
	}

	switch msg := m.(type) {
	case GameOver:
		reporter := msg.PlayerNum - 1
		for playerID, res := range msg.Results {
			res := res
			setIfEmpty(idx(playerID), res)
		}
		*loops = msg.Loops
		frameTimes[reporter] = msg.FrameTime
		tags[reporter] = msg.Tags

	case LeftGame:
		reporter := msg.PlayerNum - 1
		peer := 1 - reporter
		result := sc2.ResultDefeat
		results[reporter] = &result
		frameTimes[reporter] = msg.FrameTime
		tags[reporter] = msg.Tags
		setIfEmpty(peer, sc2.ResultVictory)

	case QuitBeforeLeave:
		reporter := msg.PlayerNum - 1
		result := sc2.ResultDefeat
		results[reporter] = &result
		frameTimes[reporter] = msg.FrameTime
		tags[reporter] = msg.Tags

	case SC2UnexpectedConnectionClose:
		reporter := msg.PlayerNum - 1
		peer := 1 - reporter
		result := sc2.ResultSC2Crash
		// The reporter's own outcome is always authoritative, even if an
		// earlier message already tentatively assigned it a free Victory as
		// someone else's peer.
		results[reporter] = &result
		crashed[reporter] = true
		frameTimes[reporter] = msg.FrameTime
		tags[reporter] = msg.Tags
		if results[peer] == nil && !crashed[peer] {
			setIfEmpty(peer, sc2.ResultVictory)
		}

	case UnexpectedConnectionClose:
		reporter := msg.PlayerNum - 1
		peer := 1 - reporter
		result := sc2.ResultCrash
		results[reporter] = &result
		crashed[reporter] = true
		frameTimes[reporter] = msg.FrameTime
		tags[reporter] = msg.Tags
		// Avoid double-crash overriding: only hand the peer a free Victory
		// if it hasn't itself already been recorded as crashed.
		if results[peer] == nil && !crashed[peer] {
			setIfEmpty(peer, sc2.ResultVictory)
		}
	}
}
