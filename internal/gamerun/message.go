package gamerun

import "github.com/sc2arena/matcharbiter/internal/sc2"

// Message is the tagged variant a player driver sends to the game runner
// to report how its side of the match ended. It is a closed set by
// convention (an unexported marker method), not a class hierarchy.
type Message interface {
	messageMarker()
}

// GameOver reports a normal or timed-out match conclusion. Results holds
// one entry per engine player id; Loops and FrameTime are the reporting
// driver's own observed loop count and average frame time; Tags is the
// reporting player's accumulated chat tags.
type GameOver struct {
	PlayerNum int
	Results   map[uint32]sc2.PlayerResult
	Loops     uint32
	FrameTime float64
	Tags      []string
}

func (GameOver) messageMarker() {}

// LeftGame reports that the player issued leave_game and the driver let the
// game runner resolve the peer's outcome rather than synthesizing it
// itself. FrameTime and Tags carry whatever the driver had accumulated up
// to that point, since a player's tag set is meaningful regardless of how
// the match ended for them.
type LeftGame struct {
	PlayerNum int
	FrameTime float64
	Tags      []string
}

func (LeftGame) messageMarker() {}

// QuitBeforeLeave reports that the engine sent a quit response without a
// preceding leave_game request from the client.
type QuitBeforeLeave struct {
	PlayerNum int
	FrameTime float64
	Tags      []string
}

func (QuitBeforeLeave) messageMarker() {}

// SC2UnexpectedConnectionClose reports that the engine subprocess socket
// closed unexpectedly.
type SC2UnexpectedConnectionClose struct {
	PlayerNum int
	FrameTime float64
	Tags      []string
}

func (SC2UnexpectedConnectionClose) messageMarker() {}

// UnexpectedConnectionClose reports that the client socket closed, or the
// per-frame read timed out, without a preceding surrender.
type UnexpectedConnectionClose struct {
	PlayerNum int
	FrameTime float64
	Tags      []string
}

func (UnexpectedConnectionClose) messageMarker() {}

// Control is the supervisor-originated instruction the Controller sends
// into a running game; today the only variant is Quit.
type Control interface {
	controlMarker()
}

// Quit instructs the game runner to stop waiting for driver outcomes and
// report a QuitRequest result immediately.
type Quit struct{}

func (Quit) controlMarker() {}
