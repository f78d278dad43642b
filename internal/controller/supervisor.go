package controller

import (
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SupervisorEvent is the tagged variant the supervisor listener emits,
// translating raw frames on the supervisor socket into discrete events the
// Controller's main loop consumes.
type SupervisorEvent interface {
	supervisorEventMarker()
}

// EventConfig carries a parsed-pending JSON match config payload.
type EventConfig struct{ Payload []byte }

func (EventConfig) supervisorEventMarker() {}

// EventReceived is an application-level acknowledgment from the
// supervisor, with no Controller-side effect beyond logging.
type EventReceived struct{}

func (EventReceived) supervisorEventMarker() {}

// EventQuit requests a graceful teardown of the running match.
type EventQuit struct{}

func (EventQuit) supervisorEventMarker() {}

// EventForceQuit requests the Controller's main loop exit immediately.
type EventForceQuit struct{}

func (EventForceQuit) supervisorEventMarker() {}

// EventPing carries a ping frame's payload for the Controller to answer
// with a matching Pong.
type EventPing struct{ Payload []byte }

func (EventPing) supervisorEventMarker() {}

// runSupervisorListener reads framed messages from conn until a terminal
// event (Quit, ForceQuit, or a transport error) and pushes translated
// events onto out. It owns no write access to conn beyond responding to
// transport-level control frames; the Pong reply to EventPing is written by
// the Controller, which is conn's other permitted writer.
func runSupervisorListener(conn *websocket.Conn, out chan<- SupervisorEvent, log *zap.Logger) {
	conn.SetPingHandler(func(payload string) error {
		select {
		case out <- EventPing{Payload: []byte(payload)}:
		default:
		}
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			out <- EventForceQuit{}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		text := string(data)
		switch {
		case text == "Reset":
			out <- EventQuit{}
			return
		case text == "Quit":
			out <- EventForceQuit{}
			return
		case text == "Received":
			out <- EventReceived{}
		case strings.Contains(text, "Map") || strings.Contains(text, "map"):
			out <- EventConfig{Payload: data}
		default:
			log.Debug("supervisor sent unrecognized text frame", zap.String("text", text))
		}
	}
}
