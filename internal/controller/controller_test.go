package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sc2arena/matcharbiter/internal/acceptor"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "configuring", StateConfiguring.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "assembling", StateAssembling.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "reporting", StateReporting.String())
}

func TestResetMatchReturnsToIdleWithoutSupervisor(t *testing.T) {
	c := New(make(chan acceptor.Classified), 0, "", zap.NewNop())
	c.state = StateReporting
	c.supervisorConn = nil
	c.resetMatch()
	assert.Equal(t, StateIdle, c.state, "without a bound supervisor, reset lands on Idle")
}

func TestHandleSupervisorEventConfigAdvancesToReady(t *testing.T) {
	c := New(make(chan acceptor.Classified), 0, "", zap.NewNop())
	c.state = StateConfiguring

	cont := c.handleSupervisorEvent(EventConfig{Payload: []byte(`{"Map":"AcidPlantLE","Player1":"a","Player2":"b","MatchID":1}`)})
	assert.True(t, cont)
	assert.Equal(t, StateReady, c.state)
	assert.NotNil(t, c.cfg)
	assert.Equal(t, "AcidPlantLE", c.cfg.Map)
}

func TestHandleSupervisorEventForceQuitStopsLoop(t *testing.T) {
	c := New(make(chan acceptor.Classified), 0, "", zap.NewNop())
	cont := c.handleSupervisorEvent(EventForceQuit{})
	assert.False(t, cont, "ForceQuit must signal the caller to stop the main loop")
}

func TestHandleSupervisorEventMalformedConfigIsIgnored(t *testing.T) {
	c := New(make(chan acceptor.Classified), 0, "", zap.NewNop())
	c.state = StateConfiguring
	cont := c.handleSupervisorEvent(EventConfig{Payload: []byte(`not json`)})
	assert.True(t, cont)
	assert.Equal(t, StateConfiguring, c.state, "an unparseable config must not advance the state machine")
	assert.Nil(t, c.cfg)
}
