package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitions(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateCreated, StateAwaitingCounterparty},
		{StateAwaitingCounterparty, StateActive},
		{StateActive, StatePaused},
		{StatePaused, StateActive},
		{StatePaused, StateAwaitingCounterparty},
		{StatePaused, StateCreated},
		{StateActive, StateEnded},
		{StateCreated, StateEnded},
	}
	for _, tt := range allowed {
		assert.True(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	denied := []struct{ from, to State }{
		{StateCreated, StateActive},
		{StateActive, StateAwaitingCounterparty},
		{StateActive, StateCreated},
		{StateEnded, StateActive},
		{StateEnded, StateEnded},
	}
	for _, tt := range denied {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StateEnded.Terminal())
	for _, s := range []State{StateCreated, StateAwaitingCounterparty, StateActive, StatePaused} {
		assert.False(t, s.Terminal(), string(s))
	}
}
