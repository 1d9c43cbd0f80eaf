package streamer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []State{StateIdle, StateStreaming, StateDegrading, StateFallback, StateFallbackRequested, StateCompleted, StateFailed}
	for _, from := range []State{StateCompleted, StateFailed} {
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestEveryNonTerminalCanFail(t *testing.T) {
	for _, from := range []State{StateIdle, StateStreaming, StateDegrading, StateFallback, StateFallbackRequested} {
		assert.True(t, CanTransition(from, StateFailed), from.String())
	}
}

func TestIllegalTransitionsRejected(t *testing.T) {
	m := newMachine()
	require.Error(t, m.to(StateCompleted))
	require.Error(t, m.to(StateFallback))
	require.NoError(t, m.to(StateStreaming))
	assert.True(t, m.canEmit())
	require.Error(t, m.to(StateFallback), "fallback only after degrading")
	require.NoError(t, m.to(StateFailed))
	assert.False(t, m.canEmit())
	require.Error(t, m.to(StateStreaming))
	assert.Equal(t, []State{StateIdle, StateStreaming, StateFailed}, m.history)
}

func TestAccumulatorFinalize(t *testing.T) {
	acc := &accumulator{}
	require.NoError(t, acc.Write("Hel"))
	require.NoError(t, acc.Write("lo"))
	assert.Equal(t, 2, acc.Chunks())
	assert.Equal(t, "Hello", acc.Finalize())
	assert.ErrorIs(t, acc.Write("!"), errAccumulatorFinalized)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fallback_requested", StateFallbackRequested.String())
	assert.Equal(t, "state(42)", State(42).String())
}
