package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manycore/defs"
)

func TestRingOrder(t *testing.T) {
	r := &Ring_t{}
	_, ok := r.Pop()
	assert.False(t, ok)

	require.True(t, r.Trypush(Event_t{Type: defs.EV_PREEMPT_PENDING, Arg1: 1}))
	require.True(t, r.Trypush(Event_t{Type: defs.EV_VCORE_PREEMPT, Arg2: 2}))
	assert.Equal(t, 2, r.Len())

	ev, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, defs.EV_PREEMPT_PENDING, ev.Type)
	assert.Equal(t, 1, ev.Arg1)
	ev, ok = r.Pop()
	require.True(t, ok)
	assert.Equal(t, defs.EV_VCORE_PREEMPT, ev.Type)
	assert.Equal(t, 2, ev.Arg2)
	_, ok = r.Pop()
	assert.False(t, ok)
}

func TestRingFull(t *testing.T) {
	r := &Ring_t{}
	for i := 0; i < RINGSZ; i++ {
		require.True(t, r.Trypush(Event_t{Type: defs.EV_CHECK_MSGS, Arg2: i}))
	}
	assert.False(t, r.Trypush(Event_t{Type: defs.EV_CHECK_MSGS}))

	// consuming one frees one slot
	ev, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, 0, ev.Arg2)
	assert.True(t, r.Trypush(Event_t{Type: defs.EV_CHECK_MSGS, Arg2: RINGSZ}))
}

func TestRingWraps(t *testing.T) {
	r := &Ring_t{}
	for i := 0; i < 10*RINGSZ; i++ {
		require.True(t, r.Trypush(Event_t{Arg2: i}))
		ev, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, i, ev.Arg2)
	}
}
