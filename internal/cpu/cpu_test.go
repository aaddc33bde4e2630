package cpu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMineResolvesCurrentHart(t *testing.T) {
	BindCurrentHart(func() int { return 3 })
	c := Mine()
	require.Equal(t, 3, c.ID)
	require.Same(t, Get(3), c)
}

func TestHartOpsTracksInterruptEnable(t *testing.T) {
	BindCurrentHart(func() int { return 1 })
	BindSpinlocks()

	ops := hartOps{}
	ops.SetInterrupts(true)
	require.True(t, ops.InterruptsEnabled())
	ops.SetInterrupts(false)
	require.False(t, ops.InterruptsEnabled())
}

func TestHartStateIsPerHart(t *testing.T) {
	BindCurrentHart(func() int { return 2 })
	h := hartOps{}.Hart(2)
	h.IntrDepth = 5
	require.Equal(t, 5, Get(2).hart.IntrDepth)
	require.NotEqual(t, 5, Get(0).hart.IntrDepth)
}
