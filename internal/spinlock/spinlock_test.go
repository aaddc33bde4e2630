package spinlock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHart struct {
	state   HartState
	enabled bool
}

func (f *fakeHart) HartID() int            { return 0 }
func (f *fakeHart) Hart(id int) *HartState { return &f.state }
func (f *fakeHart) InterruptsEnabled() bool { return f.enabled }
func (f *fakeHart) SetInterrupts(e bool)    { f.enabled = e }

func init() {
	Bind(&fakeHart{enabled: true})
}

func TestLockUnlockRoundTrip(t *testing.T) {
	l := New("test")
	l.Lock()
	require.True(t, l.HeldByThisHart())
	l.Unlock()
	require.False(t, l.HeldByThisHart())
}

func TestReacquireBySameHartPanics(t *testing.T) {
	l := New("test")
	l.Lock()
	defer l.Unlock()
	require.Panics(t, func() { l.Lock() })
}

func TestUnlockNotHeldPanics(t *testing.T) {
	l := New("test")
	require.Panics(t, func() { l.Unlock() })
}

func TestInterruptDisableStackNestsAndRestores(t *testing.T) {
	h := &fakeHart{enabled: true}
	Bind(h)
	defer Bind(h) // restore for subsequent tests in this file

	outer := New("outer")
	inner := New("inner")

	outer.Lock()
	require.False(t, h.enabled, "locking disables interrupts")
	inner.Lock()
	require.False(t, h.enabled)
	inner.Unlock()
	require.False(t, h.enabled, "still nested under outer")
	outer.Unlock()
	require.True(t, h.enabled, "restored once nesting returns to zero")
}

func TestHoldingReflectsDisableDepth(t *testing.T) {
	h := &fakeHart{enabled: true}
	Bind(h)
	defer Bind(h)

	require.False(t, Holding())
	l := New("x")
	l.Lock()
	require.True(t, Holding())
	l.Unlock()
	require.False(t, Holding())
}
