package bio

import (
	"testing"

	"github.com/jrmenzel/vimix/internal/blockdev"
	"github.com/jrmenzel/vimix/internal/common"
	"github.com/jrmenzel/vimix/internal/sleep"
	"github.com/jrmenzel/vimix/internal/spinlock"
	"github.com/stretchr/testify/require"
)

type fakeHart struct{ enabled bool }

func (f *fakeHart) HartID() int                     { return 0 }
func (f *fakeHart) Hart(id int) *spinlock.HartState { return &spinlock.HartState{} }
func (f *fakeHart) InterruptsEnabled() bool         { return f.enabled }
func (f *fakeHart) SetInterrupts(e bool)            { f.enabled = e }

func init() { spinlock.Bind(&fakeHart{enabled: true}) }

type fakeProc struct {
	lk    *spinlock.Lock_t
	state string
	chanTok sleep.Chan
}

func newFakeProc() *fakeProc { return &fakeProc{lk: spinlock.New("proc"), state: "runnable"} }
func (p *fakeProc) Lock() *spinlock.Lock_t { return p.lk }
func (p *fakeProc) SetChan(c sleep.Chan)   { p.chanTok = c }
func (p *fakeProc) Chan() sleep.Chan       { return p.chanTok }
func (p *fakeProc) SetSleeping()           { p.state = "sleeping" }
func (p *fakeProc) SetRunnable()           { p.state = "runnable" }
func (p *fakeProc) IsSleeping() bool       { return p.state == "sleeping" }

type fakeTable struct{ procs []*fakeProc }

func (t *fakeTable) ForEach(f func(sleep.Sleeper)) {
	for _, p := range t.procs {
		f(p)
	}
}

func testCaller(t *testing.T) Caller {
	t.Helper()
	p := newFakeProc()
	return Caller{Proc: p, Table: &fakeTable{procs: []*fakeProc{p}}, Yield: func() {
		t.Fatal("bio must not block when the buffer is uncontended")
	}}
}

func TestReadFaultsInFromDeviceOnce(t *testing.T) {
	dev := blockdev.NewMemDisk(4)
	payload := make([]byte, common.BSIZE)
	payload[10] = 0x7a
	require.Zero(t, dev.WriteBlock(1, payload))

	c := New(dev, 4)
	who := testCaller(t)

	b, ok := c.Read(0, 1, who)
	require.True(t, ok)
	require.Equal(t, byte(0x7a), b.Data[10])
	c.Release(b, who)
}

func TestAtMostOneBufferPerDevBlockno(t *testing.T) {
	dev := blockdev.NewMemDisk(4)
	c := New(dev, 4)
	who := testCaller(t)

	b1, _ := c.Read(0, 1, who)
	c.Release(b1, who)
	b2, _ := c.Read(0, 1, who)
	require.Same(t, b1, b2)
	c.Release(b2, who)
}

func TestWriteMarksDirtyAndPersists(t *testing.T) {
	dev := blockdev.NewMemDisk(4)
	c := New(dev, 4)
	who := testCaller(t)

	b, _ := c.Read(0, 2, who)
	b.Data[0] = 0x99
	require.True(t, c.Write(b))
	require.True(t, b.Dirty)
	c.Release(b, who)

	out := make([]byte, common.BSIZE)
	require.Zero(t, dev.ReadBlock(2, out))
	require.Equal(t, byte(0x99), out[0])
}

func TestEvictionPicksLeastRecentlyUsedUnreferenced(t *testing.T) {
	dev := blockdev.NewMemDisk(8)
	c := New(dev, 2) // only two buffers: third distinct blockno forces eviction
	who := testCaller(t)

	b0, _ := c.Read(0, 0, who)
	c.Release(b0, who)
	b1, _ := c.Read(0, 1, who)
	c.Release(b1, who)

	// block 0 is now LRU (released first); reading block 2 should evict it
	b2, _ := c.Read(0, 2, who)
	require.Equal(t, uint32(2), b2.Blockno)
	c.Release(b2, who)

	b1again, _ := c.Read(0, 1, who)
	require.Same(t, b1, b1again, "block 1 must survive the eviction")
	c.Release(b1again, who)
}

func TestPinPreventsEviction(t *testing.T) {
	dev := blockdev.NewMemDisk(8)
	c := New(dev, 1)
	who := testCaller(t)

	b, _ := c.Read(0, 0, who)
	c.Pin(b)
	c.Release(b, who) // ref drops to 1 (still pinned), not 0

	require.Panics(t, func() {
		c.Read(0, 1, who) // no free buffer: the only slot is still pinned
	})

	c.Unpin(b)
}
