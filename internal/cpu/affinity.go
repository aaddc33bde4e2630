package cpu

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// affinity maps a Go goroutine (keyed by the id runtime.Stack prints
// for it) to the logical hart id it is currently standing in for. A
// single process's own goroutine is resumed by a different
// RunScheduler goroutine - and therefore a different hart - from one
// scheduling round to the next, so a single process-wide "the current
// hart is N" binding is wrong the moment more than one hart can
// actually contend on the same lock: every goroutine that can touch a
// spinlock needs its own binding, updated whenever the hart driving it
// changes. Grounded on this package's own doc comment, which already
// called for "a goroutine-local lookup" rather than one fixed mapping;
// no pack dependency provides goroutine-local storage, so this is
// built directly on runtime.Stack, the only standard-library way to
// name "the calling goroutine" at all.
var affinity sync.Map // goroutine id (int64) -> hart id (int)

// SetHartAffinity records that the calling goroutine is, from this
// point on, running as hartID: called once by each RunScheduler
// goroutine for its own fixed identity, and again by a resumed
// process's goroutine every time Sched hands it a (possibly different)
// hart.
func SetHartAffinity(hartID int) {
	affinity.Store(goroutineID(), hartID)
}

// GoroutineAffinity resolves the calling goroutine's hart id via
// SetHartAffinity, for installation through BindCurrentHart. Panics if
// the calling goroutine never registered one, the same "every
// schedulable goroutine must be wired before it touches a lock"
// invariant spinlock.Lock already assumes of a bound HartOps.
func GoroutineAffinity() int {
	v, ok := affinity.Load(goroutineID())
	if !ok {
		panic("cpu: goroutine has no bound hart affinity")
	}
	return v.(int)
}

// goroutineID parses the id out of "goroutine 123 [running]:", the
// first line runtime.Stack always produces for the calling goroutine.
// Unexported and used only by this file: there is no public API for
// "which goroutine am I", so every Go program that needs goroutine-
// local identity resorts to this same trick.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		panic("cpu: could not parse goroutine id: " + err.Error())
	}
	return id
}
