package plic

import "testing"

func TestClaimReturnsFalseWhenEmpty(t *testing.T) {
	s := NewSim(4)
	if _, ok := s.Claim(); ok {
		t.Fatal("expected no pending irq")
	}
}

func TestRaiseThenClaim(t *testing.T) {
	s := NewSim(4)
	s.Raise(10)
	irq, ok := s.Claim()
	if !ok || irq != 10 {
		t.Fatalf("got (%d, %v), want (10, true)", irq, ok)
	}
	if _, ok := s.Claim(); ok {
		t.Fatal("expected queue drained")
	}
}

func TestRaiseOrderIsFIFO(t *testing.T) {
	s := NewSim(4)
	s.Raise(1)
	s.Raise(2)
	s.Raise(3)

	for _, want := range []int{1, 2, 3} {
		irq, ok := s.Claim()
		if !ok || irq != want {
			t.Fatalf("got (%d, %v), want (%d, true)", irq, ok, want)
		}
	}
}

func TestRaiseDropsWhenQueueFull(t *testing.T) {
	s := NewSim(2)
	s.Raise(1)
	s.Raise(2)
	s.Raise(3) // dropped, queue depth 2

	irq, _ := s.Claim()
	if irq != 1 {
		t.Fatalf("got %d, want 1", irq)
	}
	irq, _ = s.Claim()
	if irq != 2 {
		t.Fatalf("got %d, want 2", irq)
	}
	if _, ok := s.Claim(); ok {
		t.Fatal("expected queue drained after dropping the third raise")
	}
}

func TestCompleteIsANoOp(t *testing.T) {
	s := NewSim(1)
	s.Complete(99) // must not panic
}
