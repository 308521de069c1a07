package router

import (
	"fmt"
	"sync"
	"testing"
)

// TestCallHistory_MostRecentFirst verifies read ordering.
func TestCallHistory_MostRecentFirst(t *testing.T) {
	t.Parallel()
	h := newCallHistory()
	h.record("alpha")
	h.record("beta")
	h.record("gamma")

	got := h.recent(2)
	if len(got) != 2 {
		t.Fatalf("recent(2) returned %d entries, want 2", len(got))
	}
	if got[0] != "gamma" || got[1] != "beta" {
		t.Errorf("recent(2) = %v, want [gamma beta]", got)
	}
}

// TestCallHistory_CapacityEvictsOldest verifies the 100-entry bound.
func TestCallHistory_CapacityEvictsOldest(t *testing.T) {
	t.Parallel()
	h := newCallHistory()
	for i := 0; i < 105; i++ {
		h.record(fmt.Sprintf("tool-%d", i))
	}

	got := h.recent(200)
	if len(got) != 100 {
		t.Fatalf("recent(200) returned %d entries, want 100", len(got))
	}
	if got[0] != "tool-104" {
		t.Errorf("most recent entry = %q, want tool-104", got[0])
	}
	if got[99] != "tool-5" {
		t.Errorf("oldest surviving entry = %q, want tool-5", got[99])
	}
}

// TestCallHistory_ConcurrentRecordAndRead hammers record and recent from many
// goroutines at once; meant to run under the race detector. The capacity
// bound must hold once the writers finish.
func TestCallHistory_ConcurrentRecordAndRead(t *testing.T) {
	t.Parallel()
	h := newCallHistory()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.record(fmt.Sprintf("tool-%d-%d", worker, j))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := h.recent(100); len(got) > 100 {
					t.Errorf("recent(100) returned %d entries, want at most 100", len(got))
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := h.recent(200); len(got) != 100 {
		t.Errorf("history holds %d entries after 800 records, want 100", len(got))
	}
}

// TestCallHistory_LimitLargerThanSize returns everything recorded.
func TestCallHistory_LimitLargerThanSize(t *testing.T) {
	t.Parallel()
	h := newCallHistory()
	h.record("only")

	got := h.recent(50)
	if len(got) != 1 || got[0] != "only" {
		t.Errorf("recent(50) = %v, want [only]", got)
	}
}

// TestCallHistory_ZeroAndNegativeLimit yields no entries.
func TestCallHistory_ZeroAndNegativeLimit(t *testing.T) {
	t.Parallel()
	h := newCallHistory()
	h.record("a")

	if got := h.recent(0); len(got) != 0 {
		t.Errorf("recent(0) = %v, want empty", got)
	}
	if got := h.recent(-1); len(got) != 0 {
		t.Errorf("recent(-1) = %v, want empty", got)
	}
}
