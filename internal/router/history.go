package router

import "sync"

// historyCapacity bounds the shared call history. When full, the oldest entry
// is evicted.
const historyCapacity = 100

// callHistory is a bounded, mutex-guarded log of recent tool invocations.
// Both backends embed one so history behaviour is identical regardless of
// strategy. The zero value is not usable; create with newCallHistory.
type callHistory struct {
	mu    sync.Mutex
	calls []string
}

func newCallHistory() *callHistory {
	return &callHistory{
		calls: make([]string, 0, historyCapacity),
	}
}

// record appends name, evicting the oldest entry once the capacity is
// reached.
func (h *callHistory) record(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.calls) >= historyCapacity {
		copy(h.calls, h.calls[1:])
		h.calls = h.calls[:len(h.calls)-1]
	}
	h.calls = append(h.calls, name)
}

// recent returns up to limit names, most recent first.
func (h *callHistory) recent(limit int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit < 0 {
		limit = 0
	}
	n := len(h.calls)
	if limit > n {
		limit = n
	}
	out := make([]string, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, h.calls[i])
	}
	return out
}
