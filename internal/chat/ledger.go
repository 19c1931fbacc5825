package chat

import (
	"sync"

	"github.com/MrWong99/fledge/internal/mcp"
)

// Ledger collects the citations of tools used during a turn. Citations are
// keyed by tool name with set semantics: recording the same tool twice keeps
// the first entry and its position. Drain hands the collected citations to
// the caller exactly once. Safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	seen  map[string]bool
	order []mcp.Citation
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]bool)}
}

// Record notes that the tool named by c.Tool was used. Duplicate tools are
// ignored, preserving first-use order.
func (l *Ledger) Record(c mcp.Citation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[c.Tool] {
		return
	}
	l.seen[c.Tool] = true
	l.order = append(l.order, c)
}

// Len returns the number of distinct tools recorded.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Drain returns all recorded citations in first-use order and clears the
// ledger.
func (l *Ledger) Drain() []mcp.Citation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.order
	l.order = nil
	l.seen = make(map[string]bool)
	return out
}
