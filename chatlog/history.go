package chatlog

import (
	"sync"
	"time"
)

// History is an in-memory ring of the most recent chat lines.
// It is safe for concurrent use.
type History struct {
	mu   sync.Mutex
	ring []Line
	k    uint64 // total number of lines added
}

// ringsize is the number of lines in a history.
const ringsize = 1 << 9

// ringsize must be a power of 2; this line enforces that.
var _ [0]struct{} = [ringsize & (ringsize - 1)]struct{}{}

func NewHistory() *History {
	return &History{ring: make([]Line, ringsize)}
}

// Add records a line, evicting the oldest if the ring is full.
func (h *History) Add(kind, text string, tm time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.k%ringsize] = Line{Time: tm, Kind: kind, Text: text}
	h.k++ // We don't modulo so that Recent can tell how many are valid.
}

// Recent returns up to n of the most recent lines in the order they were
// added.
func (h *History) Recent(n int) []Line {
	h.mu.Lock()
	defer h.mu.Unlock()
	n = min(n, ringsize, int(min(h.k, ringsize)))
	if n <= 0 {
		return nil
	}
	r := make([]Line, 0, n)
	for l := h.k - uint64(n); l < h.k; l++ {
		r = append(r, h.ring[l%ringsize])
	}
	return r
}
