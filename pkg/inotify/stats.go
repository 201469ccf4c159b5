package inotify

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// statistics tracks event counts for a watcher session. It is safe for
// concurrent usage.
type statistics struct {
	// mu serializes access to all fields.
	mu sync.Mutex
	// kinds counts dispatched events by individual event kind bit.
	kinds map[Mask]uint64
	// dispatched counts events delivered to the handler.
	dispatched uint64
	// discarded counts events dropped because their watch descriptor was no
	// longer registered.
	discarded uint64
	// overflows counts kernel queue overflow notifications.
	overflows uint64
}

// newStatistics creates empty statistics.
func newStatistics() *statistics {
	return &statistics{kinds: make(map[Mask]uint64)}
}

// recordDispatched records delivery of an event with the specified mask.
func (s *statistics) recordDispatched(mask Mask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched++
	for _, entry := range maskNames {
		if mask&entry.bit != 0 {
			s.kinds[entry.bit]++
		}
	}
}

// recordDiscarded records an event dropped due to an unknown watch
// descriptor.
func (s *statistics) recordDiscarded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discarded++
}

// recordOverflow records a kernel queue overflow notification.
func (s *statistics) recordOverflow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overflows++
}

// Statistics is a point-in-time snapshot of a watcher session's event
// counters.
type Statistics struct {
	// Dispatched is the number of events delivered to the handler.
	Dispatched uint64
	// Discarded is the number of events dropped because their watch
	// descriptor was no longer registered.
	Discarded uint64
	// Overflows is the number of kernel queue overflow notifications.
	Overflows uint64
	// Kinds maps individual event kind bits to their dispatch counts.
	Kinds map[Mask]uint64
}

// snapshot captures the current counter values.
func (s *statistics) snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make(map[Mask]uint64, len(s.kinds))
	for mask, count := range s.kinds {
		kinds[mask] = count
	}
	return Statistics{
		Dispatched: s.dispatched,
		Discarded:  s.discarded,
		Overflows:  s.overflows,
		Kinds:      kinds,
	}
}

// String provides a human-readable summary of the statistics, with per-kind
// counts sorted by descending count.
func (s Statistics) String() string {
	// Summarize totals.
	summary := fmt.Sprintf(
		"%s dispatched, %s discarded, %s overflows",
		humanize.Comma(int64(s.Dispatched)),
		humanize.Comma(int64(s.Discarded)),
		humanize.Comma(int64(s.Overflows)),
	)

	// If there are no per-kind counts, then we're done.
	if len(s.Kinds) == 0 {
		return summary
	}

	// Collect and sort per-kind counts.
	type kindCount struct {
		mask  Mask
		count uint64
	}
	kinds := make([]kindCount, 0, len(s.Kinds))
	for mask, count := range s.Kinds {
		kinds = append(kinds, kindCount{mask, count})
	}
	sort.Slice(kinds, func(i, j int) bool {
		if kinds[i].count != kinds[j].count {
			return kinds[i].count > kinds[j].count
		}
		return kinds[i].mask < kinds[j].mask
	})

	// Render.
	rendered := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		rendered = append(rendered, fmt.Sprintf("%s=%s", kind.mask, humanize.Comma(int64(kind.count))))
	}
	return summary + " (" + strings.Join(rendered, ", ") + ")"
}
