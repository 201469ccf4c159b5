package inotify

import (
	"fmt"
	"path/filepath"
)

// RawEvent represents a single decoded kernel event record. It is transient:
// decoded from a read buffer and consumed immediately by the dispatch loop.
type RawEvent struct {
	// WatchDescriptor is the kernel-assigned identifier of the watch that
	// generated the event. It is -1 for queue overflow events.
	WatchDescriptor int32
	// Mask describes the event kinds that occurred.
	Mask Mask
	// Cookie is the kernel-supplied correlation value linking paired
	// moved-from/moved-to events. It is zero for all other event kinds.
	Cookie uint32
	// Name is the name of the affected directory entry for directory-content
	// events, or empty for events on the watched object itself.
	Name string
}

// Event represents a resolved filesystem event as delivered to handlers.
type Event struct {
	// Path is the watched path that the event's watch was registered for.
	Path string
	// Mask describes the event kinds that occurred.
	Mask Mask
	// Cookie is the kernel-supplied correlation value linking paired
	// moved-from/moved-to events. It is passed through unmodified; correlation
	// is a handler concern.
	Cookie uint32
	// Name is the name of the affected directory entry for directory-content
	// events, or empty for events on the watched object itself.
	Name string
}

// Pathname returns the full path of the event's subject: the watched path
// joined with the entry name for directory-content events, or the watched path
// itself otherwise.
func (e Event) Pathname() string {
	if e.Name == "" {
		return e.Path
	}
	return filepath.Join(e.Path, e.Name)
}

// String provides a human-readable representation of an event.
func (e Event) String() string {
	if e.Cookie != 0 {
		return fmt.Sprintf("%s %s (cookie %d)", e.Mask, e.Pathname(), e.Cookie)
	}
	return fmt.Sprintf("%s %s", e.Mask, e.Pathname())
}

// Handler is the callback type invoked by the dispatch loop for each resolved
// event.
type Handler func(Event)
