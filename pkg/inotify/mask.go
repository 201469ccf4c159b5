package inotify

import (
	"strings"
)

// Mask represents an inotify event mask, either as a set of event kinds to be
// monitored or as the set of event kinds that occurred. The constant values
// match the kernel's inotify ABI and are stable across architectures.
type Mask uint32

const (
	// InAccess indicates that a file was accessed.
	InAccess Mask = 0x00000001
	// InModify indicates that a file was modified.
	InModify Mask = 0x00000002
	// InAttrib indicates that metadata changed.
	InAttrib Mask = 0x00000004
	// InCloseWrite indicates that a writable file was closed.
	InCloseWrite Mask = 0x00000008
	// InCloseNowrite indicates that an unwritable file was closed.
	InCloseNowrite Mask = 0x00000010
	// InOpen indicates that a file was opened.
	InOpen Mask = 0x00000020
	// InMovedFrom indicates that a file was moved out of a watched directory.
	InMovedFrom Mask = 0x00000040
	// InMovedTo indicates that a file was moved into a watched directory.
	InMovedTo Mask = 0x00000080
	// InCreate indicates that a file or directory was created in a watched
	// directory.
	InCreate Mask = 0x00000100
	// InDelete indicates that a file or directory was deleted from a watched
	// directory.
	InDelete Mask = 0x00000200
	// InDeleteSelf indicates that the watched object itself was deleted.
	InDeleteSelf Mask = 0x00000400
	// InMoveSelf indicates that the watched object itself was moved.
	InMoveSelf Mask = 0x00000800
)

const (
	// InUnmount indicates that the filesystem backing the watched object was
	// unmounted.
	InUnmount Mask = 0x00002000
	// InQueueOverflow indicates that the kernel event queue overflowed. Events
	// bearing this mask carry an invalid watch descriptor.
	InQueueOverflow Mask = 0x00004000
	// InIgnored indicates that the watch was removed, either explicitly or
	// implicitly by the kernel.
	InIgnored Mask = 0x00008000
	// InIsDir indicates that the subject of the event is a directory.
	InIsDir Mask = 0x40000000
)

const (
	// InClose is the combination of both close event kinds.
	InClose = InCloseWrite | InCloseNowrite
	// InMove is the combination of both directory-content move event kinds.
	InMove = InMovedFrom | InMovedTo
	// InAllEvents is the combination of all subscribable event kinds.
	InAllEvents = InAccess | InModify | InAttrib |
		InCloseWrite | InCloseNowrite | InOpen |
		InMovedFrom | InMovedTo |
		InCreate | InDelete |
		InDeleteSelf | InMoveSelf
)

// maskNames maps individual mask bits to their names, ordered by bit value for
// deterministic stringification.
var maskNames = []struct {
	bit  Mask
	name string
}{
	{InAccess, "access"},
	{InModify, "modify"},
	{InAttrib, "attrib"},
	{InCloseWrite, "close-write"},
	{InCloseNowrite, "close-nowrite"},
	{InOpen, "open"},
	{InMovedFrom, "moved-from"},
	{InMovedTo, "moved-to"},
	{InCreate, "create"},
	{InDelete, "delete"},
	{InDeleteSelf, "delete-self"},
	{InMoveSelf, "move-self"},
	{InUnmount, "unmount"},
	{InQueueOverflow, "queue-overflow"},
	{InIgnored, "ignored"},
	{InIsDir, "is-dir"},
}

// NameToMask converts a string-based representation of an event kind to the
// corresponding Mask value. It returns a boolean indicating whether or not the
// conversion was valid. In addition to individual event kind names, it accepts
// the aggregate names "close", "move", and "all".
func NameToMask(name string) (Mask, bool) {
	switch name {
	case "close":
		return InClose, true
	case "move":
		return InMove, true
	case "all":
		return InAllEvents, true
	}
	for _, entry := range maskNames {
		if entry.name == name {
			return entry.bit, true
		}
	}
	return 0, false
}

// String provides a human-readable representation of a mask, rendering each
// set bit's name separated by pipes.
func (m Mask) String() string {
	// Handle the empty mask.
	if m == 0 {
		return "none"
	}

	// Render known bits.
	var names []string
	remaining := m
	for _, entry := range maskNames {
		if m&entry.bit != 0 {
			names = append(names, entry.name)
			remaining &^= entry.bit
		}
	}

	// If there are leftover unknown bits, then note them.
	if remaining != 0 {
		names = append(names, "unknown")
	}

	// Done.
	return strings.Join(names, "|")
}
