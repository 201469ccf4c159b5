package inotify

// Port is the interface to the kernel notification facility: the single
// kernel-level session through which watches are registered and events for
// those watches are delivered. Exactly one port underlies each Watcher; its
// lifetime bounds the validity of every watch descriptor issued through it.
type Port interface {
	// AddWatch registers a kernel watch for the specified path with the
	// specified event mask, returning the kernel-assigned watch descriptor.
	// Registering a path that is already watched updates the existing watch's
	// mask and returns the same descriptor.
	AddWatch(path string, mask Mask) (int32, error)
	// RemoveWatch deregisters the kernel watch with the specified descriptor.
	RemoveWatch(descriptor int32) error
	// Read performs a blocking read of pending event records into the
	// specified buffer, returning the number of bytes read. The buffer may
	// contain multiple records packed back-to-back. A read outstanding when
	// Close is invoked fails with ErrPortClosed rather than hanging.
	Read(buffer []byte) (int, error)
	// Close releases the port. It is idempotent and safe to invoke while a
	// Read is blocked in another goroutine.
	Close() error
}

// openPort creates a port backed by the platform's native notification
// facility. It fails with ErrPortUnavailable if the facility can't be
// initialized or isn't supported on the platform.
func openPort() (Port, error) {
	return openNativePort()
}
