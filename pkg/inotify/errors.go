package inotify

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrInvalidPath indicates that a watch target does not exist, is not
	// accessible, or is otherwise not watchable.
	ErrInvalidPath = errors.New("invalid path")
	// ErrWatchLimitExceeded indicates that the kernel refused a watch due to
	// resource limits.
	ErrWatchLimitExceeded = errors.New("watch limit exceeded")
	// ErrUnknownWatch indicates that a watch descriptor is not present in the
	// watch registry.
	ErrUnknownWatch = errors.New("unknown watch")
	// ErrPortUnavailable indicates that the kernel notification facility could
	// not be initialized.
	ErrPortUnavailable = errors.New("notification port unavailable")
	// ErrPortClosed indicates that the notification port has been closed.
	ErrPortClosed = errors.New("notification port closed")
	// ErrMalformedEvent indicates that a kernel event buffer could not be
	// decoded completely.
	ErrMalformedEvent = errors.New("malformed event")
)

// KernelError wraps an errno value for which no more specific classification
// exists. No errno is ever swallowed: failures that don't map onto the
// sentinel errors above surface as KernelError values.
type KernelError struct {
	// Errno is the raw kernel error code.
	Errno syscall.Errno
}

// Error implements error.Error.
func (e *KernelError) Error() string {
	return fmt.Sprintf("kernel error: %v", e.Errno)
}

// classifyWatchError converts an errno from a watch addition or removal call
// into the error taxonomy.
func classifyWatchError(errno syscall.Errno) error {
	switch errno {
	case syscall.ENOENT, syscall.EACCES, syscall.ENOTDIR, syscall.ELOOP, syscall.ENAMETOOLONG:
		return ErrInvalidPath
	case syscall.ENOSPC, syscall.EMFILE, syscall.ENFILE, syscall.ENOMEM:
		return ErrWatchLimitExceeded
	case syscall.EBADF:
		return ErrPortClosed
	default:
		return &KernelError{Errno: errno}
	}
}

// classifyReadError converts an errno from a blocking read on the notification
// port into the error taxonomy.
func classifyReadError(errno syscall.Errno) error {
	switch errno {
	case syscall.EBADF:
		return ErrPortClosed
	default:
		return &KernelError{Errno: errno}
	}
}
