// +build linux

package inotify

import (
	"sync"
	"syscall"

	"github.com/pkg/errors"

	"golang.org/x/sys/unix"
)

// inotifyPort implements Port using the Linux inotify facility. The inotify
// descriptor is opened in non-blocking mode and reads are driven by poll over
// the inotify descriptor and a wakeup pipe, allowing Close to unblock a
// pending Read from another goroutine.
type inotifyPort struct {
	// events is the inotify descriptor.
	events int
	// wakeupRead and wakeupWrite are the read and write ends of the wakeup
	// pipe. Closing the write end wakes any pending poll.
	wakeupRead  int
	wakeupWrite int
	// closeOnce guards closure.
	closeOnce sync.Once
	// closeError is the result of closure.
	closeError error
}

// openNativePort creates an inotify-backed port.
func openNativePort() (Port, error) {
	// Create the inotify instance.
	events, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(ErrPortUnavailable, err.Error())
	}

	// Create the wakeup pipe.
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(events)
		return nil, errors.Wrap(ErrPortUnavailable, err.Error())
	}

	// Success.
	return &inotifyPort{
		events:      events,
		wakeupRead:  pipe[0],
		wakeupWrite: pipe[1],
	}, nil
}

// AddWatch implements Port.AddWatch.
func (p *inotifyPort) AddWatch(path string, mask Mask) (int32, error) {
	descriptor, err := unix.InotifyAddWatch(p.events, path, uint32(mask))
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return 0, classifyWatchError(errno)
		}
		return 0, err
	}
	return int32(descriptor), nil
}

// RemoveWatch implements Port.RemoveWatch.
func (p *inotifyPort) RemoveWatch(descriptor int32) error {
	if _, err := unix.InotifyRmWatch(p.events, uint32(descriptor)); err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return classifyWatchError(errno)
		}
		return err
	}
	return nil
}

// Read implements Port.Read.
func (p *inotifyPort) Read(buffer []byte) (int, error) {
	for {
		// Poll the inotify descriptor and the wakeup pipe. A closed
		// descriptor surfaces as POLLNVAL, which counts as a wakeup.
		descriptors := []unix.PollFd{
			{Fd: int32(p.events), Events: unix.POLLIN},
			{Fd: int32(p.wakeupRead), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(descriptors, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			if errno, ok := err.(syscall.Errno); ok {
				return 0, classifyReadError(errno)
			}
			return 0, err
		}

		// Check for a wakeup, which indicates closure.
		if descriptors[1].Revents != 0 || descriptors[0].Revents&(unix.POLLNVAL|unix.POLLERR) != 0 {
			return 0, ErrPortClosed
		}

		// If the inotify descriptor isn't readable, then poll again.
		if descriptors[0].Revents&unix.POLLIN == 0 {
			continue
		}

		// Perform the read. The descriptor is non-blocking, so a lost race
		// for readability just polls again.
		length, err := unix.Read(p.events, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			if errno, ok := err.(syscall.Errno); ok {
				return 0, classifyReadError(errno)
			}
			return 0, err
		}
		return length, nil
	}
}

// Close implements Port.Close.
func (p *inotifyPort) Close() error {
	p.closeOnce.Do(func() {
		// Close the write end of the wakeup pipe first so that any pending
		// poll wakes before the polled descriptors are released.
		unix.Close(p.wakeupWrite)
		p.closeError = unix.Close(p.events)
		unix.Close(p.wakeupRead)
	})
	return p.closeError
}
