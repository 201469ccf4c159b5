// +build !linux

package inotify

// openNativePort fails on platforms without inotify support.
func openNativePort() (Port, error) {
	return nil, ErrPortUnavailable
}
