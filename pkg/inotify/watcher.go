// Package inotify provides a watch registry and event-dispatch layer over the
// kernel's native filesystem notification facility.
package inotify

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/google/uuid"

	"github.com/pkg/errors"

	"github.com/pathwatch/pathwatch/pkg/filter"
	"github.com/pathwatch/pathwatch/pkg/logging"
)

const (
	// readBufferSize is the buffer size used for blocking reads from the
	// notification port. It is large enough to hold several thousand packed
	// event records per read.
	readBufferSize = 64 * 1024
)

// Options control watcher behavior. The zero value is valid and provides an
// unbounded watcher with no filtering or automatic subdirectory watching.
type Options struct {
	// Filter, if non-nil, excludes matching paths from recursive addition and
	// automatic subdirectory watching. It is not applied to paths watched
	// explicitly via Add.
	Filter filter.Filter
	// MaximumWatches, if positive, bounds the number of concurrently active
	// watches. When the bound is reached, the least-recently-added watch is
	// evicted to make room. Kernel-side limits still surface as
	// ErrWatchLimitExceeded.
	MaximumWatches int
	// AutoAdd indicates whether subdirectories created under watched
	// directories should be watched automatically with the parent's mask.
	AutoAdd bool
	// Logger is the logger to use. If nil, a sublogger of the root logger is
	// used.
	Logger *logging.Logger
	// ErrorHandler, if non-nil, receives non-fatal errors encountered by the
	// dispatch loop (such as decode failures). If nil, such errors are
	// logged.
	ErrorHandler func(error)
}

// Watcher owns a notification port and the registry of watches established
// through it. Watch addition and removal may be invoked from any goroutine,
// including concurrently with a dispatch loop running in another goroutine.
type Watcher struct {
	// identifier is a unique identifier for the watcher session.
	identifier string
	// port is the underlying notification port.
	port Port
	// filter is the path exclusion filter, if any.
	filter filter.Filter
	// autoAdd indicates whether created subdirectories are watched
	// automatically.
	autoAdd bool
	// logger is the watcher's logger.
	logger *logging.Logger
	// errorHandler receives non-fatal dispatch errors, if set.
	errorHandler func(error)
	// statistics tracks event counters for the session.
	statistics *statistics
	// lock serializes access to the watch table and evictor. It is held only
	// for the duration of registry access, never across blocking reads.
	lock sync.Mutex
	// table is the watch registry.
	table *table
	// evictor performs LRU-based watch eviction when a maximum watch count is
	// configured. It is nil for unbounded watchers.
	evictor *lru.Cache
	// closeOnce guards closure.
	closeOnce sync.Once
	// closeError is the result of closure.
	closeError error
}

// NewWatcher creates a watcher backed by the platform's native notification
// facility. It fails with ErrPortUnavailable if the facility can't be
// initialized. The caller is responsible for invoking Close when the watcher
// is no longer needed. If options is nil, default options are used.
func NewWatcher(options *Options) (*Watcher, error) {
	// Open the notification port.
	port, err := openPort()
	if err != nil {
		return nil, err
	}

	// Create the watcher.
	return newWatcher(port, options), nil
}

// newWatcher creates a watcher on top of the specified port.
func newWatcher(port Port, options *Options) *Watcher {
	// Use default options if none were specified.
	if options == nil {
		options = &Options{}
	}

	// Generate the session identifier.
	identifier := uuid.NewString()

	// Determine the logger.
	logger := options.Logger
	if logger == nil {
		logger = logging.RootLogger.Sublogger("watcher")
	}

	// Create the watcher.
	watcher := &Watcher{
		identifier:   identifier,
		port:         port,
		filter:       options.Filter,
		autoAdd:      options.AutoAdd,
		logger:       logger,
		errorHandler: options.ErrorHandler,
		statistics:   newStatistics(),
		table:        newTable(),
	}

	// Set up eviction if a watch bound was requested. The eviction callback
	// is only ever invoked with the registry lock held.
	if options.MaximumWatches > 0 {
		watcher.evictor = lru.New(options.MaximumWatches)
		watcher.evictor.OnEvicted = func(key lru.Key, _ interface{}) {
			if path, ok := key.(string); !ok {
				panic("invalid key type in watch eviction cache")
			} else {
				watcher.evict(path)
			}
		}
	}

	// Done.
	return watcher
}

// Identifier returns the watcher's unique session identifier.
func (w *Watcher) Identifier() string {
	return w.identifier
}

// evict removes the watch for the specified path in response to LRU eviction.
// It must be invoked with the registry lock held. It is a no-op if the path is
// no longer registered, which makes explicit removal and eviction commute.
func (w *Watcher) evict(path string) {
	// Look up the watch. If it's already gone, then there's nothing to do.
	descriptor, ok := w.table.descriptorForPath(path)
	if !ok {
		return
	}

	// Drop the registry entry and request kernel removal. Removal failures
	// are non-fatal here since the entry is already gone locally.
	w.table.remove(descriptor)
	if err := w.port.RemoveWatch(descriptor); err != nil {
		w.logger.Warn(errors.Wrap(err, "unable to remove evicted watch"))
	}
}

// Add registers a watch for the specified path with the specified event mask
// and returns the kernel-assigned watch descriptor. Adding a path that is
// already watched updates the existing watch's mask rather than creating a
// second entry. It fails with ErrInvalidPath if the path doesn't exist or
// isn't accessible and ErrWatchLimitExceeded if the kernel refuses the watch
// due to resource limits.
func (w *Watcher) Add(path string, mask Mask) (int32, error) {
	// Request the kernel watch.
	descriptor, err := w.port.AddWatch(path, mask)
	if err != nil {
		return 0, err
	}

	// Update the registry. If the kernel handed back a descriptor that's
	// already registered, then this was a duplicate addition and the existing
	// entry's mask is updated in place.
	w.lock.Lock()
	if existing := w.table.lookup(descriptor); existing != nil {
		existing.Path = path
		existing.Mask = mask
	} else {
		w.table.insert(&Watch{
			Descriptor: descriptor,
			Path:       path,
			Mask:       mask,
			autoAdd:    w.autoAdd,
		})
	}
	if w.evictor != nil {
		w.evictor.Add(path, descriptor)
	}
	w.lock.Unlock()

	// Success.
	w.logger.Debugf("watching %s (descriptor %d, mask %v)", path, descriptor, mask)
	return descriptor, nil
}

// AddRecursive registers watches for the specified directory and every
// subdirectory beneath it, honoring the watcher's exclusion filter. It returns
// the descriptors of all watches added. Directories that vanish during the
// walk are skipped. If an error occurs mid-walk, the descriptors added up to
// that point are still returned (and still active).
func (w *Watcher) AddRecursive(path string, mask Mask) ([]int32, error) {
	var descriptors []int32
	err := filepath.Walk(path, func(target string, info os.FileInfo, err error) error {
		// Tolerate entries that vanish mid-walk.
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		// Only directories are watched.
		if !info.IsDir() {
			return nil
		}

		// Honor the exclusion filter, pruning excluded subtrees.
		if w.filter != nil && w.filter(target) {
			return filepath.SkipDir
		}

		// Add the watch, tolerating directories that vanished between
		// enumeration and addition.
		descriptor, err := w.Add(target, mask)
		if err != nil {
			if errors.Is(err, ErrInvalidPath) {
				return nil
			}
			return err
		}
		descriptors = append(descriptors, descriptor)
		return nil
	})
	if err != nil {
		return descriptors, errors.Wrap(err, "unable to walk directory tree")
	}
	return descriptors, nil
}

// Remove deregisters the watch with the specified descriptor. It fails with
// ErrUnknownWatch if the descriptor isn't registered. The registry entry is
// dropped unconditionally, even if the kernel removal fails. In that case the
// failure is still reported, but the descriptor is no longer resolvable.
func (w *Watcher) Remove(descriptor int32) error {
	// Drop the registry entry. Removing the path from the evictor triggers
	// the eviction callback, which no-ops because the entry is already gone.
	w.lock.Lock()
	watch := w.table.remove(descriptor)
	if watch != nil && w.evictor != nil {
		w.evictor.Remove(watch.Path)
	}
	w.lock.Unlock()

	// Check that the watch existed.
	if watch == nil {
		return ErrUnknownWatch
	}

	// Request kernel removal. The entry stays dropped regardless of the
	// outcome to avoid registry/kernel divergence leaking into future
	// lookups.
	if err := w.port.RemoveWatch(descriptor); err != nil {
		return errors.Wrap(err, "unable to remove kernel watch")
	}

	// Success.
	w.logger.Debugf("unwatched %s (descriptor %d)", watch.Path, descriptor)
	return nil
}

// Update changes the event mask of the watch with the specified descriptor.
// It fails with ErrUnknownWatch if the descriptor isn't registered.
func (w *Watcher) Update(descriptor int32, mask Mask) error {
	// Look up the watch path.
	w.lock.Lock()
	watch := w.table.lookup(descriptor)
	if watch == nil {
		w.lock.Unlock()
		return ErrUnknownWatch
	}
	path := watch.Path
	w.lock.Unlock()

	// Re-register with the kernel, which updates the existing watch's mask
	// and returns the same descriptor.
	updated, err := w.port.AddWatch(path, mask)
	if err != nil {
		return err
	}

	// Update the registry entry.
	w.lock.Lock()
	if watch := w.table.lookup(updated); watch != nil {
		watch.Mask = mask
	} else {
		w.table.insert(&Watch{
			Descriptor: updated,
			Path:       path,
			Mask:       mask,
			autoAdd:    w.autoAdd,
		})
	}
	w.lock.Unlock()

	// Success.
	return nil
}

// Lookup returns the watch entry for the specified descriptor. It is
// read-only and has no side effects.
func (w *Watcher) Lookup(descriptor int32) (Watch, bool) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if watch := w.table.lookup(descriptor); watch != nil {
		return *watch, true
	}
	return Watch{}, false
}

// WatchDescriptor returns the descriptor of the watch registered for the
// specified path, if any.
func (w *Watcher) WatchDescriptor(path string) (int32, bool) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.table.descriptorForPath(path)
}

// Watches returns a snapshot of all registered watches for introspection.
func (w *Watcher) Watches() []Watch {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.table.snapshot()
}

// Statistics returns a snapshot of the session's event counters.
func (w *Watcher) Statistics() Statistics {
	return w.statistics.snapshot()
}

// Run executes the dispatch loop: a blocking read from the notification port
// per iteration, with each decoded event resolved against the watch registry
// and delivered to the handler. It returns ErrPortClosed once Close is
// invoked, or another error if reading fails irrecoverably. A malformed event
// buffer aborts only that buffer's decoding (the failure is surfaced through
// the error handler or log) and the loop proceeds to the next read.
func (w *Watcher) Run(handler Handler) error {
	buffer := make([]byte, readBufferSize)
	for {
		// Perform a blocking read.
		length, err := w.port.Read(buffer)
		if err != nil {
			if errors.Is(err, ErrPortClosed) {
				return ErrPortClosed
			}
			return errors.Wrap(err, "unable to read from notification port")
		}

		// Decode and dispatch the buffer's records.
		decoder := newDecoder(buffer[:length])
		for {
			event, ok, err := decoder.next()
			if err != nil {
				w.reportError(errors.Wrap(err, "unable to decode event buffer"))
				break
			} else if !ok {
				break
			}
			w.dispatch(event, handler)
		}
	}
}

// dispatch resolves a single raw event against the watch registry and invokes
// the handler if the event's watch is still registered.
func (w *Watcher) dispatch(raw RawEvent, handler Handler) {
	// Handle kernel queue overflow notifications, which carry an invalid
	// watch descriptor.
	if raw.Mask&InQueueOverflow != 0 {
		w.statistics.recordOverflow()
		w.logger.Warn(errors.New("kernel event queue overflow, events were lost"))
		return
	}

	// Resolve the event's watch. Copy out what's needed so that the lock
	// isn't held across the handler invocation.
	w.lock.Lock()
	watch := w.table.lookup(raw.WatchDescriptor)
	var event Event
	var watchMask Mask
	var autoAdd bool
	if watch != nil {
		event = Event{
			Path:   watch.Path,
			Mask:   raw.Mask,
			Cookie: raw.Cookie,
			Name:   raw.Name,
		}
		watchMask = watch.Mask
		autoAdd = watch.autoAdd
	}
	w.lock.Unlock()

	// If the watch is no longer registered, then the kernel emitted an event
	// for a since-removed watch. This race is inherent to the kernel
	// interface and the event is discarded silently.
	if watch == nil {
		w.statistics.recordDiscarded()
		w.logger.Debugf("discarded event for unknown descriptor %d", raw.WatchDescriptor)
		return
	}

	// Deliver the event. The handler sees the event before any terminal
	// handling removes the watch entry.
	handler(event)
	w.statistics.recordDispatched(raw.Mask)

	// If the event indicates that the watched object was removed, unmounted,
	// or that the kernel invalidated the watch, then drop the registry entry.
	// No kernel removal is requested since the kernel-side watch is already
	// gone; the eviction callback no-ops for the same reason.
	if raw.Mask&(InIgnored|InDeleteSelf|InUnmount) != 0 {
		w.lock.Lock()
		if current := w.table.lookup(raw.WatchDescriptor); current != nil && current.Path == event.Path {
			w.table.remove(raw.WatchDescriptor)
			if w.evictor != nil {
				w.evictor.Remove(event.Path)
			}
		}
		w.lock.Unlock()
		w.logger.Debugf("dropped terminated watch on %s (descriptor %d)", event.Path, raw.WatchDescriptor)
		return
	}

	// If a subdirectory appeared under an auto-add watch, then watch it with
	// the parent's mask. A directory that vanishes before the watch can be
	// established is skipped.
	if autoAdd && raw.Name != "" && raw.Mask&InIsDir != 0 && raw.Mask&(InCreate|InMovedTo) != 0 {
		child := filepath.Join(event.Path, raw.Name)
		if w.filter != nil && w.filter(child) {
			return
		}
		if _, err := w.Add(child, watchMask); err != nil {
			if errors.Is(err, ErrInvalidPath) {
				w.logger.Debugf("skipped vanished directory %s", child)
			} else {
				w.reportError(errors.Wrap(err, "unable to watch created subdirectory"))
			}
		}
	}
}

// reportError surfaces a non-fatal dispatch error through the error handler
// if one is set, or the log otherwise.
func (w *Watcher) reportError(err error) {
	if w.errorHandler != nil {
		w.errorHandler(err)
	} else {
		w.logger.Error(err)
	}
}

// Close releases the notification port and clears the watch registry. It is
// guaranteed to release the port on all invocation paths and is safe to
// invoke while a Run loop is blocked reading in another goroutine, in which
// case the pending read fails with ErrPortClosed. After Close, every
// previously issued watch descriptor is invalid. Close is idempotent.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		// Close the port first so that any pending read unblocks.
		w.closeError = w.port.Close()

		// Clear the registry. Clearing the evictor triggers eviction
		// callbacks, which no-op against the already-cleared table.
		w.lock.Lock()
		w.table.clear()
		if w.evictor != nil {
			w.evictor.Clear()
		}
		w.lock.Unlock()

		w.logger.Debugf("session %s closed", w.identifier)
	})
	return w.closeError
}
