package inotify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pathwatch/pathwatch/pkg/filter"
)

const (
	// testEventWaitTime is the maximum time tests wait for an event to be
	// dispatched.
	testEventWaitTime = 5 * time.Second
	// testPollInterval is the interval at which tests poll for asynchronous
	// state changes.
	testPollInterval = 10 * time.Millisecond
)

// fakePort is an in-memory Port implementation for dispatch testing. Watch
// descriptors are assigned sequentially and event buffers are injected
// explicitly.
type fakePort struct {
	// lock serializes access to watch state.
	lock sync.Mutex
	// next is the next descriptor to assign.
	next int32
	// watches maps paths to their descriptors.
	watches map[string]int32
	// masks maps descriptors to their masks.
	masks map[int32]Mask
	// removed records descriptors passed to RemoveWatch.
	removed []int32
	// removeError, if set, is returned by RemoveWatch.
	removeError error
	// buffers delivers injected event buffers to Read.
	buffers chan []byte
	// closed signals closure.
	closed chan struct{}
	// closeOnce guards closure.
	closeOnce sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		next:    1,
		watches: make(map[string]int32),
		masks:   make(map[int32]Mask),
		buffers: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (p *fakePort) AddWatch(path string, mask Mask) (int32, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if descriptor, ok := p.watches[path]; ok {
		p.masks[descriptor] = mask
		return descriptor, nil
	}
	descriptor := p.next
	p.next++
	p.watches[path] = descriptor
	p.masks[descriptor] = mask
	return descriptor, nil
}

func (p *fakePort) RemoveWatch(descriptor int32) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.removed = append(p.removed, descriptor)
	for path, d := range p.watches {
		if d == descriptor {
			delete(p.watches, path)
		}
	}
	delete(p.masks, descriptor)
	return p.removeError
}

func (p *fakePort) Read(buffer []byte) (int, error) {
	// Drain any pending buffer before honoring closure so that injection
	// followed by closure is deterministic.
	select {
	case injected := <-p.buffers:
		return copy(buffer, injected), nil
	default:
	}
	select {
	case injected := <-p.buffers:
		return copy(buffer, injected), nil
	case <-p.closed:
		return 0, ErrPortClosed
	}
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}

// inject delivers a synthetic event buffer to the next Read.
func (p *fakePort) inject(buffer []byte) {
	p.buffers <- buffer
}

// descriptorFor returns the descriptor assigned to a path, if any.
func (p *fakePort) descriptorFor(path string) (int32, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	descriptor, ok := p.watches[path]
	return descriptor, ok
}

// wasRemoved indicates whether RemoveWatch was invoked for a descriptor.
func (p *fakePort) wasRemoved(descriptor int32) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, removed := range p.removed {
		if removed == descriptor {
			return true
		}
	}
	return false
}

// startDispatch runs a watcher's dispatch loop in a goroutine, returning
// channels carrying dispatched events and the loop's exit error.
func startDispatch(watcher *Watcher) (chan Event, chan error) {
	events := make(chan Event, 64)
	exit := make(chan error, 1)
	go func() {
		exit <- watcher.Run(func(event Event) {
			events <- event
		})
	}()
	return events, exit
}

// awaitCondition polls a condition until it holds or a deadline elapses.
func awaitCondition(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(testEventWaitTime)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(testPollInterval)
	}
	t.Fatal("condition not reached in time:", description)
}

// TestAddLookup tests that addition followed by lookup yields a matching
// entry.
func TestAddLookup(t *testing.T) {
	watcher := newWatcher(newFakePort(), nil)
	defer watcher.Close()

	descriptor, err := watcher.Add("/tmp/x", InModify)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}

	watch, ok := watcher.Lookup(descriptor)
	if !ok {
		t.Fatal("added watch not resolvable")
	}
	if watch.Path != "/tmp/x" || watch.Mask != InModify {
		t.Error("resolved watch fields mismatch")
	}

	if reverse, ok := watcher.WatchDescriptor("/tmp/x"); !ok || reverse != descriptor {
		t.Error("reverse lookup by path failed")
	}

	if watches := watcher.Watches(); len(watches) != 1 {
		t.Error("watch snapshot has unexpected size")
	}
}

// TestDuplicateAddUpdatesMask tests that re-adding a watched path updates the
// existing entry's mask rather than creating a second entry.
func TestDuplicateAddUpdatesMask(t *testing.T) {
	watcher := newWatcher(newFakePort(), nil)
	defer watcher.Close()

	first, err := watcher.Add("/tmp/x", InModify)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	second, err := watcher.Add("/tmp/x", InModify|InAttrib)
	if err != nil {
		t.Fatal("unable to re-add watch:", err)
	}
	if first != second {
		t.Fatal("duplicate addition returned a different descriptor")
	}
	if watch, ok := watcher.Lookup(first); !ok || watch.Mask != InModify|InAttrib {
		t.Error("duplicate addition did not update mask")
	}
	if watches := watcher.Watches(); len(watches) != 1 {
		t.Error("duplicate addition created a second entry")
	}
}

// TestRemove tests removal semantics, including removal of unknown watches.
func TestRemove(t *testing.T) {
	port := newFakePort()
	watcher := newWatcher(port, nil)
	defer watcher.Close()

	descriptor, err := watcher.Add("/tmp/x", InModify)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	if err := watcher.Remove(descriptor); err != nil {
		t.Fatal("unable to remove watch:", err)
	}
	if _, ok := watcher.Lookup(descriptor); ok {
		t.Error("removed watch still resolvable")
	}
	if !port.wasRemoved(descriptor) {
		t.Error("kernel removal not requested")
	}
	if err := watcher.Remove(descriptor); !errors.Is(err, ErrUnknownWatch) {
		t.Error("second removal did not fail with ErrUnknownWatch:", err)
	}
}

// TestRemoveDropsEntryOnKernelFailure tests that the registry entry is
// dropped even when the kernel removal call fails.
func TestRemoveDropsEntryOnKernelFailure(t *testing.T) {
	port := newFakePort()
	port.removeError = &KernelError{Errno: 22}
	watcher := newWatcher(port, nil)
	defer watcher.Close()

	descriptor, err := watcher.Add("/tmp/x", InModify)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	if err := watcher.Remove(descriptor); err == nil {
		t.Fatal("kernel removal failure not reported")
	}
	if _, ok := watcher.Lookup(descriptor); ok {
		t.Error("entry retained despite removal")
	}
}

// TestDispatchModify tests the basic dispatch scenario: a MODIFY event for a
// watched path reaches the handler with the watched path and mask.
func TestDispatchModify(t *testing.T) {
	port := newFakePort()
	watcher := newWatcher(port, nil)
	events, exit := startDispatch(watcher)

	descriptor, err := watcher.Add("/tmp/x", InModify)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	port.inject(appendRecord(nil, descriptor, InModify, 0, ""))

	select {
	case event := <-events:
		if event.Path != "/tmp/x" {
			t.Error("dispatched event has incorrect path:", event.Path)
		}
		if event.Mask != InModify {
			t.Error("dispatched event has incorrect mask:", event.Mask)
		}
	case <-time.After(testEventWaitTime):
		t.Fatal("event not dispatched in time")
	}

	if statistics := watcher.Statistics(); statistics.Dispatched != 1 {
		t.Error("dispatch statistics incorrect")
	}

	watcher.Close()
	if err := <-exit; !errors.Is(err, ErrPortClosed) {
		t.Error("dispatch loop did not exit with ErrPortClosed:", err)
	}
}

// TestDispatchUnknownDescriptor tests that an event referencing an
// unregistered descriptor is discarded without handler invocation or error.
func TestDispatchUnknownDescriptor(t *testing.T) {
	port := newFakePort()
	watcher := newWatcher(port, nil)
	events, exit := startDispatch(watcher)

	port.inject(appendRecord(nil, 42, InModify, 0, ""))

	awaitCondition(t, "discard recorded", func() bool {
		return watcher.Statistics().Discarded == 1
	})
	if len(events) != 0 {
		t.Error("handler invoked for unknown descriptor")
	}

	watcher.Close()
	if err := <-exit; !errors.Is(err, ErrPortClosed) {
		t.Error("dispatch loop did not exit with ErrPortClosed:", err)
	}
}

// TestDispatchTerminalEventRemovesEntry tests that a terminal event removes
// the watch entry after the handler has seen the event.
func TestDispatchTerminalEventRemovesEntry(t *testing.T) {
	port := newFakePort()
	watcher := newWatcher(port, nil)
	events, exit := startDispatch(watcher)

	descriptor, err := watcher.Add("/tmp/x", InAllEvents)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	port.inject(appendRecord(nil, descriptor, InDeleteSelf, 0, ""))

	select {
	case event := <-events:
		if event.Mask != InDeleteSelf {
			t.Error("terminal event has incorrect mask:", event.Mask)
		}
	case <-time.After(testEventWaitTime):
		t.Fatal("terminal event not dispatched in time")
	}

	awaitCondition(t, "terminated watch entry removed", func() bool {
		_, ok := watcher.Lookup(descriptor)
		return !ok
	})

	watcher.Close()
	<-exit
}

// TestDispatchMalformedBufferContinues tests that a malformed buffer is
// surfaced through the error handler and that the loop proceeds to the next
// read.
func TestDispatchMalformedBufferContinues(t *testing.T) {
	port := newFakePort()
	decodeErrors := make(chan error, 1)
	watcher := newWatcher(port, &Options{
		ErrorHandler: func(err error) {
			decodeErrors <- err
		},
	})
	events, exit := startDispatch(watcher)

	descriptor, err := watcher.Add("/tmp/x", InModify)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}

	// Inject a buffer containing one complete record and a truncated tail.
	buffer := appendRecord(nil, descriptor, InModify, 0, "")
	buffer = append(buffer, 0xff, 0xff)
	port.inject(buffer)

	select {
	case <-events:
	case <-time.After(testEventWaitTime):
		t.Fatal("complete record preceding truncation not dispatched")
	}
	select {
	case err := <-decodeErrors:
		if !errors.Is(err, ErrMalformedEvent) {
			t.Error("decode failure is not ErrMalformedEvent:", err)
		}
	case <-time.After(testEventWaitTime):
		t.Fatal("decode failure not surfaced")
	}

	// Verify that the loop is still dispatching.
	port.inject(appendRecord(nil, descriptor, InModify, 0, ""))
	select {
	case <-events:
	case <-time.After(testEventWaitTime):
		t.Fatal("dispatch loop did not continue after malformed buffer")
	}

	watcher.Close()
	if err := <-exit; !errors.Is(err, ErrPortClosed) {
		t.Error("dispatch loop did not exit with ErrPortClosed:", err)
	}
}

// TestCloseInvalidatesWatches tests that closure fails a pending read with
// ErrPortClosed and invalidates all previously issued descriptors.
func TestCloseInvalidatesWatches(t *testing.T) {
	port := newFakePort()
	watcher := newWatcher(port, nil)
	_, exit := startDispatch(watcher)

	first, err := watcher.Add("/tmp/x", InModify)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	second, err := watcher.Add("/tmp/y", InCreate)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}

	if err := watcher.Close(); err != nil {
		t.Fatal("unable to close watcher:", err)
	}
	select {
	case err := <-exit:
		if !errors.Is(err, ErrPortClosed) {
			t.Error("pending read did not fail with ErrPortClosed:", err)
		}
	case <-time.After(testEventWaitTime):
		t.Fatal("pending read did not unblock on closure")
	}

	if _, ok := watcher.Lookup(first); ok {
		t.Error("descriptor resolvable after closure")
	}
	if _, ok := watcher.Lookup(second); ok {
		t.Error("descriptor resolvable after closure")
	}
	if len(watcher.Watches()) != 0 {
		t.Error("watch registry non-empty after closure")
	}

	// Closure is idempotent.
	if err := watcher.Close(); err != nil {
		t.Error("repeated closure failed:", err)
	}
}

// TestDispatchQueueOverflow tests that queue overflow notifications are
// absorbed without handler invocation.
func TestDispatchQueueOverflow(t *testing.T) {
	port := newFakePort()
	watcher := newWatcher(port, nil)
	events, exit := startDispatch(watcher)

	port.inject(appendRecord(nil, -1, InQueueOverflow, 0, ""))

	awaitCondition(t, "overflow recorded", func() bool {
		return watcher.Statistics().Overflows == 1
	})
	if len(events) != 0 {
		t.Error("handler invoked for queue overflow")
	}

	watcher.Close()
	<-exit
}

// TestAutoAdd tests that a subdirectory created under an auto-add watch is
// watched automatically with the parent's mask.
func TestAutoAdd(t *testing.T) {
	port := newFakePort()
	watcher := newWatcher(port, &Options{AutoAdd: true})
	_, exit := startDispatch(watcher)

	descriptor, err := watcher.Add("/tmp/root", InCreate|InDelete)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	port.inject(appendRecord(nil, descriptor, InCreate|InIsDir, 0, "sub"))

	awaitCondition(t, "subdirectory watched", func() bool {
		child, ok := port.descriptorFor("/tmp/root/sub")
		if !ok {
			return false
		}
		watch, ok := watcher.Lookup(child)
		return ok && watch.Mask == InCreate|InDelete
	})

	watcher.Close()
	<-exit
}

// TestAutoAddFiltered tests that the exclusion filter suppresses automatic
// watching of created subdirectories.
func TestAutoAddFiltered(t *testing.T) {
	excludeSub, err := filter.New([]string{"sub"})
	if err != nil {
		t.Fatal("unable to create filter:", err)
	}

	port := newFakePort()
	watcher := newWatcher(port, &Options{AutoAdd: true, Filter: excludeSub})
	events, exit := startDispatch(watcher)

	descriptor, err := watcher.Add("/tmp/root", InCreate)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	port.inject(appendRecord(nil, descriptor, InCreate|InIsDir, 0, "sub"))

	// Wait for the creation event to be dispatched, then verify that no
	// watch was established for the excluded subdirectory.
	select {
	case <-events:
	case <-time.After(testEventWaitTime):
		t.Fatal("creation event not dispatched in time")
	}
	if _, ok := port.descriptorFor("/tmp/root/sub"); ok {
		t.Error("excluded subdirectory was watched")
	}

	watcher.Close()
	<-exit
}

// TestEviction tests that bounded watchers evict the least-recently-added
// watch when the bound is exceeded.
func TestEviction(t *testing.T) {
	port := newFakePort()
	watcher := newWatcher(port, &Options{MaximumWatches: 2})
	defer watcher.Close()

	first, err := watcher.Add("/tmp/a", InModify)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	if _, err := watcher.Add("/tmp/b", InModify); err != nil {
		t.Fatal("unable to add watch:", err)
	}
	if _, err := watcher.Add("/tmp/c", InModify); err != nil {
		t.Fatal("unable to add watch:", err)
	}

	if _, ok := watcher.Lookup(first); ok {
		t.Error("oldest watch not evicted")
	}
	if !port.wasRemoved(first) {
		t.Error("kernel removal not requested for evicted watch")
	}
	if len(watcher.Watches()) != 2 {
		t.Error("watch count exceeds bound")
	}
}

// TestUpdate tests mask updates for existing watches.
func TestUpdate(t *testing.T) {
	watcher := newWatcher(newFakePort(), nil)
	defer watcher.Close()

	descriptor, err := watcher.Add("/tmp/x", InModify)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	if err := watcher.Update(descriptor, InModify|InAttrib); err != nil {
		t.Fatal("unable to update watch:", err)
	}
	if watch, ok := watcher.Lookup(descriptor); !ok || watch.Mask != InModify|InAttrib {
		t.Error("update did not change mask")
	}
	if err := watcher.Update(999, InModify); !errors.Is(err, ErrUnknownWatch) {
		t.Error("update of unknown watch did not fail with ErrUnknownWatch:", err)
	}
}

// TestRenameCookiePassthrough tests that paired move events carry the same
// cookie through to handlers unmodified.
func TestRenameCookiePassthrough(t *testing.T) {
	port := newFakePort()
	watcher := newWatcher(port, nil)
	events, exit := startDispatch(watcher)

	descriptor, err := watcher.Add("/tmp/root", InMove)
	if err != nil {
		t.Fatal("unable to add watch:", err)
	}
	buffer := appendRecord(nil, descriptor, InMovedFrom, 1234, "before")
	buffer = appendRecord(buffer, descriptor, InMovedTo, 1234, "after")
	port.inject(buffer)

	var received []Event
	for len(received) < 2 {
		select {
		case event := <-events:
			received = append(received, event)
		case <-time.After(testEventWaitTime):
			t.Fatal("move events not dispatched in time")
		}
	}
	if received[0].Cookie != 1234 || received[1].Cookie != 1234 {
		t.Error("move cookies not passed through unmodified")
	}
	if received[0].Name != "before" || received[1].Name != "after" {
		t.Error("move names incorrect")
	}

	watcher.Close()
	<-exit
}
