package inotify

// Watch represents a single registered watch: the kernel-assigned descriptor,
// the path the watch was registered for, and the event mask in effect.
type Watch struct {
	// Descriptor is the kernel-assigned watch descriptor. It is unique while
	// the watch is active, but may be reused by the kernel after removal.
	Descriptor int32
	// Path is the watched path.
	Path string
	// Mask is the event mask in effect for the watch.
	Mask Mask
	// autoAdd indicates whether created subdirectories under this watch
	// should be watched automatically.
	autoAdd bool
}

// table is the watch registry, mapping kernel-assigned watch descriptors to
// their watch entries, with a secondary index by path. It performs no locking
// itself; the owning Watcher synchronizes access.
type table struct {
	// entries maps watch descriptors to watch entries.
	entries map[int32]*Watch
	// paths maps watched paths to their watch descriptors.
	paths map[string]int32
}

// newTable creates an empty watch table.
func newTable() *table {
	return &table{
		entries: make(map[int32]*Watch),
		paths:   make(map[string]int32),
	}
}

// insert records a watch entry, replacing any existing entry with the same
// descriptor.
func (t *table) insert(watch *Watch) {
	t.entries[watch.Descriptor] = watch
	t.paths[watch.Path] = watch.Descriptor
}

// remove deletes the entry for the specified descriptor and returns it, or
// nil if no such entry exists.
func (t *table) remove(descriptor int32) *Watch {
	watch, ok := t.entries[descriptor]
	if !ok {
		return nil
	}
	delete(t.entries, descriptor)
	delete(t.paths, watch.Path)
	return watch
}

// lookup returns the entry for the specified descriptor, or nil if no such
// entry exists.
func (t *table) lookup(descriptor int32) *Watch {
	return t.entries[descriptor]
}

// descriptorForPath returns the watch descriptor registered for the specified
// path, if any.
func (t *table) descriptorForPath(path string) (int32, bool) {
	descriptor, ok := t.paths[path]
	return descriptor, ok
}

// snapshot returns a copy of all entries for introspection.
func (t *table) snapshot() []Watch {
	watches := make([]Watch, 0, len(t.entries))
	for _, watch := range t.entries {
		watches = append(watches, *watch)
	}
	return watches
}

// clear removes all entries.
func (t *table) clear() {
	t.entries = make(map[int32]*Watch)
	t.paths = make(map[string]int32)
}
