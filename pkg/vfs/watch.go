package vfs

import (
	"github.com/fsnotify/fsnotify"

	"github.com/nounverb/nvdb/pkg/storage"
)

// WatchFunc is invoked with the affected path on every mutation under a
// watched path.
type WatchFunc func(path string)

// Unwatch stops a previously registered callback.
type Unwatch func()

// watchEntry pairs a registered callback with a token Unwatch closes over,
// since Go closures have no usable identity for removal-by-value.
type watchEntry struct {
	token uint64
	cb    WatchFunc
}

// Watch registers cb to fire whenever p itself is notify()'d; changes to
// paths below p do not fire it. This in-process notifier works regardless of storage
// backend; when the backing adapter is filesystem-backed, NewFSWatcher
// below additionally layers a real fsnotify watch over the adapter's root
// directory, per SPEC_FULL §5.K.
func (v *VFS) Watch(p string, cb WatchFunc) Unwatch {
	p = cleanPath(p)
	v.watchMu.Lock()
	v.nextWatchToken++
	token := v.nextWatchToken
	v.watchers[p] = append(v.watchers[p], watchEntry{token: token, cb: cb})
	v.watchMu.Unlock()
	return func() {
		v.watchMu.Lock()
		defer v.watchMu.Unlock()
		entries := v.watchers[p]
		for i, e := range entries {
			if e.token == token {
				v.watchers[p] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

// FSWatcher layers a real fsnotify watch over a filesystem-backed adapter's
// root directory, passing each raw FS event's on-disk file name to the VFS
// notifier unchanged; it is not translated into a VFS path.
// Callers construct one only when the configured storage.Adapter is a
// *storage.FileAdapter; the memory adapter has no filesystem to watch and
// relies solely on the in-process Watch above.
type FSWatcher struct {
	watcher *fsnotify.Watcher
	vfs     *VFS
	done    chan struct{}
}

// NewFSWatcher starts watching adapter's root directory if it exposes one.
func NewFSWatcher(v *VFS, adapter storage.Adapter) (*FSWatcher, error) {
	fa, ok := adapter.(*storage.FileAdapter)
	if !ok {
		return nil, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(fa.Root()); err != nil {
		w.Close()
		return nil, err
	}
	fw := &FSWatcher{watcher: w, vfs: v, done: make(chan struct{})}
	go fw.loop()
	return fw, nil
}

func (fw *FSWatcher) loop() {
	for {
		select {
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.vfs.notify(ev.Name)
		case _, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
		case <-fw.done:
			return
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (fw *FSWatcher) Close() error {
	close(fw.done)
	return fw.watcher.Close()
}
