package docstore

import "sync"

// docWatcher is the delivery half of a Subscription shared by the store
// backends. Publish never blocks the committing writer: the watcher keeps
// only the latest snapshot and a pump goroutine forwards it to the
// consumer channel. Because snapshots are published under the store's
// commit ordering, the consumer observes document versions in
// non-decreasing order, with intermediate versions possibly coalesced.
type docWatcher struct {
	ch     chan Doc
	notify chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	pending *Doc

	closeOnce sync.Once
	onClose   func()
}

func newDocWatcher(onClose func()) *docWatcher {
	w := &docWatcher{
		ch:      make(chan Doc),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go w.pump()
	return w
}

func (w *docWatcher) pump() {
	defer close(w.ch)
	for {
		select {
		case <-w.done:
			return
		case <-w.notify:
		}

		w.mu.Lock()
		doc := w.pending
		w.pending = nil
		w.mu.Unlock()
		if doc == nil {
			continue
		}

		select {
		case <-w.done:
			return
		case w.ch <- *doc:
		}
	}
}

// Publish replaces the pending snapshot and wakes the pump. Safe to call
// from the commit path of any backend.
func (w *docWatcher) Publish(doc Doc) {
	w.mu.Lock()
	w.pending = &doc
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Snapshots implements Subscription.
func (w *docWatcher) Snapshots() <-chan Doc {
	return w.ch
}

// Close implements Subscription. Idempotent.
func (w *docWatcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		if w.onClose != nil {
			w.onClose()
		}
	})
}
