package memory

import (
	"context"
	"sync"

	"bookmarket/internal/domain/repository"
)

// watcher coalesces change signals: a burst of writes produces at least one, and possibly only
// one, re-delivery of the full result set.
type watcher struct {
	dirty chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (w *watcher) signal() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.done) })
}

func (w *watcher) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// emit returns false to end the feed.
func (r *ChatRepository) watch(ctx context.Context, key string, emit func() bool) repository.Unsubscribe {
	w := &watcher{
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	r.watchMu.Lock()
	set, ok := r.watchers[key]
	if !ok {
		set = make(map[*watcher]struct{})
		r.watchers[key] = set
	}
	set[w] = struct{}{}
	r.watchMu.Unlock()

	w.signal()
	go func() {
		for {
			select {
			case <-w.done:
				return
			case <-ctx.Done():
				w.stop()
				r.unwatch(key, w)
				return
			case <-w.dirty:
				if w.stopped() {
					return
				}
				if !emit() {
					w.stop()
					r.unwatch(key, w)
					return
				}
			}
		}
	}()

	return func() {
		w.stop()
		r.unwatch(key, w)
	}
}

func (r *ChatRepository) unwatch(key string, w *watcher) {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if set, ok := r.watchers[key]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(r.watchers, key)
		}
	}
}

func (r *ChatRepository) notify(keys ...string) {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	for _, key := range keys {
		for w := range r.watchers[key] {
			w.signal()
		}
	}
}

// Watchers reports the number of live feeds; tests use it to assert that handles were released.
func (r *ChatRepository) Watchers() int {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	n := 0
	for _, set := range r.watchers {
		n += len(set)
	}
	return n
}
