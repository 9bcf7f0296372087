package store

import (
	"context"
	"sync"
	"sync/atomic"

	"copenhagenbuzz/internal/domain"
)

// Reader reads the current subtree at a path.
type Reader func(ctx context.Context, path string) (domain.Snapshot, error)

// Hub fans change notifications out to watchers. Backends call Notify after
// each committed write; the hub re-reads every overlapping watch.
type Hub struct {
	read Reader

	mu       sync.Mutex
	watchers map[uint64]*watcher
	next     uint64
}

type watcher struct {
	hub      *Hub
	id       uint64
	path     string
	query    domain.Query
	onChange func(domain.Snapshot)
	onCancel func(error)

	// deliveries for one watcher never interleave
	mu        sync.Mutex
	cancelled atomic.Bool
}

// NewHub returns a Hub reading through read.
func NewHub(read Reader) *Hub {
	return &Hub{read: read, watchers: make(map[uint64]*watcher)}
}

// Watch registers a watcher and delivers the current subtree before returning.
func (h *Hub) Watch(ctx context.Context, path string, q domain.Query, onChange func(domain.Snapshot), onCancel func(error)) (domain.Subscription, error) {
	h.mu.Lock()
	w := &watcher{hub: h, id: h.next, path: path, query: q, onChange: onChange, onCancel: onCancel}
	h.next++
	h.watchers[w.id] = w
	h.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	snap, err := h.read(ctx, path)
	if err != nil {
		w.Cancel()
		return nil, err
	}
	w.onChange(Order(snap, q))
	return w, nil
}

// Notify refreshes every watcher whose path overlaps changed.
func (h *Hub) Notify(ctx context.Context, changed string) {
	for _, w := range h.snapshot() {
		if Overlaps(w.path, changed) {
			w.refresh(ctx)
		}
	}
}

// RefreshAll refreshes every watcher, e.g. after a lost notification connection.
func (h *Hub) RefreshAll(ctx context.Context) {
	for _, w := range h.snapshot() {
		w.refresh(ctx)
	}
}

// CancelAll cancels every watcher, reporting err to each onCancel.
func (h *Hub) CancelAll(err error) {
	for _, w := range h.snapshot() {
		w.Cancel()
		if w.onCancel != nil && err != nil {
			w.onCancel(err)
		}
	}
}

// Len returns the number of active watchers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

func (h *Hub) snapshot() []*watcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*watcher, 0, len(h.watchers))
	for _, w := range h.watchers {
		out = append(out, w)
	}
	return out
}

func (w *watcher) refresh(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled.Load() {
		return
	}
	snap, err := w.hub.read(ctx, w.path)
	if err != nil {
		w.Cancel()
		if w.onCancel != nil {
			w.onCancel(err)
		}
		return
	}
	if !w.cancelled.Load() {
		w.onChange(Order(snap, w.query))
	}
}

// Cancel implements domain.Subscription.
func (w *watcher) Cancel() {
	if w.cancelled.Swap(true) {
		return
	}
	w.hub.mu.Lock()
	delete(w.hub.watchers, w.id)
	w.hub.mu.Unlock()
}
