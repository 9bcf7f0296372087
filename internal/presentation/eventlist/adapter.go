// Package eventlist turns an observed event collection into list rows with
// per-user favorite and ownership state.
package eventlist

import (
	"fmt"
	"sync"

	"copenhagenbuzz/internal/domain"
	"copenhagenbuzz/internal/live"
)

// Row is everything needed to render one event.
type Row struct {
	Event            domain.Event `json:"event"`
	IsFavorite       bool         `json:"isFavorite"`
	IsOwner          bool         `json:"isOwner"`
	ShowEditControls bool         `json:"showEditControls"`
	DateLabel        string       `json:"dateLabel"`
	PhotoURL         string       `json:"photoUrl"`
	// Placeholder is set for rows requested outside the current bounds.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Callbacks receive row actions. Nil callbacks are skipped.
type Callbacks struct {
	// OnFavoriteToggle is called with the event and its desired favorite state.
	OnFavoriteToggle func(event domain.Event, favorite bool)
	OnEdit           func(event domain.Event)
	OnDelete         func(event domain.Event)
}

// Adapter holds the rows for one viewer. It never changes the repository
// itself; row actions go through Callbacks.
type Adapter struct {
	source        live.Observable[[]domain.Event]
	currentUserID string
	callbacks     Callbacks

	mu          sync.RWMutex
	events      []domain.Event
	favoriteIDs map[string]struct{}
	listening   bool
	cancel      func()
	onChange    func()
}

// New returns an adapter for currentUserID, which is empty for guests.
func New(source live.Observable[[]domain.Event], currentUserID string, callbacks Callbacks) *Adapter {
	return &Adapter{
		source:        source,
		currentUserID: currentUserID,
		callbacks:     callbacks,
		favoriteIDs:   make(map[string]struct{}),
	}
}

// OnChange registers fn to run after every row-set or favorite-set change.
func (a *Adapter) OnChange(fn func()) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// StartListening binds the rows to the source. A second call is a no-op.
func (a *Adapter) StartListening() {
	a.mu.Lock()
	if a.listening || a.source == nil {
		a.mu.Unlock()
		return
	}
	a.listening = true
	a.mu.Unlock()

	cancel := a.source.Observe(a.Submit)

	a.mu.Lock()
	if !a.listening {
		a.mu.Unlock()
		cancel()
		return
	}
	a.cancel = cancel
	a.mu.Unlock()
}

// StopListening unbinds from the source. Rows keep their last value.
func (a *Adapter) StopListening() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.listening = false
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Listening reports whether the adapter is bound to its source.
func (a *Adapter) Listening() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.listening
}

// Submit replaces the whole row set.
func (a *Adapter) Submit(events []domain.Event) {
	cp := make([]domain.Event, len(events))
	copy(cp, events)
	a.mu.Lock()
	a.events = cp
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// UpdateFavoriteIDs replaces the favorite set without touching the rows.
func (a *Adapter) UpdateFavoriteIDs(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	a.mu.Lock()
	a.favoriteIDs = set
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// RowCount returns the number of rows.
func (a *Adapter) RowCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.events)
}

// Bind returns the row at index, or a placeholder row when index is out of range.
func (a *Adapter) Bind(index int) Row {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if index < 0 || index >= len(a.events) {
		return Row{Placeholder: true, PhotoURL: domain.PlaceholderPhotoURL}
	}
	return a.rowLocked(a.events[index])
}

// Rows binds every row.
func (a *Adapter) Rows() []Row {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows := make([]Row, 0, len(a.events))
	for _, e := range a.events {
		rows = append(rows, a.rowLocked(e))
	}
	return rows
}

func (a *Adapter) rowLocked(e domain.Event) Row {
	_, fav := a.favoriteIDs[e.ID]
	owner := e.IsOwnedBy(a.currentUserID)
	photo := e.PhotoURL
	if photo == "" {
		photo = domain.PlaceholderPhotoURL
	}
	return Row{
		Event:            e,
		IsFavorite:       fav,
		IsOwner:          owner,
		ShowEditControls: owner,
		DateLabel:        domain.FormatDate(e.Date),
		PhotoURL:         photo,
	}
}

// IndexOf returns the row index of eventID, or -1.
func (a *Adapter) IndexOf(eventID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for i, e := range a.events {
		if e.ID == eventID {
			return i
		}
	}
	return -1
}

// ToggleFavorite asks for the opposite favorite state of the row at index.
// It reports whether a callback was dispatched.
func (a *Adapter) ToggleFavorite(index int) bool {
	row := a.Bind(index)
	if row.Placeholder || a.callbacks.OnFavoriteToggle == nil {
		return false
	}
	a.callbacks.OnFavoriteToggle(row.Event, !row.IsFavorite)
	return true
}

// Edit dispatches OnEdit for rows the viewer owns.
func (a *Adapter) Edit(index int) bool {
	row := a.Bind(index)
	if row.Placeholder || !row.ShowEditControls || a.callbacks.OnEdit == nil {
		return false
	}
	a.callbacks.OnEdit(row.Event)
	return true
}

// Delete dispatches OnDelete for rows the viewer owns.
func (a *Adapter) Delete(index int) bool {
	row := a.Bind(index)
	if row.Placeholder || !row.ShowEditControls || a.callbacks.OnDelete == nil {
		return false
	}
	a.callbacks.OnDelete(row.Event)
	return true
}

// FavoriteIDs lists the ids of events in favorites.
func FavoriteIDs(favorites []domain.Event) []string {
	ids := make([]string, 0, len(favorites))
	for _, e := range favorites {
		ids = append(ids, e.ID)
	}
	return ids
}

// FormatDistance renders meters as "1.2 km" from one kilometer up and "850 m" below.
func FormatDistance(meters float64) string {
	if meters >= 1000 {
		return fmt.Sprintf("%.1f km", meters/1000)
	}
	return fmt.Sprintf("%.0f m", meters)
}
