package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"copenhagenbuzz/internal/live"
)

// Sentinel errors for event operations.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidEvent = errors.New("invalid event")
)

// PlaceholderPhotoURL is reported for events without a photo.
const PlaceholderPhotoURL = "https://picsum.photos/seed/placeholder/600/400"

// dateLayout is the dd/MM/yyyy format used by event forms and list rows.
const dateLayout = "02/01/2006"

// Location is a geocoded coordinate with its human-readable address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Event represents a local event as stored at events/{id}.
// Date is the start date in milliseconds since the Unix epoch.
type Event struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Location    Location `json:"location"`
	Date        int64    `json:"date"`
	PhotoURL    string   `json:"photoUrl"`
	OwnerID     string   `json:"ownerId"`
}

// NewEvent returns a new Event with the given fields. ID is assigned by the repository on create.
func NewEvent(name, description, eventType string, location Location, start time.Time, photoURL, ownerID string) *Event {
	return &Event{
		Name:        name,
		Description: description,
		Type:        eventType,
		Location:    location,
		Date:        start.UnixMilli(),
		PhotoURL:    photoURL,
		OwnerID:     ownerID,
	}
}

// StartTime returns Date as a time.Time in UTC.
func (e Event) StartTime() time.Time {
	return time.UnixMilli(e.Date).UTC()
}

// IsOwnedBy reports whether userID may edit or delete the event. Guests never own events.
func (e Event) IsOwnedBy(userID string) bool {
	return userID != "" && e.OwnerID == userID
}

// FormatDate renders a millisecond timestamp as dd/MM/yyyy.
func FormatDate(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(dateLayout)
}

// ParseStartDate parses "dd/MM/yyyy" or a range "dd/MM/yyyy - dd/MM/yyyy".
// Only the start of a range is kept.
func ParseStartDate(s string) (time.Time, error) {
	start, _, _ := strings.Cut(strings.TrimSpace(s), " - ")
	return time.Parse(dateLayout, strings.TrimSpace(start))
}

// EventRepository mediates every read and write of events and favorites.
// Mutators are asynchronous: they return once the write has been dispatched,
// and failures surface on Errors. Observables change only through store notifications.
type EventRepository interface {
	Events() live.Observable[[]Event]
	Favorites(ctx context.Context) live.Observable[[]Event]
	Errors() live.Observable[string]

	AddEvent(ctx context.Context, event *Event) (string, error)
	UpdateEvent(ctx context.Context, event Event) error
	DeleteEvent(ctx context.Context, event Event) error
	AddFavorite(ctx context.Context, event Event) error
	RemoveFavorite(ctx context.Context, event Event) error
	// LoadFavorites watches the caller's favorites until the returned func is called.
	LoadFavorites(ctx context.Context) (release func())
	// CurrentFavorites reads the caller's favorites once without watching them.
	CurrentFavorites(ctx context.Context) ([]Event, error)

	RemoveDuplicateEventsByName(ctx context.Context)
	InitializeSampleEvents(ctx context.Context)

	// ClosestEvent returns the current event nearest to the coordinate and its distance in meters.
	ClosestEvent(lat, lng float64) (Event, float64, bool)

	// Flush waits until callbacks already posted to the dispatcher have run.
	Flush()
}
