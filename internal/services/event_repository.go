package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"copenhagenbuzz/internal/domain"
	"copenhagenbuzz/internal/live"
	"copenhagenbuzz/internal/store"
)

// DefaultTreeRoot is the path every event and favorite lives under.
const DefaultTreeRoot = "copenhagen_buzz"

// EventRepository is the only component that talks to the store about events
// and favorites. Observables are updated exclusively from store watches; the
// mutators never touch them directly. Observers are called on the dispatcher.
type EventRepository struct {
	store  domain.Store
	d      live.Dispatcher
	logger *slog.Logger
	root   string
	newKey func() string
	now    func() time.Time

	events      *live.Value[[]domain.Event]
	errs        *live.Value[string]
	noFavorites *live.Value[[]domain.Event]

	mu        sync.Mutex
	closed    bool
	eventsSub domain.Subscription
	favorites map[string]*favoriteSet

	writes sync.WaitGroup
}

type favoriteSet struct {
	value *live.Value[[]domain.Event]
	refs  int
	sub   domain.Subscription
}

// Option configures an EventRepository.
type Option func(*EventRepository)

// WithRoot sets the tree root. Defaults to DefaultTreeRoot.
func WithRoot(root string) Option {
	return func(r *EventRepository) { r.root = root }
}

// WithKeyGenerator replaces the push key generator.
func WithKeyGenerator(fn func() string) Option {
	return func(r *EventRepository) { r.newKey = fn }
}

// WithClock replaces time.Now for sample seeding.
func WithClock(fn func() time.Time) Option {
	return func(r *EventRepository) { r.now = fn }
}

// NewEventRepository returns a repository already watching the events collection.
func NewEventRepository(s domain.Store, d live.Dispatcher, logger *slog.Logger, opts ...Option) *EventRepository {
	r := &EventRepository{
		store:       s,
		d:           d,
		logger:      logger,
		root:        DefaultTreeRoot,
		newKey:      store.NewPushKey,
		now:         time.Now,
		events:      live.NewValue(d, []domain.Event{}),
		errs:        live.NewValue(d, ""),
		noFavorites: live.NewValue(d, []domain.Event{}),
		favorites:   make(map[string]*favoriteSet),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.loadEvents()
	return r
}

func (r *EventRepository) eventsPath() string { return store.Join(r.root, "events") }

func (r *EventRepository) eventPath(id string) string { return store.Join(r.root, "events", id) }

func (r *EventRepository) favoritesPath() string { return store.Join(r.root, "favorites") }

func (r *EventRepository) userFavoritesPath(uid string) string {
	return store.Join(r.root, "favorites", uid)
}

func (r *EventRepository) favoritePath(uid, eventID string) string {
	return store.Join(r.root, "favorites", uid, eventID)
}

func (r *EventRepository) loadEvents() {
	sub, err := r.store.Watch(r.eventsPath(), domain.Query{OrderByChild: "date"},
		func(snap domain.Snapshot) {
			r.events.Set(r.decodeEvents(snap))
		},
		func(err error) { r.fail("Failed to load events", err) },
	)
	if err != nil {
		r.fail("Failed to load events", err)
		return
	}
	r.mu.Lock()
	r.eventsSub = sub
	r.mu.Unlock()
}

// decodeEvents decodes every child of snap in order. Malformed records are skipped.
func (r *EventRepository) decodeEvents(snap domain.Snapshot) []domain.Event {
	list := make([]domain.Event, 0, len(snap.Children))
	for _, child := range snap.Children {
		var e domain.Event
		if err := child.Decode(&e); err != nil {
			r.logger.Warn("skipping malformed event", "key", child.Key, "error", err)
			continue
		}
		if e.ID == "" {
			e.ID = child.Key
		}
		list = append(list, e)
	}
	return list
}

// Events is the ordered collection of all events.
func (r *EventRepository) Events() live.Observable[[]domain.Event] {
	return r.events
}

// Errors holds the latest failure message.
func (r *EventRepository) Errors() live.Observable[string] {
	return r.errs
}

// Favorites returns the favorites of the user in ctx while LoadFavorites holds
// a watch for that user. Otherwise, and for guests, it is an always-empty collection.
func (r *EventRepository) Favorites(ctx context.Context) live.Observable[[]domain.Event] {
	uid, ok := domain.UserIDFromContext(ctx)
	if !ok {
		return r.noFavorites
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if fs, ok := r.favorites[uid]; ok {
		return fs.value
	}
	return r.noFavorites
}

// LoadFavorites starts watching the favorites of the user in ctx and returns
// the func that releases it. Calls for the same user share one watch, which is
// cancelled when the last holder releases it.
func (r *EventRepository) LoadFavorites(ctx context.Context) (release func()) {
	uid, ok := domain.UserIDFromContext(ctx)
	if !ok {
		r.logger.Info("load favorites skipped: no authenticated user")
		return func() {}
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() {}
	}
	if fs, ok := r.favorites[uid]; ok {
		fs.refs++
		r.mu.Unlock()
		return r.releaseFavorites(uid, fs)
	}
	fs := &favoriteSet{value: live.NewValue(r.d, []domain.Event{}), refs: 1}
	r.favorites[uid] = fs
	r.mu.Unlock()

	sub, err := r.store.Watch(r.userFavoritesPath(uid), domain.Query{},
		func(snap domain.Snapshot) {
			fs.value.Set(r.decodeEvents(snap))
		},
		func(err error) { r.fail("Failed to load favorites", err) },
	)
	if err != nil {
		r.mu.Lock()
		if r.favorites[uid] == fs {
			delete(r.favorites, uid)
		}
		r.mu.Unlock()
		r.fail("Failed to load favorites", err)
		return func() {}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sub.Cancel()
		return func() {}
	}
	fs.sub = sub
	r.mu.Unlock()
	return r.releaseFavorites(uid, fs)
}

func (r *EventRepository) releaseFavorites(uid string, fs *favoriteSet) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			fs.refs--
			if fs.refs > 0 || r.closed || r.favorites[uid] != fs {
				r.mu.Unlock()
				return
			}
			delete(r.favorites, uid)
			sub := fs.sub
			r.mu.Unlock()
			if sub != nil {
				sub.Cancel()
			}
		})
	}
}

// CurrentFavorites reads the favorites of the user in ctx once, without
// starting a watch. Guests have none.
func (r *EventRepository) CurrentFavorites(ctx context.Context) ([]domain.Event, error) {
	uid, ok := domain.UserIDFromContext(ctx)
	if !ok {
		return []domain.Event{}, nil
	}
	snap, err := r.store.Get(ctx, r.userFavoritesPath(uid))
	if err != nil {
		return nil, fmt.Errorf("read favorites of %s: %w", uid, err)
	}
	return r.decodeEvents(snap), nil
}

// AddEvent assigns a fresh push key to event and writes it. The id is
// returned immediately; the write completes in the background.
func (r *EventRepository) AddEvent(ctx context.Context, event *domain.Event) (string, error) {
	if event == nil || event.ID != "" {
		return "", fmt.Errorf("%w: new events must not have an id", domain.ErrInvalidEvent)
	}
	id := r.newKey()
	if id == "" {
		r.logger.Error("failed to generate key for new event")
		return "", fmt.Errorf("%w: empty key", domain.ErrInvalidEvent)
	}
	event.ID = id
	record := *event
	r.async(ctx, func(ctx context.Context) {
		if err := r.store.Set(ctx, r.eventPath(id), record); err != nil {
			r.fail("Failed to add event", err)
		}
	})
	return id, nil
}

// UpdateEvent overwrites the whole record at event.ID.
func (r *EventRepository) UpdateEvent(ctx context.Context, event domain.Event) error {
	if event.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidEvent)
	}
	r.async(ctx, func(ctx context.Context) {
		if err := r.store.Set(ctx, r.eventPath(event.ID), event); err != nil {
			r.fail("Failed to update event", err)
		}
	})
	return nil
}

// DeleteEvent removes the event and, independently, its copy from every
// user's favorites. The two are not transactional.
func (r *EventRepository) DeleteEvent(ctx context.Context, event domain.Event) error {
	if event.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidEvent)
	}
	r.async(ctx, func(ctx context.Context) {
		if err := r.store.Remove(ctx, r.eventPath(event.ID)); err != nil {
			r.fail("Failed to delete event", err)
		}
	})
	r.async(ctx, func(ctx context.Context) {
		r.removeFromAllFavorites(ctx, event.ID)
	})
	return nil
}

func (r *EventRepository) removeFromAllFavorites(ctx context.Context, eventID string) {
	snap, err := r.store.Get(ctx, r.favoritesPath())
	if err != nil {
		r.fail("Failed to access favorites", err)
		return
	}
	for _, user := range snap.Children {
		if err := r.store.Remove(ctx, r.favoritePath(user.Key, eventID)); err != nil {
			r.fail("Failed to remove favorite", err)
		}
	}
}

// AddFavorite stores a full copy of event in the favorites of the user in ctx.
func (r *EventRepository) AddFavorite(ctx context.Context, event domain.Event) error {
	uid, ok := domain.UserIDFromContext(ctx)
	if !ok {
		r.logger.Info("add favorite skipped: no authenticated user", "event_id", event.ID)
		return nil
	}
	if event.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidEvent)
	}
	r.async(ctx, func(ctx context.Context) {
		if err := r.store.Set(ctx, r.favoritePath(uid, event.ID), event); err != nil {
			r.fail("Failed to add favorite", err)
		}
	})
	return nil
}

// RemoveFavorite drops event from the favorites of the user in ctx.
func (r *EventRepository) RemoveFavorite(ctx context.Context, event domain.Event) error {
	uid, ok := domain.UserIDFromContext(ctx)
	if !ok {
		r.logger.Info("remove favorite skipped: no authenticated user", "event_id", event.ID)
		return nil
	}
	if event.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidEvent)
	}
	r.async(ctx, func(ctx context.Context) {
		if err := r.store.Remove(ctx, r.favoritePath(uid, event.ID)); err != nil {
			r.fail("Failed to remove favorite", err)
		}
	})
	return nil
}

// RemoveDuplicateEventsByName keeps the first event of each name in key order
// and deletes the rest.
func (r *EventRepository) RemoveDuplicateEventsByName(ctx context.Context) {
	r.async(ctx, func(ctx context.Context) {
		snap, err := r.store.Get(ctx, r.eventsPath())
		if err != nil {
			r.fail("Failed to load events", err)
			return
		}
		seen := make(map[string]struct{})
		var dupes []string
		for _, child := range snap.Children {
			var e domain.Event
			if err := child.Decode(&e); err != nil {
				r.logger.Warn("skipping malformed event", "key", child.Key, "error", err)
				continue
			}
			if _, ok := seen[e.Name]; ok {
				dupes = append(dupes, child.Key)
				continue
			}
			seen[e.Name] = struct{}{}
		}
		for _, key := range dupes {
			if err := r.store.Remove(ctx, r.eventPath(key)); err != nil {
				r.fail("Failed to delete event", err)
			}
		}
		if len(dupes) > 0 {
			r.logger.Info("removed duplicate events", "count", len(dupes))
		}
	})
}

// InitializeSampleEvents writes the sample batch when there are no events at
// all. The emptiness check and the writes are not atomic.
func (r *EventRepository) InitializeSampleEvents(ctx context.Context) {
	r.async(ctx, func(ctx context.Context) {
		snap, err := r.store.Get(ctx, r.eventsPath())
		if err != nil {
			r.fail("Error reading events", err)
			return
		}
		if snap.ChildrenCount() > 0 {
			r.logger.Debug("events already exist, skipping sample creation", "count", snap.ChildrenCount())
			return
		}
		r.logger.Info("no events found, creating sample events")
		for _, e := range SampleEvents(r.now()) {
			e.ID = r.newKey()
			if err := r.store.Set(ctx, r.eventPath(e.ID), *e); err != nil {
				r.fail("Failed to add event", err)
			}
		}
	})
}

// ClosestEvent scans the current events for the one nearest to (lat, lng).
func (r *EventRepository) ClosestEvent(lat, lng float64) (domain.Event, float64, bool) {
	return Closest(r.events.Get(), lat, lng)
}

// async runs fn in the background with a context that outlives the caller's.
func (r *EventRepository) async(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		fn(ctx)
	}()
}

// fail logs err and publishes "<msg>: <err>" on Errors.
func (r *EventRepository) fail(msg string, err error) {
	if err == nil {
		return
	}
	r.logger.Error(msg, "error", err)
	r.errs.Set(msg + ": " + err.Error())
}

// Flush waits for callbacks already posted to the dispatcher.
func (r *EventRepository) Flush() {
	if f, ok := r.d.(live.Flusher); ok {
		f.Flush()
	}
}

// Wait blocks until background writes have finished and their results were delivered.
func (r *EventRepository) Wait() {
	r.writes.Wait()
	r.Flush()
}

// Close cancels every watch. Writes already started still complete.
func (r *EventRepository) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := make([]domain.Subscription, 0, len(r.favorites)+1)
	if r.eventsSub != nil {
		subs = append(subs, r.eventsSub)
	}
	for _, fs := range r.favorites {
		if fs.sub != nil {
			subs = append(subs, fs.sub)
		}
	}
	r.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

var _ domain.EventRepository = (*EventRepository)(nil)
