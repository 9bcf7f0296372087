package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	h "copenhagenbuzz/internal/delivery/http/helpers"
	"copenhagenbuzz/internal/domain"
	"copenhagenbuzz/internal/presentation/eventlist"
)

// LocationRequest is the geocoded location of an event.
type LocationRequest struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Address   string  `json:"address"`
}

// EventRequest is the request body for POST /events and PUT /events/{eventID}.
// Date is "dd/MM/yyyy" or a range "dd/MM/yyyy - dd/MM/yyyy" of which only the start is kept.
type EventRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Location    LocationRequest `json:"location"`
	Date        string          `json:"date" validate:"required,eventdate"`
	PhotoURL    string          `json:"photoUrl" validate:"omitempty,url"`
}

// Validate implements Validator.
func (e EventRequest) Validate() []string {
	if e.Name != "" && strings.TrimSpace(e.Name) == "" {
		return []string{"name must not be blank"}
	}
	return nil
}

// toEvent builds the full record. Validate must have passed.
func (e EventRequest) toEvent(ownerID string) *domain.Event {
	start, _ := domain.ParseStartDate(e.Date)
	loc := domain.Location{Latitude: e.Location.Latitude, Longitude: e.Location.Longitude, Address: strings.TrimSpace(e.Location.Address)}
	return domain.NewEvent(strings.TrimSpace(e.Name), strings.TrimSpace(e.Description), strings.TrimSpace(e.Type),
		loc, start, strings.TrimSpace(e.PhotoURL), ownerID)
}

// EventAcceptedResponse is returned when a write has been dispatched.
type EventAcceptedResponse struct {
	ID string `json:"id"`
}

// FavoriteToggleResponse reports the favorite state that was requested.
type FavoriteToggleResponse struct {
	EventID  string `json:"eventId"`
	Favorite bool   `json:"favorite"`
}

// ClosestEventResponse is the response body for GET /events/closest.
type ClosestEventResponse struct {
	Row            eventlist.Row `json:"row"`
	Index          int           `json:"index"`
	DistanceMeters float64       `json:"distanceMeters"`
	Distance       string        `json:"distance"`
}

// ErrorMessageResponse carries the latest repository error message.
type ErrorMessageResponse struct {
	Message string `json:"message"`
}

// EventListSuccessResponse is the success envelope for GET /events and GET /favorites (200).
type EventListSuccessResponse struct {
	Data  h.Paginated[eventlist.Row] `json:"data"`
	Error *h.APIError                `json:"error"`
}

type EventController struct {
	Logger *slog.Logger
	Repo   domain.EventRepository
}

func NewEventController(logger *slog.Logger, repo domain.EventRepository) *EventController {
	return &EventController{
		Logger: logger,
		Repo:   repo,
	}
}

// adapterFor builds a row adapter for the caller with the current events and favorites.
func (c *EventController) adapterFor(ctx context.Context, cb eventlist.Callbacks) (*eventlist.Adapter, error) {
	uid, _ := domain.UserIDFromContext(ctx)
	a := eventlist.New(c.Repo.Events(), uid, cb)
	a.Submit(c.Repo.Events().Get())
	if uid != "" {
		favorites, err := c.Repo.CurrentFavorites(ctx)
		if err != nil {
			return nil, err
		}
		a.UpdateFavoriteIDs(eventlist.FavoriteIDs(favorites))
	}
	return a, nil
}

func (c *EventController) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidEvent) {
		h.WriteJSONError(w, http.StatusBadRequest, h.ErrCodeBadRequest, err.Error())
		return
	}
	c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
	h.WriteJSONError(w, http.StatusInternalServerError, h.ErrCodeInternalError, "internal error")
}

// ListEvents godoc
// @Summary List events
// @Description Returns the event timeline ordered by start date. Rows carry isFavorite and isOwner for the caller; guests see no favorites and own nothing.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.EventListSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized (rejected token)"
// @Router /events [get]
func (c *EventController) ListEvents(w http.ResponseWriter, r *http.Request) {
	a, err := c.adapterFor(r.Context(), eventlist.Callbacks{})
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, h.Page(a.Rows(), h.ParsePagination(r)))
}

// GetEvent godoc
// @Summary Get one event row
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} helpers.APIResponse "data contains the row"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	a, err := c.adapterFor(r.Context(), eventlist.Callbacks{})
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	idx := a.IndexOf(eventID)
	if idx < 0 {
		h.WriteJSONError(w, http.StatusNotFound, h.ErrCodeNotFound, "event not found")
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, a.Bind(idx))
}

// ClosestEvent godoc
// @Summary Find the closest event
// @Description Returns the event nearest to the given coordinate, its row index in the timeline and the distance.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Success 200 {object} helpers.APIResponse "data contains row, index, distanceMeters and distance"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found (no events)"
// @Router /events/closest [get]
func (c *EventController) ClosestEvent(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		h.WriteJSONError(w, http.StatusBadRequest, h.ErrCodeBadRequest, "lat and lng must be valid coordinates")
		return
	}
	event, meters, ok := c.Repo.ClosestEvent(lat, lng)
	if !ok {
		h.WriteJSONError(w, http.StatusNotFound, h.ErrCodeNotFound, "no events")
		return
	}
	a, err := c.adapterFor(r.Context(), eventlist.Callbacks{})
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	idx := a.IndexOf(event.ID)
	h.WriteJSONSuccess(w, http.StatusOK, ClosestEventResponse{
		Row:            a.Bind(idx),
		Index:          idx,
		DistanceMeters: meters,
		Distance:       eventlist.FormatDistance(meters),
	})
}

// CreateEvent godoc
// @Summary Create an event
// @Description Dispatches the write and returns the new id. The event appears in GET /events once the store confirms it. Guests may create events; they are stored without an owner.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body EventRequest true "Event"
// @Success 202 {object} helpers.APIResponse "data.id is the new event id"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Router /events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	ownerID, _ := domain.UserIDFromContext(r.Context())
	id, err := c.Repo.AddEvent(r.Context(), req.toEvent(ownerID))
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusAccepted, EventAcceptedResponse{ID: id})
}

// UpdateEvent godoc
// @Summary Replace an event
// @Description Full overwrite of every field; omitted fields are cleared. Only the owner may update. The owner is kept.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param event body EventRequest true "Complete event"
// @Success 202 {object} helpers.APIResponse "data.id is the event id"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [put]
func (c *EventController) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	var req EventRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	var dispatchErr error
	a, err := c.adapterFor(r.Context(), eventlist.Callbacks{
		OnEdit: func(existing domain.Event) {
			updated := req.toEvent(existing.OwnerID)
			updated.ID = existing.ID
			dispatchErr = c.Repo.UpdateEvent(r.Context(), *updated)
		},
	})
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	if !c.ownerAction(w, a, eventID, a.Edit) {
		return
	}
	if dispatchErr != nil {
		c.writeDispatchError(w, r, dispatchErr)
		return
	}
	h.WriteJSONSuccess(w, http.StatusAccepted, EventAcceptedResponse{ID: eventID})
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Deletes the event and removes it from every user's favorites. Only the owner may delete.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 202 {object} helpers.APIResponse "data.id is the event id"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [delete]
func (c *EventController) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	var dispatchErr error
	a, err := c.adapterFor(r.Context(), eventlist.Callbacks{
		OnDelete: func(e domain.Event) { dispatchErr = c.Repo.DeleteEvent(r.Context(), e) },
	})
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	if !c.ownerAction(w, a, eventID, a.Delete) {
		return
	}
	if dispatchErr != nil {
		c.writeDispatchError(w, r, dispatchErr)
		return
	}
	h.WriteJSONSuccess(w, http.StatusAccepted, EventAcceptedResponse{ID: eventID})
}

// ownerAction runs action on the row of eventID and writes 404 or 403 when it cannot.
func (c *EventController) ownerAction(w http.ResponseWriter, a *eventlist.Adapter, eventID string, action func(int) bool) bool {
	idx := a.IndexOf(eventID)
	if idx < 0 {
		h.WriteJSONError(w, http.StatusNotFound, h.ErrCodeNotFound, "event not found")
		return false
	}
	if !action(idx) {
		h.WriteJSONError(w, http.StatusForbidden, h.ErrCodeForbidden, "only the owner can change this event")
		return false
	}
	return true
}

// ToggleFavorite godoc
// @Summary Toggle favorite
// @Description Adds the event to the caller's favorites, or removes it when it already is one.
// @Tags favorites
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 202 {object} helpers.APIResponse "data contains eventId and the requested favorite state"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/favorite [post]
func (c *EventController) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	var resp FavoriteToggleResponse
	var dispatchErr error
	a, err := c.adapterFor(r.Context(), eventlist.Callbacks{
		OnFavoriteToggle: func(e domain.Event, favorite bool) {
			resp = FavoriteToggleResponse{EventID: e.ID, Favorite: favorite}
			if favorite {
				dispatchErr = c.Repo.AddFavorite(r.Context(), e)
			} else {
				dispatchErr = c.Repo.RemoveFavorite(r.Context(), e)
			}
		},
	})
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	if !a.ToggleFavorite(a.IndexOf(eventID)) {
		h.WriteJSONError(w, http.StatusNotFound, h.ErrCodeNotFound, "event not found")
		return
	}
	if dispatchErr != nil {
		c.writeDispatchError(w, r, dispatchErr)
		return
	}
	h.WriteJSONSuccess(w, http.StatusAccepted, resp)
}

// ListFavorites godoc
// @Summary List favorites
// @Description Returns the caller's favorite events. Favorites are full copies taken when the event was favorited.
// @Tags favorites
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.EventListSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /favorites [get]
func (c *EventController) ListFavorites(w http.ResponseWriter, r *http.Request) {
	uid, ok := domain.UserIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	favorites, err := c.Repo.CurrentFavorites(r.Context())
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	a := eventlist.New(nil, uid, eventlist.Callbacks{})
	a.Submit(favorites)
	a.UpdateFavoriteIDs(eventlist.FavoriteIDs(favorites))
	h.WriteJSONSuccess(w, http.StatusOK, h.Page(a.Rows(), h.ParsePagination(r)))
}

// LatestError godoc
// @Summary Latest error
// @Description Returns the most recent failure reported by a background write, or an empty message.
// @Tags events
// @Produce json
// @Success 200 {object} helpers.APIResponse "data.message"
// @Router /errors/latest [get]
func (c *EventController) LatestError(w http.ResponseWriter, r *http.Request) {
	h.WriteJSONSuccess(w, http.StatusOK, ErrorMessageResponse{Message: c.Repo.Errors().Get()})
}

// SeedSampleEvents godoc
// @Summary Seed sample events
// @Description Inserts the ten Copenhagen sample events when there are no events at all.
// @Tags maintenance
// @Produce json
// @Security BearerAuth
// @Success 202 {object} helpers.APIResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /maintenance/seed [post]
func (c *EventController) SeedSampleEvents(w http.ResponseWriter, r *http.Request) {
	c.Repo.InitializeSampleEvents(r.Context())
	h.WriteJSONSuccess(w, http.StatusAccepted, nil)
}

// RemoveDuplicates godoc
// @Summary Remove duplicate events
// @Description Keeps the first event of each name in key order and deletes the rest.
// @Tags maintenance
// @Produce json
// @Security BearerAuth
// @Success 202 {object} helpers.APIResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /maintenance/dedupe [post]
func (c *EventController) RemoveDuplicates(w http.ResponseWriter, r *http.Request) {
	c.Repo.RemoveDuplicateEventsByName(r.Context())
	h.WriteJSONSuccess(w, http.StatusAccepted, nil)
}
