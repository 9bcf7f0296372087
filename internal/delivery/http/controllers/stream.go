package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"

	"copenhagenbuzz/internal/domain"
	"copenhagenbuzz/internal/presentation/eventlist"
)

// StreamKeepAlive is the interval between comment frames on an idle stream.
var StreamKeepAlive = 25 * time.Second

// StreamEvents godoc
// @Summary Live event rows
// @Description Server-sent events. A "rows" frame carries the full row set every time the events or the caller's favorites change. An "error" frame carries each new repository error message.
// @Tags events
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {string} string "event stream"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized (rejected token)"
// @Router /events/stream [get]
func (c *EventController) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	uid, _ := domain.UserIDFromContext(ctx)
	changed := make(chan struct{}, 1)
	errMsgs := make(chan string, 8)

	a := eventlist.New(c.Repo.Events(), uid, eventlist.Callbacks{})
	a.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	if uid != "" {
		release := c.Repo.LoadFavorites(ctx)
		defer release()
		cancelFavorites := c.Repo.Favorites(ctx).Observe(func(favorites []domain.Event) {
			a.UpdateFavoriteIDs(eventlist.FavoriteIDs(favorites))
		})
		defer cancelFavorites()
	}

	cancelErrors := c.Repo.Errors().ObserveChanges(func(msg string) {
		select {
		case errMsgs <- msg:
		default:
			c.Logger.WarnContext(ctx, "stream error frame dropped", "message", msg)
		}
	})
	defer cancelErrors()

	a.StartListening()
	defer a.StopListening()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		c.Logger.ErrorContext(ctx, "stream flush unsupported", "err", err)
		return
	}

	ticker := time.NewTicker(StreamKeepAlive)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-changed:
			err = sse.Encode(w, sse.Event{Event: "rows", Data: a.Rows()})
		case msg := <-errMsgs:
			err = sse.Encode(w, sse.Event{Event: "error", Data: ErrorMessageResponse{Message: msg}})
		case <-ticker.C:
			_, err = fmt.Fprint(w, ": ping\n\n")
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			c.Logger.DebugContext(ctx, "stream closed", "err", err)
			return
		}
	}
}
