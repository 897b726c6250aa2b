package http

import (
	"net/http"
	"strconv"

	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/service"
)

const maxEventPage = 500

// EventsHandler serves the committed event feed.
type EventsHandler struct {
	Events service.EventSource
}

// List returns events after ?after= (a commit sequence), optionally limited
// to ?principal=, at most ?limit= of them.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		after uint64
		limit = 100
		err   error
	)
	if s := q.Get("after"); s != "" {
		if after, err = strconv.ParseUint(s, 10, 64); err != nil {
			writeError(w, errInvalidRequest)
			return
		}
	}
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit <= 0 {
			writeError(w, errInvalidRequest)
			return
		}
	}
	limit = min(limit, maxEventPage)

	events, err := h.Events.ListEvents(r.Context(), models.Principal(q.Get("principal")), after, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
