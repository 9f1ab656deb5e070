package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atinyakov/NikahPrep/internal/middleware"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"go.uber.org/zap"
)

// DefaultHeartbeat is how often an idle event stream sends a comment line.
const DefaultHeartbeat = 25 * time.Second

// Subscriber hands out per-user event subscriptions.
type Subscriber interface {
	Subscribe(userID string) *realtime.Subscription
}

// EventsHandler streams the caller's change events as Server-Sent Events.
// Each event is sent as "event: <op>" with the JSON event as data. Clients
// treat every event as a signal to re-fetch; a "resync" means events may
// have been lost and everything cached should be dropped.
type EventsHandler struct {
	Broker    Subscriber
	Heartbeat time.Duration
	Log       *zap.Logger
}

// Stream handles GET /api/events.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}
	userID := middleware.GetUserIDFromContext(r.Context())
	sub := h.Broker.Subscribe(userID)
	defer sub.Close()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				h.Log.Error("failed to encode event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Op, data)
			flusher.Flush()
		}
	}
}
