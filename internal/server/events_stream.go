package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/treasury/internal/events"
)

// EventsStreamHandler streams treasury events to WebSocket clients.
type EventsStreamHandler struct {
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventManager *events.Manager, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventManager: eventManager,
		log:          log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests.
//
// The optional "types" query parameter is a comma-separated list of event
// types; when present only matching events are forwarded.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	var allowedTypes map[events.EventType]bool
	if typesFilter := r.URL.Query().Get("types"); typesFilter != "" {
		allowedTypes = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			allowedTypes[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	ch, cancel := h.eventManager.Subscribe()
	defer cancel()

	h.log.Info().Int("subscribers", h.eventManager.SubscriberCount()).Msg("Events stream client connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event stream shut down")
				return
			}
			if allowedTypes != nil && !allowedTypes[event.Type] {
				continue
			}

			writeCtx, cancelWrite := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancelWrite()
			if err != nil {
				closeStatus := websocket.CloseStatus(err)
				if closeStatus != websocket.StatusNormalClosure && closeStatus != websocket.StatusGoingAway {
					h.log.Debug().Err(err).Msg("Events stream write failed")
				}
				return
			}
		}
	}
}
