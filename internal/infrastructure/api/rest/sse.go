package rest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/nbflow/internal/domain"
)

// HandleEvents handles GET /notebook/events: a server-sent event stream of
// notebook events. The event name field is the event type, the data field
// is the JSON payload, and the id field carries the run id for events
// emitted during a run.
func (s *Server) HandleEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.bus.Subscribe()
	defer sub.Close()

	if s.metrics != nil {
		s.metrics.SubscriberConnected()
		defer s.metrics.SubscriberDisconnected()
	}
	s.logger.Info("sse subscriber connected", "subscriber_id", sub.ID())

	for {
		select {
		case <-c.Request.Context().Done():
			s.logger.Info("sse subscriber disconnected", "subscriber_id", sub.ID())
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(c.Writer, ev); err != nil {
				s.logger.Warn("sse write failed", "subscriber_id", sub.ID(), "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE frames one event in text/event-stream format.
func writeSSE(w http.ResponseWriter, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if ev.RunID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", ev.RunID); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}
