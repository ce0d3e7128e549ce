// Package sse streams bus events to clients that cannot hold a websocket
// (curl, EventSource in a plain browser tab, diagnostics tools).
//
//	GET /events/stream?events=updater://progress,app://ready
//
// Each bus event becomes one SSE message whose event field is the event
// name and whose data is the JSON payload.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/simplepos/shell/pkg/event"
	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/metrics"
)

// KeepAlive is how often an idle stream gets a comment line.
var KeepAlive = 15 * time.Second

const backlog = 64

// Stream represents an active SSE connection to one client.
type Stream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
	r  *http.Request
}

// New creates an SSE stream and sets the required headers. It fails when
// the ResponseWriter cannot flush.
func New(w http.ResponseWriter, r *http.Request) (*Stream, error) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}
	return &Stream{w: w, rc: rc, r: r}, nil
}

// Send writes a named event with a JSON-encoded data payload.
func (s *Stream) Send(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Comment writes an SSE comment line.
func (s *Stream) Comment(msg string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", msg); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Handler streams events from bus until the client goes away. The events
// query parameter restricts the stream to a comma-separated list of names.
func Handler(bus *event.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter map[string]bool
		if q := r.URL.Query().Get("events"); q != "" {
			filter = map[string]bool{}
			for _, name := range strings.Split(q, ",") {
				filter[strings.TrimSpace(name)] = true
			}
		}

		queue := make(chan event.Event, backlog)
		unlisten := bus.Listen(event.All, func(e event.Event) {
			if filter != nil && !filter[e.Name] {
				return
			}
			select {
			case queue <- e:
			default:
				logger.Target("bridge").Warn("sse: client too slow, event dropped", "event", e.Name)
			}
		})
		defer unlisten()

		stream, err := New(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		clients := metrics.EventClients.WithLabelValues("sse")
		clients.Inc()
		defer clients.Dec()

		ticker := time.NewTicker(KeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case e := <-queue:
				if err := stream.Send(e.Name, e.Payload); err != nil {
					return
				}
			case <-ticker.C:
				if err := stream.Comment("keepalive"); err != nil {
					return
				}
			}
		}
	}
}
