// Package httpapi exposes the orchestrator, session store, sandbox
// controller, and connector registry over chi-routed HTTP, per
// spec.md §6's endpoint table. SSE framing is grounded on
// _examples/telnet2-opencode/go-opencode/internal/server/sse.go; route
// grouping is grounded on that repo's routes.go, since the teacher
// itself routes with a bare http.ServeMux.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haasonsaas/companion/pkg/models"
)

const sseHeartbeatInterval = 30 * time.Second

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	sw := &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}
	sw.flusher.Flush()
	return sw, nil
}

func (s *sseWriter) writeEvent(ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// streamEvents drains events onto the SSE connection until the channel
// closes or the client disconnects, interleaving heartbeats so
// reverse proxies don't time out an idle turn.
func streamEvents(w http.ResponseWriter, r *http.Request, events <-chan models.Event) {
	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.writeEvent(ev); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
