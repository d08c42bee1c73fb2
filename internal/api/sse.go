package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// streamPicks pushes pick batches to the client as server-sent events.
// Delivery is at-most-once; a client that falls behind misses batches
// rather than stalling the pipeline worker.
func (s *Server) streamPicks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSONError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	id, picks := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case batch, open := <-picks:
			if !open {
				return
			}
			payload, err := json.Marshal(batch)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: picks\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
