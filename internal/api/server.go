// Package api is the HTTP surface: station registration, waveform push
// ingestion, event and pick queries, and control endpoints for the
// streaming bridge and the catalog feed poller.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cangyeone/seismox-system/internal/db"
	"github.com/cangyeone/seismox-system/internal/feed"
	"github.com/cangyeone/seismox-system/internal/pipeline"
	"github.com/cangyeone/seismox-system/internal/stream"
	"github.com/cangyeone/seismox-system/internal/wavestore"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	catalog     *db.DB
	store       *wavestore.Store
	queue       *pipeline.Queue
	bridge      *stream.Bridge
	broadcaster *pipeline.PickBroadcaster
	feed        *feed.Poller
	stations    *feed.StationCatalog
}

func NewServer(catalog *db.DB, store *wavestore.Store, queue *pipeline.Queue,
	bridge *stream.Bridge, broadcaster *pipeline.PickBroadcaster, poller *feed.Poller,
	stations *feed.StationCatalog) *Server {
	return &Server{
		catalog:     catalog,
		store:       store,
		queue:       queue,
		bridge:      bridge,
		broadcaster: broadcaster,
		feed:        poller,
		stations:    stations,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.showHealth)
	mux.HandleFunc("/stations", s.handleStations)
	mux.HandleFunc("/stations/", s.showStation)
	mux.HandleFunc("/stations/import/iris", s.importIrisStations)
	mux.HandleFunc("/iris/stations", s.listIrisStations)
	mux.HandleFunc("/waveforms/ingest", s.ingestWaveform)
	mux.HandleFunc("/waveforms/plot", s.plotLatestFrame)
	mux.HandleFunc("/events", s.listEvents)
	mux.HandleFunc("/events/", s.showEvent)
	mux.HandleFunc("/picks", s.listPicks)
	mux.HandleFunc("/picks/stream", s.streamPicks)
	mux.HandleFunc("/live/start", s.startLive)
	mux.HandleFunc("/live/stop", s.stopLive)
	mux.HandleFunc("/live/status", s.showLiveStatus)
	mux.HandleFunc("/live/frame", s.showLiveFrame)
	mux.HandleFunc("/feed/start", s.startFeed)
	mux.HandleFunc("/feed/stop", s.stopFeed)
	mux.HandleFunc("/feed/status", s.showFeedStatus)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"message":    "seismod is running",
		"queue_size": s.queue.Len(),
	})
}
