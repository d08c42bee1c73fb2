package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cangyeone/seismox-system/internal/feed"
	"github.com/cangyeone/seismox-system/internal/stream"
)

func (s *Server) startLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sel := stream.DefaultSelector
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid selector payload")
			return
		}
	}

	if err := s.bridge.Start(sel); err != nil {
		if errors.Is(err, stream.ErrAlreadyRunning) {
			s.writeJSONError(w, http.StatusConflict, "Stream already running")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to start stream: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.bridge.Status())
}

func (s *Server) stopLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.bridge.Stop(); err != nil {
		if errors.Is(err, stream.ErrNotRunning) {
			s.writeJSONError(w, http.StatusConflict, "Stream not running")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to stop stream: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.bridge.Status())
}

func (s *Server) showLiveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.bridge.Status())
}

func (s *Server) showLiveFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	frame := s.bridge.LatestFrame()
	if frame == nil {
		s.writeJSONError(w, http.StatusNotFound, "No frame available yet")
		return
	}
	s.writeJSON(w, http.StatusOK, frame)
}

// plotLatestFrame renders the most recent live frame as a PNG time series.
func (s *Server) plotLatestFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	frame := s.bridge.LatestFrame()
	if frame == nil || len(frame.Samples) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "No frame available yet")
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s.%s %s", frame.Network, frame.Station, frame.Channel)
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "counts"

	// Frames are stride-downsampled, so indexes no longer map cleanly to
	// seconds; plot against sample index instead.
	pts := make(plotter.XYs, len(frame.Samples))
	for i, v := range frame.Samples {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to build plot: %v", err))
		return
	}
	p.Add(line)

	writer, err := p.WriterTo(8*vg.Inch, 3*vg.Inch, "png")
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := writer.WriteTo(w); err != nil {
		// Too late for a JSON error; the PNG write already started.
		return
	}
}

func (s *Server) startFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.feed.Start(); err != nil {
		if errors.Is(err, feed.ErrAlreadyRunning) {
			s.writeJSONError(w, http.StatusConflict, "Feed poller already running")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to start feed poller: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.feed.Status())
}

func (s *Server) stopFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.feed.Stop(); err != nil {
		if errors.Is(err, feed.ErrNotRunning) {
			s.writeJSONError(w, http.StatusConflict, "Feed poller not running")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to stop feed poller: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.feed.Status())
}

func (s *Server) showFeedStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.feed.Status())
}
