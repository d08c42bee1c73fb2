package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cangyeone/seismox-system/internal/db"
	"github.com/cangyeone/seismox-system/internal/pipeline"
)

// submitTimeout bounds how long an ingest request waits on a full queue.
const submitTimeout = 2 * time.Second

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		stations, err := s.catalog.ListStations()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to list stations: %v", err))
			return
		}
		if stations == nil {
			stations = []db.Station{}
		}
		s.writeJSON(w, http.StatusOK, stations)
	case http.MethodPost:
		var station db.Station
		if err := json.NewDecoder(r.Body).Decode(&station); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid station payload")
			return
		}
		if station.Code == "" {
			s.writeJSONError(w, http.StatusBadRequest, "Station code is required")
			return
		}
		if _, err := s.catalog.FindStationByCode(station.Code); err == nil {
			s.writeJSONError(w, http.StatusConflict,
				fmt.Sprintf("Station %q already exists", station.Code))
			return
		}
		if err := s.catalog.CreateStation(&station); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to create station: %v", err))
			return
		}
		s.writeJSON(w, http.StatusCreated, station)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// pathID parses the trailing numeric segment of paths like /stations/42.
func pathID(path, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(path, prefix), 10, 64)
}

func (s *Server) showStation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, err := pathID(r.URL.Path, "/stations/")
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid station ID")
		return
	}
	station, err := s.catalog.GetStation(id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "Station not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to load station: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, station)
}

// ingestRequest is a pushed waveform submission. Data carries the raw bytes
// base64-encoded; Samples optionally carries decoded values so the window
// buffering path runs instead of the simulation fallback.
type ingestRequest struct {
	StationCode  string    `json:"station_code"`
	Data         string    `json:"data"`
	Samples      []float64 `json:"samples,omitempty"`
	SamplingRate float64   `json:"sampling_rate,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	StartTime    time.Time `json:"start_time,omitempty"`
}

func (s *Server) ingestWaveform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid ingest payload")
		return
	}
	if req.StationCode == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Station code is required")
		return
	}

	station, err := s.catalog.FindStationByCode(req.StationCode)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound,
			fmt.Sprintf("Station %q not found", req.StationCode))
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to look up station: %v", err))
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Waveform data is not valid base64")
		return
	}

	path, receivedAt, err := s.store.Persist(station.Code, data)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to persist waveform: %v", err))
		return
	}

	waveform := &db.Waveform{StationID: station.ID, FilePath: path, ReceivedAt: receivedAt}
	if err := s.catalog.CreateWaveform(waveform); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to record waveform: %v", err))
		return
	}

	// Bounded wait: a full queue turns into a 503 instead of holding the
	// connection open indefinitely.
	submitCtx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	err = s.queue.Submit(submitCtx, pipeline.ProcessingRequest{
		WaveformID:   waveform.ID,
		StationID:    station.ID,
		FilePath:     path,
		ReceivedAt:   receivedAt,
		Samples:      req.Samples,
		SamplingRate: req.SamplingRate,
		Channel:      req.Channel,
		StartTime:    req.StartTime,
	})
	if errors.Is(err, pipeline.ErrQueueFull) {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Processing queue is full")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to enqueue waveform: %v", err))
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"waveform_id": waveform.ID,
		"station_id":  station.ID,
		"file_path":   path,
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := parseLimit(r, 200)
	events, err := s.catalog.ListEvents(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list events: %v", err))
		return
	}
	if events == nil {
		events = []db.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) showEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, err := pathID(r.URL.Path, "/events/")
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid event ID")
		return
	}
	event, err := s.catalog.GetEvent(id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to load event: %v", err))
		return
	}
	picks, err := s.catalog.ListPicksForEvent(id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to load picks: %v", err))
		return
	}
	if picks == nil {
		picks = []db.PhasePick{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"event": event,
		"picks": picks,
	})
}

func (s *Server) listPicks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := parseLimit(r, 200)
	picks, err := s.catalog.ListPicks(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list picks: %v", err))
		return
	}
	if picks == nil {
		picks = []db.PhasePick{}
	}
	s.writeJSON(w, http.StatusOK, picks)
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
