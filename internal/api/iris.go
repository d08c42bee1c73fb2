package api

import (
	"net/http"

	"github.com/cangyeone/seismox-system/internal/feed"
)

// listIrisStations proxies the FDSN station service without persisting
// anything, so the caller can preview what an import would register.
func (s *Server) listIrisStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	network := r.URL.Query().Get("network")
	limit := parseLimit(r, feed.DefaultStationLimit)

	stations, err := s.stations.Fetch(r.Context(), network, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	if stations == nil {
		stations = []feed.CatalogStation{}
	}
	if network == "" {
		network = feed.DefaultNetwork
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"network":  network,
		"stations": stations,
	})
}

func (s *Server) importIrisStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	network := r.URL.Query().Get("network")
	limit := parseLimit(r, feed.DefaultStationLimit)

	imported, total, err := s.stations.Import(r.Context(), s.catalog, network, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{
		"imported":        imported,
		"total_available": total,
	})
}
