package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cangyeone/seismox-system/internal/db"
)

const (
	// DefaultStationServiceURL is the IRIS FDSN station service endpoint.
	DefaultStationServiceURL = "https://service.iris.edu/fdsnws/station/1/query"
	// DefaultNetwork is the network queried when the caller names none.
	DefaultNetwork = "IU"
	// DefaultStationLimit caps how many stations a single fetch returns.
	DefaultStationLimit = 12
)

// CatalogStation is one station entry from the FDSN station service.
type CatalogStation struct {
	Network    string  `json:"network"`
	Code       string  `json:"code"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ElevationM float64 `json:"elevation_m"`
	Name       string  `json:"name"`
}

// StationCatalog fetches station metadata from an FDSN station service and
// registers entries in the local catalog.
type StationCatalog struct {
	client *http.Client
	url    string
}

// StationCatalogConfig holds optional overrides; zero values take defaults.
type StationCatalogConfig struct {
	URL    string
	Client *http.Client
}

func NewStationCatalog(cfg StationCatalogConfig) *StationCatalog {
	if cfg.URL == "" {
		cfg.URL = DefaultStationServiceURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &StationCatalog{client: cfg.Client, url: cfg.URL}
}

// Fetch queries the station service at station level and returns up to limit
// unique stations for the network. Zero values take defaults.
func (c *StationCatalog) Fetch(ctx context.Context, network string, limit int) ([]CatalogStation, error) {
	if network == "" {
		network = DefaultNetwork
	}
	if limit <= 0 {
		limit = DefaultStationLimit
	}

	params := url.Values{}
	params.Set("network", network)
	params.Set("level", "station")
	params.Set("format", "text")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch station catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("station service returned %s", resp.Status)
	}

	// The text format is pipe separated, one station per line:
	// Network|Station|Latitude|Longitude|Elevation|SiteName|StartTime|EndTime
	// Header lines start with "#".
	var stations []CatalogStation
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 6 {
			continue
		}
		code := strings.TrimSpace(fields[1])
		if code == "" || seen[code] {
			continue
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
		elev, err3 := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		net := strings.TrimSpace(fields[0])
		seen[code] = true
		stations = append(stations, CatalogStation{
			Network:    net,
			Code:       code,
			Latitude:   lat,
			Longitude:  lon,
			ElevationM: elev,
			Name:       net + "-" + code,
		})
		if len(stations) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read station catalog: %w", err)
	}
	return stations, nil
}

// Import fetches the station catalog and registers each station not already
// present locally, matching on station code. Returns how many stations were
// created and how many the service offered.
func (c *StationCatalog) Import(ctx context.Context, catalog *db.DB, network string, limit int) (imported, total int, err error) {
	stations, err := c.Fetch(ctx, network, limit)
	if err != nil {
		return 0, 0, err
	}
	for _, st := range stations {
		if _, err := catalog.FindStationByCode(st.Code); err == nil {
			continue
		} else if !errors.Is(err, db.ErrNotFound) {
			return imported, len(stations), err
		}
		station := &db.Station{
			Code:       st.Code,
			Name:       st.Name,
			Latitude:   st.Latitude,
			Longitude:  st.Longitude,
			ElevationM: st.ElevationM,
			IsActive:   true,
			Status:     "healthy",
		}
		if err := catalog.CreateStation(station); err != nil {
			return imported, len(stations), err
		}
		imported++
	}
	return imported, len(stations), nil
}
