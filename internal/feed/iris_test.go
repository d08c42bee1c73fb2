package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cangyeone/seismox-system/internal/db"
)

const sampleStationText = `#Network|Station|Latitude|Longitude|Elevation|SiteName|StartTime|EndTime
IU|ANMO|34.946|-106.457|1820.0|Albuquerque, New Mexico, USA|1989-08-29T00:00:00|
IU|COLA|64.874|-147.862|200.0|College Outpost, Alaska, USA|1996-08-29T00:00:00|
IU|ANMO|34.946|-106.457|1820.0|Albuquerque duplicate epoch|2002-11-19T00:00:00|
IU|KONO|59.649|9.598|216.0|Kongsberg, Norway|1987-09-01T00:00:00|
`

func newTestStationCatalog(t *testing.T, handler http.HandlerFunc) (*StationCatalog, *db.DB) {
	t.Helper()
	catalog, err := db.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewStationCatalog(StationCatalogConfig{URL: server.URL}), catalog
}

func serveStationText(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(sampleStationText))
}

func TestFetchStationCatalog(t *testing.T) {
	var gotQuery string
	sc, _ := newTestStationCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		serveStationText(w, r)
	})

	stations, err := sc.Fetch(context.Background(), "IU", 12)
	require.NoError(t, err)
	require.Len(t, stations, 3)

	assert.Contains(t, gotQuery, "network=IU")
	assert.Contains(t, gotQuery, "level=station")
	assert.Contains(t, gotQuery, "format=text")

	assert.Equal(t, "ANMO", stations[0].Code)
	assert.Equal(t, "IU-ANMO", stations[0].Name)
	assert.Equal(t, 34.946, stations[0].Latitude)
	assert.Equal(t, -106.457, stations[0].Longitude)
	assert.Equal(t, 1820.0, stations[0].ElevationM)
	assert.Equal(t, "COLA", stations[1].Code)
	assert.Equal(t, "KONO", stations[2].Code)
}

func TestFetchStationCatalogHonorsLimit(t *testing.T) {
	sc, _ := newTestStationCatalog(t, serveStationText)

	stations, err := sc.Fetch(context.Background(), "IU", 2)
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "ANMO", stations[0].Code)
	assert.Equal(t, "COLA", stations[1].Code)
}

func TestFetchStationCatalogDefaults(t *testing.T) {
	var gotQuery string
	sc, _ := newTestStationCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		serveStationText(w, r)
	})

	_, err := sc.Fetch(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "network="+DefaultNetwork)
}

func TestFetchStationCatalogServerError(t *testing.T) {
	sc, _ := newTestStationCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})

	_, err := sc.Fetch(context.Background(), "IU", 12)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestImportRegistersStations(t *testing.T) {
	sc, catalog := newTestStationCatalog(t, serveStationText)

	imported, total, err := sc.Import(context.Background(), catalog, "IU", 12)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)
	assert.Equal(t, 3, total)

	st, err := catalog.FindStationByCode("ANMO")
	require.NoError(t, err)
	assert.Equal(t, "IU-ANMO", st.Name)
	assert.Equal(t, "healthy", st.Status)
	assert.True(t, st.IsActive)
	assert.Equal(t, 1820.0, st.ElevationM)
}

func TestImportSkipsExistingStations(t *testing.T) {
	sc, catalog := newTestStationCatalog(t, serveStationText)

	require.NoError(t, catalog.CreateStation(&db.Station{
		Code: "ANMO", Name: "local ANMO", Status: "streaming",
	}))

	imported, total, err := sc.Import(context.Background(), catalog, "IU", 12)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 3, total)

	// The pre-existing registration is left alone.
	st, err := catalog.FindStationByCode("ANMO")
	require.NoError(t, err)
	assert.Equal(t, "local ANMO", st.Name)

	// A second import creates nothing new.
	imported, _, err = sc.Import(context.Background(), catalog, "IU", 12)
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
}
