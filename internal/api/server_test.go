package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cangyeone/seismox-system/internal/db"
	"github.com/cangyeone/seismox-system/internal/feed"
	"github.com/cangyeone/seismox-system/internal/pipeline"
	"github.com/cangyeone/seismox-system/internal/stream"
	"github.com/cangyeone/seismox-system/internal/wavestore"
)

type fakeStreamClient struct {
	traces []stream.Trace

	once   sync.Once
	closed chan struct{}
}

func (c *fakeStreamClient) Run(ctx context.Context, onTrace stream.TraceHandler) error {
	for _, tr := range c.traces {
		onTrace(tr)
	}
	select {
	case <-ctx.Done():
	case <-c.closed:
	}
	return nil
}

func (c *fakeStreamClient) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type testEnv struct {
	server  *Server
	catalog *db.DB
	queue   *pipeline.Queue
	bridge  *stream.Bridge
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	catalog, err := db.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	store, err := wavestore.New(t.TempDir())
	require.NoError(t, err)

	queue := pipeline.NewQueue(4)
	bridge := stream.NewBridge(catalog, store, queue, func(stream.Selector) stream.Client {
		return &fakeStreamClient{closed: make(chan struct{})}
	})
	broadcaster := pipeline.NewPickBroadcaster()

	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}))
	t.Cleanup(feedServer.Close)
	poller := feed.NewPoller(catalog, feed.PollerConfig{URL: feedServer.URL, Interval: time.Hour})

	stationServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#Network|Station|Latitude|Longitude|Elevation|SiteName|StartTime|EndTime\n" +
			"IU|ANMO|34.946|-106.457|1820.0|Albuquerque, New Mexico, USA|1989-08-29T00:00:00|\n" +
			"IU|COLA|64.874|-147.862|200.0|College Outpost, Alaska, USA|1996-08-29T00:00:00|\n"))
	}))
	t.Cleanup(stationServer.Close)
	stations := feed.NewStationCatalog(feed.StationCatalogConfig{URL: stationServer.URL})

	return &testEnv{
		server:  NewServer(catalog, store, queue, bridge, broadcaster, poller, stations),
		catalog: catalog,
		queue:   queue,
		bridge:  bridge,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.ServeMux().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["queue_size"])
}

func TestStationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/stations", db.Station{
		Code: "ANMO", Name: "Albuquerque", Latitude: 34.95, Longitude: -106.46, IsActive: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[db.Station](t, rec)
	assert.NotZero(t, created.ID)

	rec = env.do(t, http.MethodPost, "/stations", db.Station{Code: "ANMO"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/stations", db.Station{Name: "no code"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/stations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stations := decodeBody[[]db.Station](t, rec)
	require.Len(t, stations, 1)
	assert.Equal(t, "ANMO", stations[0].Code)

	rec = env.do(t, http.MethodGet, "/stations/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/stations/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/stations/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestWaveform(t *testing.T) {
	env := newTestEnv(t)
	station := &db.Station{Code: "XAN"}
	require.NoError(t, env.catalog.CreateStation(station))

	payload := map[string]any{
		"station_code": "XAN",
		"data":         base64.StdEncoding.EncodeToString([]byte("raw waveform bytes")),
	}
	rec := env.do(t, http.MethodPost, "/waveforms/ingest", payload)
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["waveform_id"])
	assert.Equal(t, 1, env.queue.Len())

	path, ok := body["file_path"].(string)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "raw waveform bytes", string(data))

	req := <-env.queue.Requests()
	assert.Equal(t, station.ID, req.StationID)
	assert.Empty(t, req.Samples)
}

func TestIngestWaveformUnknownStation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/waveforms/ingest", map[string]any{
		"station_code": "NOPE",
		"data":         base64.StdEncoding.EncodeToString([]byte("x")),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestWaveformBadBase64(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.catalog.CreateStation(&db.Station{Code: "XAN"}))

	rec := env.do(t, http.MethodPost, "/waveforms/ingest", map[string]any{
		"station_code": "XAN",
		"data":         "not-base64!!!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestWaveformQueueFull(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.catalog.CreateStation(&db.Station{Code: "XAN"}))

	payload := map[string]any{
		"station_code": "XAN",
		"data":         base64.StdEncoding.EncodeToString([]byte("x")),
	}
	for i := 0; i < 4; i++ {
		rec := env.do(t, http.MethodPost, "/waveforms/ingest", payload)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/waveforms/ingest", payload)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventAndPickQueries(t *testing.T) {
	env := newTestEnv(t)
	station := &db.Station{Code: "XAN"}
	require.NoError(t, env.catalog.CreateStation(station))

	event := &db.Event{OriginTime: time.Now().UTC(), Magnitude: 3.2}
	require.NoError(t, env.catalog.CreateEvent(event))

	pick := &db.PhasePick{StationID: station.ID, EventID: &event.ID,
		PhaseType: "Pg", PickTime: time.Now().UTC(), Quality: 0.9}
	require.NoError(t, env.catalog.CreatePick(pick))

	rec := env.do(t, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody[[]db.Event](t, rec)
	require.Len(t, events, 1)

	rec = env.do(t, http.MethodGet, "/events/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[struct {
		Event db.Event       `json:"event"`
		Picks []db.PhasePick `json:"picks"`
	}](t, rec)
	assert.Equal(t, 3.2, detail.Event.Magnitude)
	require.Len(t, detail.Picks, 1)
	assert.Equal(t, "Pg", detail.Picks[0].PhaseType)

	rec = env.do(t, http.MethodGet, "/events/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/picks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	picks := decodeBody[[]db.PhasePick](t, rec)
	assert.Len(t, picks, 1)
}

func TestEmptyListsAreArrays(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/stations", "/events", "/picks"} {
		rec := env.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()), path)
	}
}

func TestLiveLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/live/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[stream.Status](t, rec)
	assert.False(t, status.Running)

	rec = env.do(t, http.MethodGet, "/live/frame", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/live/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status = decodeBody[stream.Status](t, rec)
	assert.True(t, status.Running)
	assert.Equal(t, "ANMO", status.Station)

	rec = env.do(t, http.MethodPost, "/live/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/live/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/live/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFeedLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/feed/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[feed.Status](t, rec)
	assert.False(t, status.Running)

	rec = env.do(t, http.MethodPost, "/feed/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/feed/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/feed/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPlotWithoutFrame(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/waveforms/plot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamPicksSSE(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(LoggingMiddleware(env.server.ServeMux()))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/picks/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Publish until the subscriber has read a batch; the first few publishes
	// may race the subscription registration.
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				env.server.broadcaster.Publish([]db.PhasePick{{StationID: 1, PhaseType: "Pg", Quality: 0.9}})
			}
		}
	}()

	reader := bufio.NewReader(resp.Body)
	var dataLine string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
			break
		}
	}

	var picks []db.PhasePick
	require.NoError(t, json.Unmarshal([]byte(dataLine), &picks))
	require.Len(t, picks, 1)
	assert.Equal(t, "Pg", picks[0].PhaseType)
}

func TestListIrisStations(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/iris/stations?network=IU&limit=12", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Network  string                `json:"network"`
		Stations []feed.CatalogStation `json:"stations"`
	}](t, rec)
	assert.Equal(t, "IU", body.Network)
	require.Len(t, body.Stations, 2)
	assert.Equal(t, "ANMO", body.Stations[0].Code)
	assert.Equal(t, "IU-ANMO", body.Stations[0].Name)

	// Listing alone persists nothing.
	local, err := env.catalog.ListStations()
	require.NoError(t, err)
	assert.Empty(t, local)

	rec = env.do(t, http.MethodPost, "/iris/stations", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestImportIrisStations(t *testing.T) {
	env := newTestEnv(t)

	// ANMO is already registered locally, so only COLA gets created.
	require.NoError(t, env.catalog.CreateStation(&db.Station{
		Code: "ANMO", Name: "local ANMO", Status: "streaming",
	}))

	rec := env.do(t, http.MethodPost, "/stations/import/iris?network=IU", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]int](t, rec)
	assert.Equal(t, 1, body["imported"])
	assert.Equal(t, 2, body["total_available"])

	st, err := env.catalog.FindStationByCode("COLA")
	require.NoError(t, err)
	assert.Equal(t, "IU-COLA", st.Name)
	assert.Equal(t, "healthy", st.Status)

	rec = env.do(t, http.MethodGet, "/stations/import/iris", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
