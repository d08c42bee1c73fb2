// Command seismod runs the waveform processing daemon: HTTP ingestion and
// query API, the pipeline worker, the streaming bridge, and the catalog
// feed poller.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cangyeone/seismox-system/internal/api"
	"github.com/cangyeone/seismox-system/internal/config"
	"github.com/cangyeone/seismox-system/internal/db"
	"github.com/cangyeone/seismox-system/internal/feed"
	"github.com/cangyeone/seismox-system/internal/picker"
	"github.com/cangyeone/seismox-system/internal/pipeline"
	"github.com/cangyeone/seismox-system/internal/stream"
	"github.com/cangyeone/seismox-system/internal/wavestore"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "seismic_data.db", "Path to the sqlite database")
	dataDir    = flag.String("data", "data/waveforms", "Directory for raw waveform files")
	modelPath  = flag.String("model", "", "Path to the phase picking model bundle (empty: simulation fallback)")
	runnerCmd  = flag.String("runner", "", "Command that executes the picking model")
	configPath = flag.String("config", "", "Optional JSON tuning config")
	streamAddr = flag.String("stream-server", "", "SeedLink server address (overrides config)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	catalog, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer catalog.Close()

	store, err := wavestore.New(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open waveform store: %v", err)
	}

	var factory picker.RunnerFactory
	if *runnerCmd != "" {
		factory = picker.NewExecRunnerFactory(*runnerCmd)
	}
	adapter := picker.NewAdapter(*modelPath, factory)

	queue := pipeline.NewQueue(tuning.GetQueueCapacity())
	buffers := pipeline.NewBuffers(tuning.GetWindowSeconds())
	broadcaster := pipeline.NewPickBroadcaster()
	worker := pipeline.NewWorker(catalog, queue, buffers, adapter, broadcaster)

	server := tuning.GetStreamServer()
	if *streamAddr != "" {
		server = *streamAddr
	}
	bridge := stream.NewBridge(catalog, store, queue, func(sel stream.Selector) stream.Client {
		return stream.NewSeedLinkClient(server, sel)
	})
	bridge.HandoffCapacity = tuning.GetHandoffCapacity()
	bridge.StopGrace = tuning.GetStopGrace()
	bridge.MaxFramePoints = tuning.GetLiveFramePoints()

	poller := feed.NewPoller(catalog, feed.PollerConfig{
		URL:      tuning.GetFeedURL(),
		Interval: tuning.GetFeedInterval(),
	})
	stationCatalog := feed.NewStationCatalog(feed.StationCatalogConfig{
		URL: tuning.GetStationServiceURL(),
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the pipeline worker to drain the processing queue
	worker.Start(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-worker.Done()
		log.Print("pipeline worker terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only over Tailscale
		// or from localhost)
		catalog.AttachAdminRoutes(mux)

		apiServer := api.NewServer(catalog, store, queue, bridge, broadcaster, poller, stationCatalog)
		mux.Handle("/", api.LoggingMiddleware(apiServer.ServeMux()))

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	// stop background sessions on shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := bridge.Stop(); err != nil && err != stream.ErrNotRunning {
			log.Printf("failed to stop stream bridge: %v", err)
		}
		if err := poller.Stop(); err != nil && err != feed.ErrNotRunning {
			log.Printf("failed to stop feed poller: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
