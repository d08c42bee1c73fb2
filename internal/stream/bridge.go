package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cangyeone/seismox-system/internal/db"
	"github.com/cangyeone/seismox-system/internal/pipeline"
	"github.com/cangyeone/seismox-system/internal/wavestore"
)

var (
	// ErrAlreadyRunning is returned by Start when a stream session is
	// active; the existing session's status is left untouched.
	ErrAlreadyRunning = errors.New("stream already running")
	// ErrNotRunning is returned by Stop without an active session.
	ErrNotRunning = errors.New("stream not running")
)

const (
	// DefaultHandoffCapacity bounds the trace handoff queue between the
	// blocking client goroutine and the relay.
	DefaultHandoffCapacity = 64
	// DefaultStopGrace is how long Stop waits for the relay to drain
	// before abandoning it to context cancellation.
	DefaultStopGrace = 3 * time.Second
	// DefaultMaxFramePoints caps the downsampled live frame size.
	DefaultMaxFramePoints = 800
	// handoffTimeout bounds the producer-side wait when the relay falls
	// behind; the trace is dropped (visibly) rather than queued forever.
	handoffTimeout = 5 * time.Second
)

// Status is a snapshot of the current streaming session.
type Status struct {
	Running   bool   `json:"running"`
	Network   string `json:"network"`
	Station   string `json:"station"`
	Location  string `json:"location"`
	Channel   string `json:"channel"`
	Frames    int    `json:"frames"`
	LastFrame string `json:"last_frame,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LiveFrame is the most-recent-only downsampled trace snapshot kept for
// visualization polling. Never persisted; overwritten on each new trace.
type LiveFrame struct {
	Network      string    `json:"network"`
	Station      string    `json:"station"`
	Channel      string    `json:"channel"`
	StartTime    time.Time `json:"start_time"`
	SamplingRate float64   `json:"sampling_rate"`
	Samples      []float64 `json:"samples"`
}

// session holds the lifecycle handles of one streaming run. It is torn
// down exactly once, either by Stop or by the client goroutine when the
// client terminates on its own.
type session struct {
	cancel    context.CancelFunc
	client    Client
	relayDone chan struct{}
}

// Bridge owns the streaming client's lifecycle and relays decoded traces
// into the pipeline queue: persist raw bytes, ensure the station exists,
// create the waveform record, submit the processing request, refresh the
// live frame.
type Bridge struct {
	catalog   *db.DB
	store     *wavestore.Store
	queue     *pipeline.Queue
	newClient ClientFactory

	// Tuning knobs, set before the first Start.
	HandoffCapacity int
	StopGrace       time.Duration
	MaxFramePoints  int

	mu   sync.Mutex
	sess *session

	stateMu sync.Mutex
	status  Status
	frame   *LiveFrame
}

func NewBridge(catalog *db.DB, store *wavestore.Store, queue *pipeline.Queue, factory ClientFactory) *Bridge {
	return &Bridge{
		catalog:         catalog,
		store:           store,
		queue:           queue,
		newClient:       factory,
		HandoffCapacity: DefaultHandoffCapacity,
		StopGrace:       DefaultStopGrace,
		MaxFramePoints:  DefaultMaxFramePoints,
	}
}

// Start launches a streaming session for the selector. Fails with
// ErrAlreadyRunning when a session is active.
func (b *Bridge) Start(sel Selector) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sess != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := b.newClient(sel)
	handoff := make(chan Trace, b.HandoffCapacity)
	sess := &session{
		cancel:    cancel,
		client:    client,
		relayDone: make(chan struct{}),
	}
	b.sess = sess

	b.stateMu.Lock()
	b.status = Status{
		Running:  true,
		Network:  sel.Network,
		Station:  sel.Station,
		Location: sel.Location,
		Channel:  sel.Channel,
	}
	b.frame = nil
	b.stateMu.Unlock()

	// The client runs on its own goroutine; third-party blocking calls
	// stay isolated there. Handoff is a bounded blocking send so
	// backpressure from the relay is visible as dropped-trace logs, not
	// unbounded growth. When the client terminates on its own (stream
	// error, remote hangup) the goroutine tears the session down so the
	// context and its watchers never outlive it.
	go func() {
		defer close(handoff)
		err := client.Run(ctx, func(tr Trace) {
			select {
			case handoff <- tr:
			case <-ctx.Done():
			case <-time.After(handoffTimeout):
				log.Printf("relay backlogged; dropping trace %s.%s", tr.Network, tr.Station)
			}
		})
		if err != nil {
			log.Printf("streaming client failed: %v", err)
			b.setError(err)
		}
		b.endSession(sess)
	}()

	go b.relay(ctx, handoff, sess.relayDone)
	return nil
}

// endSession cancels the session context and releases the session handles.
// If Stop (or a newer Start after Stop) already took ownership, only the
// idempotent cancel runs; the status of a successor session is untouched.
func (b *Bridge) endSession(sess *session) {
	b.mu.Lock()
	owned := b.sess == sess
	if owned {
		b.sess = nil
	}
	b.mu.Unlock()

	sess.cancel()
	if !owned {
		return
	}
	if err := sess.client.Close(); err != nil {
		log.Printf("failed to close streaming client: %v", err)
	}
	b.markStopped()
}

// Stop ends the session: cancels the client, waits out a grace period for
// the relay to drain, and marks the status not-running. In-flight trace
// persistence that has begun is allowed to complete.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	sess := b.sess
	b.sess = nil
	b.mu.Unlock()
	if sess == nil {
		return ErrNotRunning
	}

	sess.cancel()
	if err := sess.client.Close(); err != nil {
		// best effort; the client may have failed and closed itself
		log.Printf("failed to close streaming client: %v", err)
	}

	select {
	case <-sess.relayDone:
	case <-time.After(b.StopGrace):
		log.Printf("relay did not drain within %v; abandoning", b.StopGrace)
	}

	b.markStopped()
	return nil
}

// Running reports whether a session is active.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess != nil
}

// Status returns a snapshot of the session state. Never blocks on the
// stream itself.
func (b *Bridge) Status() Status {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.status
}

// LatestFrame returns the most recent live frame, or nil before the first
// trace arrives.
func (b *Bridge) LatestFrame() *LiveFrame {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.frame
}

func (b *Bridge) setError(err error) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.status.Error = err.Error()
}

func (b *Bridge) markStopped() {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.status.Running = false
}

func (b *Bridge) relay(ctx context.Context, handoff <-chan Trace, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-handoff:
			if !ok {
				return
			}
			if err := b.handleTrace(ctx, tr); err != nil {
				log.Printf("failed to relay trace %s.%s.%s: %v", tr.Network, tr.Station, tr.Channel, err)
				continue
			}
			b.recordFrame(tr)
		}
	}
}

func (b *Bridge) handleTrace(ctx context.Context, tr Trace) error {
	path, receivedAt, err := b.store.Persist(tr.Station, tr.Raw)
	if err != nil {
		return err
	}

	station, err := b.catalog.EnsureStation(tr.Station, db.Station{
		Name:     fmt.Sprintf("%s-%s", tr.Network, tr.Station),
		IsActive: true,
		Status:   "streaming",
	})
	if err != nil {
		return err
	}

	waveform := &db.Waveform{StationID: station.ID, FilePath: path, ReceivedAt: receivedAt}
	if err := b.catalog.CreateWaveform(waveform); err != nil {
		return err
	}

	submitCtx, cancel := context.WithTimeout(ctx, handoffTimeout)
	defer cancel()
	return b.queue.Submit(submitCtx, pipeline.ProcessingRequest{
		WaveformID:   waveform.ID,
		StationID:    station.ID,
		FilePath:     path,
		ReceivedAt:   receivedAt,
		Samples:      tr.Samples,
		SamplingRate: tr.SamplingRate,
		Channel:      tr.Channel,
		StartTime:    tr.StartTime,
	})
}

func (b *Bridge) recordFrame(tr Trace) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.status.Frames++
	b.status.LastFrame = time.Now().UTC().Format(time.RFC3339)
	b.frame = &LiveFrame{
		Network:      tr.Network,
		Station:      tr.Station,
		Channel:      tr.Channel,
		StartTime:    tr.StartTime,
		SamplingRate: tr.SamplingRate,
		Samples:      downsample(tr.Samples, b.MaxFramePoints),
	}
}

// downsample reduces samples to at most maxPoints by uniform stride
// subsampling, preserving time order.
func downsample(samples []float64, maxPoints int) []float64 {
	if maxPoints <= 0 || len(samples) <= maxPoints {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	stride := (len(samples) + maxPoints - 1) / maxPoints
	out := make([]float64, 0, maxPoints)
	for i := 0; i < len(samples); i += stride {
		out = append(out, samples[i])
	}
	return out
}
