package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cangyeone/seismox-system/internal/db"
	"github.com/cangyeone/seismox-system/internal/picker"
)

// Worker is the single sequential consumer of the processing queue. One
// request at a time, in arrival order: buffer, detect (or simulate),
// associate, persist. Being the only caller of Buffers and the Adapter is
// what keeps both free of locks.
type Worker struct {
	Catalog     *db.DB
	Queue       *Queue
	Buffers     *Buffers
	Adapter     *picker.Adapter
	Broadcaster *PickBroadcaster

	done chan struct{}
}

func NewWorker(catalog *db.DB, queue *Queue, buffers *Buffers, adapter *picker.Adapter, broadcaster *PickBroadcaster) *Worker {
	return &Worker{
		Catalog:     catalog,
		Queue:       queue,
		Buffers:     buffers,
		Adapter:     adapter,
		Broadcaster: broadcaster,
		done:        make(chan struct{}),
	}
}

// Start launches the worker loop. It drains the queue until ctx is
// cancelled; a failure handling one request is logged and never terminates
// the loop.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-w.Queue.Requests():
				if err := w.Handle(req); err != nil {
					log.Printf("failed to process waveform %d: %v", req.WaveformID, err)
				}
			}
		}
	}()
}

// Done is closed when the worker loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Handle processes one request end to end. The originating waveform is
// marked processed unconditionally, even when handling failed or produced
// zero picks.
func (w *Worker) Handle(req ProcessingRequest) error {
	err := w.process(req)
	if markErr := w.Catalog.MarkWaveformProcessed(req.WaveformID); markErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to mark waveform processed: %w", markErr))
	}
	return err
}

func (w *Worker) process(req ProcessingRequest) error {
	var batch []db.PhasePick

	if !req.HasSamples() {
		// No decoded data at all: pickless path, simulated from receipt time.
		batch = SimulatePicks(req.StationID, req.ReceivedAt)
	} else {
		windows := w.Buffers.Accumulate(req.StationID, req.Channel, req.Samples,
			req.SamplingRate, req.StartTime, req.ReceivedAt)
		for _, window := range windows {
			matrix := w.Buffers.ThreeComponent(req.StationID, window)
			detections := w.Adapter.Detect(matrix, window.SamplingRate)
			if len(detections) == 0 {
				batch = append(batch, SimulatePicks(req.StationID, window.Start)...)
				continue
			}
			batch = append(batch, picker.ToPicks(detections, req.StationID, window.Start, window.SamplingRate)...)
		}
	}

	if len(batch) == 0 {
		return nil
	}

	for i := range batch {
		if err := w.Catalog.CreatePick(&batch[i]); err != nil {
			return fmt.Errorf("failed to persist pick: %w", err)
		}
	}

	event, err := Associate(w.Catalog, req.StationID, batch)
	if err != nil {
		return fmt.Errorf("failed to associate event: %w", err)
	}
	log.Printf("associated event %d from %d picks at station %d", event.ID, len(batch), req.StationID)

	if w.Broadcaster != nil {
		w.Broadcaster.Publish(batch)
	}
	return nil
}
