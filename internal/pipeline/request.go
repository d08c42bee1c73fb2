// Package pipeline implements the ingestion core: a bounded request queue
// drained by a single sequential worker, per-channel sample buffers sliced
// into fixed 10-second analysis windows, the simulation fallback, and
// provisional event association.
package pipeline

import "time"

// ProcessingRequest identifies one raw submission or decoded trace queued
// for processing. Immutable once constructed.
type ProcessingRequest struct {
	WaveformID int64
	StationID  int64
	FilePath   string
	ReceivedAt time.Time

	// Optional decoded trace payload. A request without samples (or with a
	// non-positive rate) takes the pickless simulation path.
	Samples      []float64
	SamplingRate float64
	Channel      string
	StartTime    time.Time
}

// HasSamples reports whether the request carries usable decoded data.
func (r ProcessingRequest) HasSamples() bool {
	return len(r.Samples) > 0 && r.SamplingRate > 0
}
