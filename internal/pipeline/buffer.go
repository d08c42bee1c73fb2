package pipeline

import (
	"sort"
	"time"
)

// WindowSeconds is the fixed analysis window length in seconds of signal.
const WindowSeconds = 10

// Window is one sliced, non-overlapping block of samples from a single
// channel, the unit of detection inference.
type Window struct {
	StationID    int64
	Channel      string
	SamplingRate float64
	Start        time.Time
	Samples      []float64
}

type channelKey struct {
	stationID int64
	channel   string
}

// channelBuffer holds pending samples for one (station, channel). Samples
// are appended at the back and dropped from the front only, in
// window-length chunks; the window start time advances by exactly the
// window duration per slice.
type channelBuffer struct {
	samples     []float64
	rate        float64
	windowStart time.Time
	started     bool
}

// Buffers accumulates samples per (station, channel) and slices complete
// windows. Not safe for concurrent use: the pipeline worker is the sole
// mutator, which is what keeps this lock-free.
type Buffers struct {
	windowSeconds float64
	buffers       map[channelKey]*channelBuffer
}

func NewBuffers(windowSeconds float64) *Buffers {
	if windowSeconds <= 0 {
		windowSeconds = WindowSeconds
	}
	return &Buffers{
		windowSeconds: windowSeconds,
		buffers:       map[channelKey]*channelBuffer{},
	}
}

// Accumulate appends samples to the channel's buffer and slices every
// complete window currently available. Requests without usable sample or
// rate data yield no window; the caller falls back to the simulated path.
func (b *Buffers) Accumulate(stationID int64, channel string, samples []float64, rate float64, startHint, receivedAt time.Time) []Window {
	if len(samples) == 0 || rate <= 0 {
		return nil
	}

	key := channelKey{stationID: stationID, channel: channel}
	buf := b.buffers[key]
	if buf == nil {
		buf = &channelBuffer{}
		b.buffers[key] = buf
	}
	if !buf.started {
		buf.windowStart = startHint
		if buf.windowStart.IsZero() {
			buf.windowStart = receivedAt
		}
		buf.started = true
	}
	buf.rate = rate
	buf.samples = append(buf.samples, samples...)

	windowLen := int(rate * b.windowSeconds)
	if windowLen <= 0 {
		return nil
	}

	var windows []Window
	for len(buf.samples) >= windowLen {
		slice := make([]float64, windowLen)
		copy(slice, buf.samples[:windowLen])
		windows = append(windows, Window{
			StationID:    stationID,
			Channel:      channel,
			SamplingRate: rate,
			Start:        buf.windowStart,
			Samples:      slice,
		})
		buf.windowStart = buf.windowStart.Add(time.Duration(b.windowSeconds * float64(time.Second)))
		buf.samples = buf.samples[windowLen:]
	}
	return windows
}

// Pending reports how many samples remain buffered for a channel.
func (b *Buffers) Pending(stationID int64, channel string) int {
	buf := b.buffers[channelKey{stationID: stationID, channel: channel}]
	if buf == nil {
		return 0
	}
	return len(buf.samples)
}

// ThreeComponent builds the 3xN component-major matrix for a sliced window.
// Channel selection is deterministic: up to three of the station's channel
// names in lexicographic order, always including the window's own channel.
// Rows are truncated to the shortest available length; missing components
// are padded by duplicating an existing row.
func (b *Buffers) ThreeComponent(stationID int64, w Window) [][]float64 {
	rows := map[string][]float64{w.Channel: w.Samples}
	names := []string{w.Channel}
	for key, buf := range b.buffers {
		if key.stationID != stationID || key.channel == w.Channel || len(buf.samples) == 0 {
			continue
		}
		rows[key.channel] = buf.samples
		names = append(names, key.channel)
	}
	sort.Strings(names)
	if len(names) > 3 {
		names = names[:3]
	}

	// The window's own channel always participates, even when it sorts
	// after the third name.
	own := false
	for _, name := range names {
		if name == w.Channel {
			own = true
			break
		}
	}
	if !own {
		names[len(names)-1] = w.Channel
	}

	shortest := len(w.Samples)
	for _, name := range names {
		if n := len(rows[name]); n < shortest {
			shortest = n
		}
	}

	matrix := make([][]float64, 0, 3)
	for _, name := range names {
		matrix = append(matrix, rows[name][:shortest])
	}
	for len(matrix) < 3 {
		matrix = append(matrix, matrix[0])
	}
	return matrix
}
