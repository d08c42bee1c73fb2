package pipeline

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSamples(n int, value float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = value
	}
	return s
}

func TestAccumulateSlicesExactWindows(t *testing.T) {
	b := NewBuffers(WindowSeconds)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 3.5 windows at 100 Hz: exactly 3 windows, 500 samples retained.
	windows := b.Accumulate(1, "BHZ", makeSamples(3500, 1), 100, start, start)
	require.Len(t, windows, 3)
	for _, w := range windows {
		assert.Len(t, w.Samples, 1000)
	}
	assert.Equal(t, 500, b.Pending(1, "BHZ"))
}

func TestAccumulateWindowStartAdvancesExactly(t *testing.T) {
	b := NewBuffers(WindowSeconds)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	windows := b.Accumulate(1, "BHZ", makeSamples(3000, 0), 100, start, start)
	require.Len(t, windows, 3)
	for k, w := range windows {
		assert.Equal(t, start.Add(time.Duration(k)*WindowSeconds*time.Second), w.Start,
			"window %d start", k)
	}

	// Arrival jitter must not affect window start times: the next batch
	// arrives "late" but continues from the recorded start.
	late := start.Add(45 * time.Second)
	more := b.Accumulate(1, "BHZ", makeSamples(1000, 0), 100, late, late)
	require.Len(t, more, 1)
	assert.Equal(t, start.Add(3*WindowSeconds*time.Second), more[0].Start)
}

func TestAccumulateFractionalWindowSeconds(t *testing.T) {
	b := NewBuffers(0.5)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 0.5 s windows at 100 Hz are 50 samples; 120 samples yield two
	// windows and a 20-sample remainder, starts advancing by 500 ms.
	windows := b.Accumulate(1, "BHZ", makeSamples(120, 1), 100, start, start)
	require.Len(t, windows, 2)
	for k, w := range windows {
		assert.Len(t, w.Samples, 50)
		assert.Equal(t, start.Add(time.Duration(k)*500*time.Millisecond), w.Start,
			"window %d start", k)
	}
	assert.Equal(t, 20, b.Pending(1, "BHZ"))
}

func TestAccumulateThirdsScenario(t *testing.T) {
	b := NewBuffers(WindowSeconds)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Three calls, each one third of a 10s 100Hz window.
	first := b.Accumulate(1, "BHZ", makeSamples(334, 1), 100, start, start)
	assert.Empty(t, first)
	second := b.Accumulate(1, "BHZ", makeSamples(333, 2), 100, time.Time{}, start.Add(3*time.Second))
	assert.Empty(t, second)
	third := b.Accumulate(1, "BHZ", makeSamples(333, 3), 100, time.Time{}, start.Add(7*time.Second))

	require.Len(t, third, 1)
	assert.Len(t, third[0].Samples, 1000)
	assert.Equal(t, start, third[0].Start, "window starts at the buffer's recorded start time")
	assert.Equal(t, 0, b.Pending(1, "BHZ"))
}

func TestAccumulateNoUsableData(t *testing.T) {
	b := NewBuffers(WindowSeconds)
	now := time.Now()

	assert.Nil(t, b.Accumulate(1, "BHZ", nil, 100, now, now))
	assert.Nil(t, b.Accumulate(1, "BHZ", makeSamples(100, 1), 0, now, now))
	assert.Nil(t, b.Accumulate(1, "BHZ", makeSamples(100, 1), -20, now, now))
}

func TestAccumulateSeedsStartFromReceivedAt(t *testing.T) {
	b := NewBuffers(WindowSeconds)
	received := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	windows := b.Accumulate(1, "BHZ", makeSamples(1000, 0), 100, time.Time{}, received)
	require.Len(t, windows, 1)
	assert.Equal(t, received, windows[0].Start)
}

func TestAccumulateChannelsAreIndependent(t *testing.T) {
	b := NewBuffers(WindowSeconds)
	start := time.Now().UTC()

	b.Accumulate(1, "BHZ", makeSamples(600, 0), 100, start, start)
	b.Accumulate(1, "BHN", makeSamples(400, 0), 100, start, start)
	b.Accumulate(2, "BHZ", makeSamples(900, 0), 100, start, start)

	assert.Equal(t, 600, b.Pending(1, "BHZ"))
	assert.Equal(t, 400, b.Pending(1, "BHN"))
	assert.Equal(t, 900, b.Pending(2, "BHZ"))
}

func TestThreeComponentPadsSingleChannel(t *testing.T) {
	b := NewBuffers(WindowSeconds)
	w := Window{StationID: 1, Channel: "BHZ", Samples: []float64{1, 2, 3}}

	matrix := b.ThreeComponent(1, w)
	require.Len(t, matrix, 3)
	want := [][]float64{{1, 2, 3}, {1, 2, 3}, {1, 2, 3}}
	if diff := cmp.Diff(want, matrix); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}
}

func TestThreeComponentAlignsToShortest(t *testing.T) {
	b := NewBuffers(WindowSeconds)
	start := time.Now().UTC()

	// Two sibling channels with different pending lengths.
	b.Accumulate(1, "BHE", makeSamples(5, 7), 100, start, start)
	b.Accumulate(1, "BHN", makeSamples(2, 8), 100, start, start)

	w := Window{StationID: 1, Channel: "BHZ", Samples: []float64{1, 2, 3, 4}}
	matrix := b.ThreeComponent(1, w)
	require.Len(t, matrix, 3)

	// Lexicographic: BHE, BHN, BHZ; truncated to BHN's 2 samples.
	want := [][]float64{{7, 7}, {8, 8}, {1, 2}}
	if diff := cmp.Diff(want, matrix); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}
}

func TestThreeComponentIgnoresOtherStations(t *testing.T) {
	b := NewBuffers(WindowSeconds)
	start := time.Now().UTC()
	b.Accumulate(9, "BHE", makeSamples(50, 1), 100, start, start)

	w := Window{StationID: 1, Channel: "BHZ", Samples: []float64{5, 6}}
	matrix := b.ThreeComponent(1, w)
	want := [][]float64{{5, 6}, {5, 6}, {5, 6}}
	if diff := cmp.Diff(want, matrix); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}
}
