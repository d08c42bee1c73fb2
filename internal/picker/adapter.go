// Package picker wraps the three-component windowed phase picker behind a
// fixed input/output contract. The model bundle is loaded at most once; when
// it is absent the adapter reports no detections and the pipeline degrades
// to its simulation path.
package picker

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/cangyeone/seismox-system/internal/db"
)

// RawDetection is one picker output row for a single window. Ephemeral;
// converted to PhasePicks before anything is persisted.
type RawDetection struct {
	PhaseIndex   int
	SampleOffset float64
	Confidence   float64
}

// Runner executes the picker model on one normalized (Nx3) window and
// returns raw output rows of [phaseIndex, sampleOffset, confidence].
type Runner interface {
	Run(window [][]float64, samplingRate float64) ([][]float64, error)
}

// RunnerFactory builds a Runner for a model bundle on disk.
type RunnerFactory func(modelPath string) (Runner, error)

var phaseLabels = [...]string{"Pg", "Sg", "Pn", "Sn"}

// PhaseLabel maps a phase class index to its label. Indices outside the
// known set fall back to a synthetic "phase<idx>" label.
func PhaseLabel(idx int) string {
	if idx >= 0 && idx < len(phaseLabels) {
		return phaseLabels[idx]
	}
	return fmt.Sprintf("phase%d", idx)
}

// PhaseCount is the number of phase classes the picker emits.
const PhaseCount = len(phaseLabels)

type Adapter struct {
	modelPath string
	factory   RunnerFactory

	loadOnce sync.Once
	runner   Runner
}

// NewAdapter creates an adapter for the model bundle at modelPath. The
// factory is invoked once, lazily, on the first Detect call; a missing
// bundle or a failed factory is treated as permanent model absence.
func NewAdapter(modelPath string, factory RunnerFactory) *Adapter {
	return &Adapter{modelPath: modelPath, factory: factory}
}

func (a *Adapter) load() Runner {
	a.loadOnce.Do(func() {
		if a.modelPath == "" || a.factory == nil {
			log.Printf("no picker model configured; using simulation fallback")
			return
		}
		if _, err := os.Stat(a.modelPath); err != nil {
			log.Printf("picker model not found at %s; using simulation fallback", a.modelPath)
			return
		}
		runner, err := a.factory(a.modelPath)
		if err != nil {
			log.Printf("failed to load picker model from %s: %v", a.modelPath, err)
			return
		}
		a.runner = runner
		log.Printf("loaded picker model from %s", a.modelPath)
	})
	return a.runner
}

// Squeeze collapses a singleton leading batch dimension, turning a 1x3xN
// matrix into 3xN for Detect.
func Squeeze(batch [][][]float64) ([][]float64, error) {
	if len(batch) != 1 {
		return nil, errors.New("expected singleton batch dimension")
	}
	return batch[0], nil
}

// normalize converts a window into the model's time-major (Nx3) layout.
// Accepts component-major (3xN) and time-major (Nx3) inputs; anything whose
// component count is not three is rejected.
func normalize(window [][]float64) ([][]float64, error) {
	if len(window) == 0 {
		return nil, errors.New("empty window")
	}

	// Component-major: exactly three rows of equal sample length.
	if len(window) == 3 && len(window[0]) != 3 {
		n := len(window[0])
		if len(window[1]) != n || len(window[2]) != n {
			return nil, errors.New("component rows have unequal lengths")
		}
		out := make([][]float64, n)
		for i := 0; i < n; i++ {
			out[i] = []float64{window[0][i], window[1][i], window[2][i]}
		}
		return out, nil
	}

	// Time-major: every row must carry three components.
	for _, row := range window {
		if len(row) != 3 {
			return nil, fmt.Errorf("expected 3 components per sample, got %d", len(row))
		}
	}
	return window, nil
}

// demean removes the per-component mean in place. The picker bundle is
// trained on zero-mean traces.
func demean(window [][]float64) {
	n := len(window)
	if n == 0 {
		return
	}
	col := make([]float64, n)
	for c := 0; c < 3; c++ {
		for i, row := range window {
			col[i] = row[c]
		}
		mean := floats.Sum(col) / float64(n)
		for _, row := range window {
			row[c] -= mean
		}
	}
}

// Detect runs the picker on one window of samples. Returns nil when no
// model is loaded (the caller must fall back to simulation) or when the
// input cannot be normalized. Individual malformed output rows are skipped,
// never treated as a whole-batch failure.
func (a *Adapter) Detect(window [][]float64, samplingRate float64) []RawDetection {
	runner := a.load()
	if runner == nil {
		return nil
	}

	normalized, err := normalize(window)
	if err != nil {
		log.Printf("picker input rejected: %v", err)
		return nil
	}
	demean(normalized)

	rows, err := runner.Run(normalized, samplingRate)
	if err != nil {
		log.Printf("picker model run failed: %v", err)
		return nil
	}

	var detections []RawDetection
	for _, row := range rows {
		if len(row) < 3 {
			log.Printf("skipping malformed picker output row: %v", row)
			continue
		}
		detections = append(detections, RawDetection{
			PhaseIndex:   int(row[0]),
			SampleOffset: row[1],
			Confidence:   row[2],
		})
	}
	return detections
}

// ToPicks converts raw detections into phase picks. Absolute pick time is
// the window start plus the in-window sample offset divided by the
// sampling rate.
func ToPicks(detections []RawDetection, stationID int64, windowStart time.Time, samplingRate float64) []db.PhasePick {
	picks := make([]db.PhasePick, 0, len(detections))
	for _, d := range detections {
		offset := time.Duration(d.SampleOffset / samplingRate * float64(time.Second))
		picks = append(picks, db.PhasePick{
			StationID: stationID,
			PhaseType: PhaseLabel(d.PhaseIndex),
			PickTime:  windowStart.Add(offset),
			Quality:   d.Confidence,
		})
	}
	return picks
}
