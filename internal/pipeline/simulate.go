package pipeline

import (
	"math/rand"
	"time"

	"github.com/cangyeone/seismox-system/internal/db"
)

var (
	simulatedPhases = []string{"Pg", "Sg", "Pn", "Sn"}
	initialMotions  = []string{"up", "down"}
	earthquakeTypes = []string{"tectonic", "explosion", "volcanic"}
)

// SimulatePicks produces one synthetic pick per phase label, offset by a
// pseudo-random 0.5-6.0 seconds from the base time with quality in
// [0.7, 0.99]. It keeps the association stage exercised end-to-end when no
// real detection is available; it must never replace genuine detections.
func SimulatePicks(stationID int64, base time.Time) []db.PhasePick {
	picks := make([]db.PhasePick, 0, len(simulatedPhases))
	for _, phase := range simulatedPhases {
		offset := 0.5 + rand.Float64()*5.5
		motion := initialMotions[rand.Intn(len(initialMotions))]
		eqType := earthquakeTypes[rand.Intn(len(earthquakeTypes))]
		picks = append(picks, db.PhasePick{
			StationID:      stationID,
			PhaseType:      phase,
			PickTime:       base.Add(time.Duration(offset * float64(time.Second))),
			Quality:        0.7 + rand.Float64()*0.29,
			InitialMotion:  &motion,
			EarthquakeType: &eqType,
		})
	}
	return picks
}
