package pipeline

import (
	"errors"
	"math"
	"math/rand"

	"github.com/cangyeone/seismox-system/internal/db"
)

// ErrEmptyBatch is returned when Associate is called with no picks. An
// empty batch never creates an event.
var ErrEmptyBatch = errors.New("cannot associate an empty pick batch")

// Associate turns one station's batch of persisted picks into a provisional
// event: origin time is the earliest pick time, the location is the
// station's coordinates with a small pseudo-random perturbation standing in
// for a real hypocenter solver, and depth/magnitude are drawn within
// documented bounds (depth |N(10,4)| km, magnitude U[1.5,4.5] rounded to
// two decimals). The event is persisted first, then every pick in the batch
// is updated to reference it.
func Associate(catalog *db.DB, stationID int64, picks []db.PhasePick) (*db.Event, error) {
	if len(picks) == 0 {
		return nil, ErrEmptyBatch
	}

	station, err := catalog.GetStation(stationID)
	if err != nil {
		return nil, err
	}

	origin := picks[0].PickTime
	for _, p := range picks[1:] {
		if p.PickTime.Before(origin) {
			origin = p.PickTime
		}
	}

	event := &db.Event{
		OriginTime:         origin,
		Latitude:           station.Latitude + (rand.Float64()-0.5)*0.1,
		Longitude:          station.Longitude + (rand.Float64()-0.5)*0.1,
		DepthKm:            math.Abs(rand.NormFloat64()*4 + 10),
		Magnitude:          math.Round((1.5+rand.Float64()*3.0)*100) / 100,
		EventType:          "earthquake",
		PreferredStationID: &station.ID,
	}
	if err := catalog.CreateEvent(event); err != nil {
		return nil, err
	}

	for i := range picks {
		if err := catalog.AttachPickToEvent(picks[i].ID, event.ID); err != nil {
			return nil, err
		}
		picks[i].EventID = &event.ID
	}
	return event, nil
}
