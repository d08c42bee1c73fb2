package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Event is a provisional grouping of picks from one processing cycle.
// Immutable after creation; pick associations are backfilled through
// AttachPickToEvent.
type Event struct {
	ID                 int64     `json:"id"`
	OriginTime         time.Time `json:"origin_time"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	DepthKm            float64   `json:"depth_km"`
	Magnitude          float64   `json:"magnitude"`
	EventType          string    `json:"event_type"`
	PreferredStationID *int64    `json:"preferred_station_id"`
}

func (db *DB) CreateEvent(ev *Event) error {
	if ev.EventType == "" {
		ev.EventType = "earthquake"
	}
	result, err := db.Exec(`
		INSERT INTO events (origin_time, latitude, longitude, depth_km, magnitude, event_type, preferred_station_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.OriginTime, ev.Latitude, ev.Longitude, ev.DepthKm, ev.Magnitude, ev.EventType, ev.PreferredStationID,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	ev.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event insert ID: %w", err)
	}
	return nil
}

func scanEvent(row *sql.Row) (*Event, error) {
	var ev Event
	err := row.Scan(&ev.ID, &ev.OriginTime, &ev.Latitude, &ev.Longitude,
		&ev.DepthKm, &ev.Magnitude, &ev.EventType, &ev.PreferredStationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetEvent returns an event by ID.
func (db *DB) GetEvent(id int64) (*Event, error) {
	row := db.QueryRow(`
		SELECT id, origin_time, latitude, longitude, depth_km, magnitude, event_type, preferred_station_id
		FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// FindEventByType returns the first event carrying the given type tag.
// Used by the feed poller to deduplicate imported catalog entries.
func (db *DB) FindEventByType(tag string) (*Event, error) {
	row := db.QueryRow(`
		SELECT id, origin_time, latitude, longitude, depth_km, magnitude, event_type, preferred_station_id
		FROM events WHERE event_type = ? LIMIT 1`, tag)
	return scanEvent(row)
}

// ListEvents returns events newest first.
func (db *DB) ListEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, origin_time, latitude, longitude, depth_km, magnitude, event_type, preferred_station_id
		FROM events ORDER BY origin_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.OriginTime, &ev.Latitude, &ev.Longitude,
			&ev.DepthKm, &ev.Magnitude, &ev.EventType, &ev.PreferredStationID); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
