package db

import (
	"database/sql"
	"fmt"
	"time"
)

// PhasePick is one detected (or simulated) phase arrival at a station.
// EventID stays NULL until association attaches the pick to an event.
type PhasePick struct {
	ID             int64     `json:"id"`
	StationID      int64     `json:"station_id"`
	EventID        *int64    `json:"event_id"`
	PhaseType      string    `json:"phase_type"`
	PickTime       time.Time `json:"pick_time"`
	Quality        float64   `json:"quality"`
	InitialMotion  *string   `json:"initial_motion"`
	EarthquakeType *string   `json:"earthquake_type"`
}

func (db *DB) CreatePick(p *PhasePick) error {
	result, err := db.Exec(`
		INSERT INTO phase_picks (station_id, event_id, phase_type, pick_time, quality, initial_motion, earthquake_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.StationID, p.EventID, p.PhaseType, p.PickTime, p.Quality, p.InitialMotion, p.EarthquakeType,
	)
	if err != nil {
		return fmt.Errorf("failed to create pick: %w", err)
	}
	p.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get pick insert ID: %w", err)
	}
	return nil
}

// AttachPickToEvent backfills the event association on a pick.
func (db *DB) AttachPickToEvent(pickID, eventID int64) error {
	result, err := db.Exec(`UPDATE phase_picks SET event_id = ? WHERE id = ?`, eventID, pickID)
	if err != nil {
		return fmt.Errorf("failed to attach pick %d to event %d: %w", pickID, eventID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pick %d: %w", pickID, ErrNotFound)
	}
	return nil
}

func scanPicks(rows *sql.Rows) ([]PhasePick, error) {
	defer rows.Close()
	var picks []PhasePick
	for rows.Next() {
		var p PhasePick
		if err := rows.Scan(&p.ID, &p.StationID, &p.EventID, &p.PhaseType, &p.PickTime,
			&p.Quality, &p.InitialMotion, &p.EarthquakeType); err != nil {
			return nil, err
		}
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

// ListPicks returns the most recent picks, newest first.
func (db *DB) ListPicks(limit int) ([]PhasePick, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, station_id, event_id, phase_type, pick_time, quality, initial_motion, earthquake_type
		FROM phase_picks ORDER BY pick_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanPicks(rows)
}

// ListPicksForEvent returns all picks attached to an event, oldest first.
func (db *DB) ListPicksForEvent(eventID int64) ([]PhasePick, error) {
	rows, err := db.Query(`
		SELECT id, station_id, event_id, phase_type, pick_time, quality, initial_motion, earthquake_type
		FROM phase_picks WHERE event_id = ? ORDER BY pick_time`, eventID)
	if err != nil {
		return nil, err
	}
	return scanPicks(rows)
}
