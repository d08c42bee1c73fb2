package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// Station is a registered seismic station. Streaming auto-registers unknown
// stations with placeholder coordinates and status "streaming".
type Station struct {
	ID         int64   `json:"id"`
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ElevationM float64 `json:"elevation_m"`
	IsActive   bool    `json:"is_active"`
	Status     string  `json:"status"`
}

// ErrNotFound is returned by Find* and Get* helpers when no row matches.
var ErrNotFound = errors.New("not found")

// CreateStation inserts a station and fills in its assigned ID.
func (db *DB) CreateStation(st *Station) error {
	if st.Status == "" {
		st.Status = "healthy"
	}
	result, err := db.Exec(`
		INSERT INTO stations (code, name, latitude, longitude, elevation_m, is_active, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.Code, st.Name, st.Latitude, st.Longitude, st.ElevationM, st.IsActive, st.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create station %q: %w", st.Code, err)
	}
	st.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get station insert ID: %w", err)
	}
	return nil
}

func scanStation(row *sql.Row) (*Station, error) {
	var st Station
	err := row.Scan(&st.ID, &st.Code, &st.Name, &st.Latitude, &st.Longitude,
		&st.ElevationM, &st.IsActive, &st.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// FindStationByCode looks up a station by its unique code.
func (db *DB) FindStationByCode(code string) (*Station, error) {
	row := db.QueryRow(`
		SELECT id, code, name, latitude, longitude, elevation_m, is_active, status
		FROM stations WHERE code = ?`, code)
	return scanStation(row)
}

// GetStation looks up a station by ID.
func (db *DB) GetStation(id int64) (*Station, error) {
	row := db.QueryRow(`
		SELECT id, code, name, latitude, longitude, elevation_m, is_active, status
		FROM stations WHERE id = ?`, id)
	return scanStation(row)
}

// ListStations returns all registered stations ordered by code.
func (db *DB) ListStations() ([]Station, error) {
	rows, err := db.Query(`
		SELECT id, code, name, latitude, longitude, elevation_m, is_active, status
		FROM stations ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []Station
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.ID, &st.Code, &st.Name, &st.Latitude, &st.Longitude,
			&st.ElevationM, &st.IsActive, &st.Status); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// EnsureStation returns the station with the given code, creating it with
// the provided template if it does not exist yet.
func (db *DB) EnsureStation(code string, template Station) (*Station, error) {
	st, err := db.FindStationByCode(code)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	template.Code = code
	if err := db.CreateStation(&template); err != nil {
		return nil, err
	}
	return &template, nil
}
