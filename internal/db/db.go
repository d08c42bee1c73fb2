// Package db implements the sqlite catalog backing the SeismoX pipeline:
// stations, raw waveform records, phase picks and provisional events.
package db

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// sqlite allows one writer; the pipeline worker, bridge relay and HTTP
	// handlers all write through this handle.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS stations (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			code              TEXT NOT NULL UNIQUE,
			name              TEXT NOT NULL,
			latitude          DOUBLE NOT NULL,
			longitude         DOUBLE NOT NULL,
			elevation_m       DOUBLE NOT NULL DEFAULT 0,
			is_active         INTEGER NOT NULL DEFAULT 1,
			status            TEXT NOT NULL DEFAULT 'healthy'
		);
		CREATE TABLE IF NOT EXISTS waveforms (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id        INTEGER NOT NULL,
			file_path         TEXT NOT NULL,
			received_at       TIMESTAMP NOT NULL,
			processed         INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(station_id) REFERENCES stations(id)
		);
		CREATE INDEX IF NOT EXISTS idx_waveforms_received_at ON waveforms(received_at);
		CREATE TABLE IF NOT EXISTS phase_picks (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			station_id        INTEGER NOT NULL,
			event_id          INTEGER,
			phase_type        TEXT NOT NULL,
			pick_time         TIMESTAMP NOT NULL,
			quality           DOUBLE NOT NULL DEFAULT 0,
			initial_motion    TEXT,
			earthquake_type   TEXT,
			FOREIGN KEY(station_id) REFERENCES stations(id),
			FOREIGN KEY(event_id) REFERENCES events(id)
		);
		CREATE INDEX IF NOT EXISTS idx_phase_picks_event ON phase_picks(event_id);
		CREATE TABLE IF NOT EXISTS events (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			origin_time          TIMESTAMP NOT NULL,
			latitude             DOUBLE NOT NULL,
			longitude            DOUBLE NOT NULL,
			depth_km             DOUBLE NOT NULL DEFAULT 10,
			magnitude            DOUBLE NOT NULL DEFAULT 0,
			event_type           TEXT NOT NULL DEFAULT 'earthquake',
			preferred_station_id INTEGER,
			FOREIGN KEY(preferred_station_id) REFERENCES stations(id)
		);
		CREATE INDEX IF NOT EXISTS idx_events_origin_time ON events(origin_time);
		CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}

	return &DB{db}, nil
}

// AttachAdminRoutes mounts the tsweb debugger plus a live tailSQL console
// for the catalog under /debug/. These routes are for operators only and
// must not be exposed publicly.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://catalog.db", db.DB, &tailsql.DBOptions{
		Label: "Catalog DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
}
