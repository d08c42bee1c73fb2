package db

import (
	"fmt"
	"time"
)

// Waveform records one raw submission persisted to the waveform store.
// Processed is flipped exactly once by the pipeline worker, even when the
// request produced no picks.
type Waveform struct {
	ID         int64     `json:"id"`
	StationID  int64     `json:"station_id"`
	FilePath   string    `json:"file_path"`
	ReceivedAt time.Time `json:"received_at"`
	Processed  bool      `json:"processed"`
}

func (db *DB) CreateWaveform(w *Waveform) error {
	if w.ReceivedAt.IsZero() {
		w.ReceivedAt = time.Now().UTC()
	}
	result, err := db.Exec(`
		INSERT INTO waveforms (station_id, file_path, received_at, processed)
		VALUES (?, ?, ?, ?)`,
		w.StationID, w.FilePath, w.ReceivedAt, w.Processed,
	)
	if err != nil {
		return fmt.Errorf("failed to create waveform: %w", err)
	}
	w.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get waveform insert ID: %w", err)
	}
	return nil
}

// MarkWaveformProcessed flags a waveform record as processed.
func (db *DB) MarkWaveformProcessed(id int64) error {
	result, err := db.Exec(`UPDATE waveforms SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark waveform %d processed: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("waveform %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetWaveform returns a waveform row by ID.
func (db *DB) GetWaveform(id int64) (*Waveform, error) {
	var w Waveform
	err := db.QueryRow(`
		SELECT id, station_id, file_path, received_at, processed
		FROM waveforms WHERE id = ?`, id).
		Scan(&w.ID, &w.StationID, &w.FilePath, &w.ReceivedAt, &w.Processed)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
