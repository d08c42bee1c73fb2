// Package wavestore persists raw waveform bytes to disk. Files are addressed
// only by station code and arrival timestamp; there is no deduplication.
package wavestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	dir string
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create waveform directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Persist writes data under a name derived from the station code and the
// current UTC time. An existing file is never overwritten; a timestamp
// collision gets a short uuid suffix instead.
func (s *Store) Persist(stationCode string, data []byte) (string, time.Time, error) {
	receivedAt := time.Now().UTC()
	name := fmt.Sprintf("%s_%s.mseed", stationCode, receivedAt.Format("20060102T150405.000000"))
	path := filepath.Join(s.dir, name)

	if _, err := os.Stat(path); err == nil {
		name = fmt.Sprintf("%s_%s_%s.mseed", stationCode,
			receivedAt.Format("20060102T150405.000000"), uuid.NewString()[:8])
		path = filepath.Join(s.dir, name)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to persist waveform for %s: %w", stationCode, err)
	}
	return path, receivedAt, nil
}
