package statesync

import (
	"bytes"
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// MarkerName is the well-known object recording the last successful backup.
// There is exactly one marker per remote namespace; it is overwritten, never
// versioned.
const MarkerName = "backup-marker.json"

// Marker records when the last backup cycle completed and which state
// directory it covered.
type Marker struct {
	LastBackup string `json:"last_backup"`
	StateDir   string `json:"state_dir"`
}

// NewMarker builds a marker stamped with the given time in UTC RFC3339.
func NewMarker(now time.Time, stateDir string) Marker {
	return Marker{
		LastBackup: now.UTC().Format(time.RFC3339),
		StateDir:   stateDir,
	}
}

// Time parses the marker's timestamp.
func (m Marker) Time() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, m.LastBackup)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing marker timestamp: %w", err)
	}
	return t, nil
}

// markerKey returns the marker's object key within a remote namespace.
func markerKey(prefix string) string {
	return joinKey(prefix, MarkerName)
}

// WriteMarker uploads the marker to its well-known key under prefix.
func WriteMarker(ctx context.Context, t Transport, prefix string, m Marker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding marker: %w", err)
	}
	if err := t.Put(ctx, markerKey(prefix), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("uploading marker: %w", err)
	}
	return nil
}

// ReadMarker downloads and decodes the marker under prefix.
// Returns found=false (and no error) when no marker object exists.
func ReadMarker(ctx context.Context, t Transport, prefix string) (Marker, bool, error) {
	objects, err := t.List(ctx, markerKey(prefix))
	if err != nil {
		return Marker{}, false, fmt.Errorf("listing marker: %w", err)
	}
	if len(objects) == 0 {
		return Marker{}, false, nil
	}

	var buf bytes.Buffer
	if err := t.Get(ctx, markerKey(prefix), &buf); err != nil {
		return Marker{}, false, fmt.Errorf("downloading marker: %w", err)
	}

	var m Marker
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		return Marker{}, false, fmt.Errorf("decoding marker: %w", err)
	}
	return m, true, nil
}
