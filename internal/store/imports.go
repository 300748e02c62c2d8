package store

import (
	"fmt"
	"time"
)

// Import records one conversion of a text export to a binary log.
type Import struct {
	ID         string
	SourcePath string
	BinaryPath string
	Keyframes  int
	Frames     int
	Entities   int
	Skipped    int
	StartTime  uint32
	Interval   uint32
	ImportedAt time.Time
}

// RecordImport inserts imp and returns its ID. A missing ID or timestamp is
// filled in.
func (s *Store) RecordImport(imp Import) (string, error) {
	if imp.ID == "" {
		imp.ID = newID()
	}
	if imp.ImportedAt.IsZero() {
		imp.ImportedAt = s.clock.Now()
	}
	_, err := s.Exec(`INSERT INTO log_imports (
			import_id, source_path, binary_path, keyframes, frames, entities,
			skipped, start_time_ms, interval_ms, imported_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		imp.ID, imp.SourcePath, imp.BinaryPath, imp.Keyframes, imp.Frames, imp.Entities,
		imp.Skipped, imp.StartTime, imp.Interval, imp.ImportedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to record import of %s: %w", imp.SourcePath, err)
	}
	return imp.ID, nil
}

// ListImports returns up to limit imports, newest first. A limit of zero or
// less returns all of them.
func (s *Store) ListImports(limit int) ([]Import, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.Query(`SELECT import_id, source_path, binary_path, keyframes, frames,
			entities, skipped, start_time_ms, interval_ms, imported_unix_nanos
		FROM log_imports
		ORDER BY imported_unix_nanos DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var out []Import
	for rows.Next() {
		var imp Import
		var nanos int64
		if err := rows.Scan(&imp.ID, &imp.SourcePath, &imp.BinaryPath, &imp.Keyframes, &imp.Frames,
			&imp.Entities, &imp.Skipped, &imp.StartTime, &imp.Interval, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		imp.ImportedAt = fromNanos(nanos)
		out = append(out, imp)
	}
	return out, rows.Err()
}
