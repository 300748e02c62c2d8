package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("heatmap run not found")

	// ErrRunFinished is returned when finishing a run twice.
	ErrRunFinished = errors.New("heatmap run already finished")
)

// RunStatus is the lifecycle state of a heatmap run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether s ends a run.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// HeatmapRun is one generated pass.
type HeatmapRun struct {
	ID          string
	LogPath     string
	PassName    string
	Resolution  int
	Radius      float64
	Logarithmic bool

	Status     RunStatus
	Samples    int
	MaxValue   float64
	OutputPath string
	Error      string

	StartedAt  time.Time
	FinishedAt *time.Time
}

// RunResult is what a finished run reports.
type RunResult struct {
	Samples    int
	MaxValue   float64
	OutputPath string
	Err        error
}

// StartHeatmapRun inserts run in the running state and returns its ID.
func (s *Store) StartHeatmapRun(run HeatmapRun) (string, error) {
	if run.ID == "" {
		run.ID = newID()
	}
	_, err := s.Exec(`INSERT INTO heatmap_runs (
			run_id, log_path, pass_name, resolution, radius, logarithmic, status, started_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.LogPath, run.PassName, run.Resolution, run.Radius, run.Logarithmic,
		StatusRunning, s.clock.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to start heatmap run %s: %w", run.PassName, err)
	}
	return run.ID, nil
}

// FinishHeatmapRun moves a running run to a terminal status.
func (s *Store) FinishHeatmapRun(id string, status RunStatus, res RunResult) error {
	if !status.Terminal() {
		return fmt.Errorf("invalid final status %q", status)
	}
	msg := ""
	if res.Err != nil {
		msg = res.Err.Error()
	}
	r, err := s.Exec(`UPDATE heatmap_runs
		SET status = ?, samples = ?, max_value = ?, output_path = ?, error = ?, finished_unix_nanos = ?
		WHERE run_id = ? AND status = ?`,
		status, res.Samples, res.MaxValue, res.OutputPath, msg, s.clock.Now().UnixNano(),
		id, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to finish heatmap run %s: %w", id, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetHeatmapRun(id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrRunFinished, id)
	}
	return nil
}

const runColumns = `run_id, log_path, pass_name, resolution, radius, logarithmic, status,
	samples, max_value, output_path, error, started_unix_nanos, finished_unix_nanos`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*HeatmapRun, error) {
	var run HeatmapRun
	var started int64
	var finished sql.NullInt64
	if err := sc.Scan(&run.ID, &run.LogPath, &run.PassName, &run.Resolution, &run.Radius,
		&run.Logarithmic, &run.Status, &run.Samples, &run.MaxValue, &run.OutputPath, &run.Error,
		&started, &finished); err != nil {
		return nil, err
	}
	run.StartedAt = fromNanos(started)
	if finished.Valid {
		t := fromNanos(finished.Int64)
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetHeatmapRun returns the run with the given ID.
func (s *Store) GetHeatmapRun(id string) (*HeatmapRun, error) {
	run, err := scanRun(s.QueryRow(`SELECT `+runColumns+` FROM heatmap_runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get heatmap run %s: %w", id, err)
	}
	return run, nil
}

// ListHeatmapRuns returns up to limit runs, newest first. A limit of zero or
// less returns all of them.
func (s *Store) ListHeatmapRuns(limit int) ([]HeatmapRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.Query(`SELECT `+runColumns+` FROM heatmap_runs
		ORDER BY started_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list heatmap runs: %w", err)
	}
	defer rows.Close()

	var out []HeatmapRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan heatmap run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}
