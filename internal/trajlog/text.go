package trajlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/banshee-data/trajectory.replay/internal/monitoring"
	"github.com/banshee-data/trajectory.replay/internal/spatial"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// secondsToMillis converts the text format's continuous time to the
	// integer frame-index scale.
	secondsToMillis = 1000

	// maxLineBytes bounds a single text record.
	maxLineBytes = 1 << 20

	// maxReportedErrors caps the ParseErrors kept in an IngestReport.
	maxReportedErrors = 100
)

// TextOptions configures delimited text ingestion.
type TextOptions struct {
	BuilderOptions

	// ColumnSeparator splits record columns (default ';').
	ColumnSeparator rune

	// VectorSeparator splits the x, z, y components of an anchor point
	// (default ' '). When it equals ColumnSeparator, or both are
	// whitespace, the components are separate columns.
	VectorSeparator rune

	// Size is the source length in bytes, used for progress reporting.
	Size int64

	// Progress, if set, is called as ingestion advances. Returning true
	// cancels the load.
	Progress func(fraction float64) (cancel bool)
}

func (o TextOptions) withDefaults() TextOptions {
	if o.ColumnSeparator == 0 {
		o.ColumnSeparator = ';'
	}
	if o.VectorSeparator == 0 {
		o.VectorSeparator = ' '
	}
	return o
}

// IngestReport summarises a text load.
type IngestReport struct {
	Lines        int           `json:"lines"`
	HeaderLines  int           `json:"header_lines"`
	Records      int           `json:"records"`
	SkippedCount int           `json:"skipped"`
	Skipped      []*ParseError `json:"-"` // first maxReportedErrors rejects
}

func (r *IngestReport) skip(pe *ParseError) {
	r.SkippedCount++
	if len(r.Skipped) < maxReportedErrors {
		r.Skipped = append(r.Skipped, pe)
	}
	if r.SkippedCount <= maxReportedErrors {
		monitoring.Logf("[trajlog] skipping record: %v", pe)
	} else if r.SkippedCount == maxReportedErrors+1 {
		monitoring.Logf("[trajlog] more than %d bad records; further rejects are counted only", maxReportedErrors)
	}
}

// ReadText ingests delimited trajectory records. Each data line is
//
//	time; entityId; entityType; "x z y" front; "x z y" back[; vehicleClass]
//
// with time in seconds. Lines before the first record whose first character is
// not a digit are header and are skipped. A record that cannot be parsed is
// reported in the IngestReport and skipped. A read failure stops ingestion:
// the log built so far is returned together with the error.
func ReadText(ctx context.Context, r io.Reader, opts TextOptions) (*Log, *IngestReport, error) {
	opts = opts.withDefaults()
	b := NewBuilder(opts.BuilderOptions)
	report := &IngestReport{}
	p := recordParser{col: opts.ColumnSeparator, vec: opts.VectorSeparator}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var consumed int64
	nextProgress := 0.0
	inHeader := true

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		report.Lines++
		consumed += int64(len(scanner.Bytes())) + 1

		if report.Lines%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, report, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
		}
		if opts.Progress != nil && opts.Size > 0 {
			if f := float64(consumed) / float64(opts.Size); f >= nextProgress {
				if opts.Progress(math.Min(f, 1)) {
					return nil, report, ErrCancelled
				}
				nextProgress = f + 0.05
			}
		}

		if inHeader {
			if line == "" || !unicode.IsDigit(rune(line[0])) {
				report.HeaderLines++
				continue
			}
			inHeader = false
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, err := p.parse(line)
		if err == nil {
			err = b.Append(rec.time, rec.id, rec.typ, rec.position(), rec.orientation())
		}
		if err != nil {
			report.skip(&ParseError{Line: report.Lines, Text: line, Err: err})
			continue
		}
		report.Records++
	}

	log := b.Build()
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			err = &ParseError{Line: report.Lines + 1, Text: "", Err: err}
		}
		return log, report, fmt.Errorf("reading stopped after line %d: %w", report.Lines, err)
	}
	if opts.Progress != nil {
		opts.Progress(1)
	}
	return log, report, nil
}

type record struct {
	time        uint32
	id          int32
	typ         EntityType
	front, back r3.Vec
}

// position is the midpoint of the front and back anchors.
func (r record) position() r3.Vec { return spatial.Midpoint(r.front, r.back) }

func (r record) orientation() quat.Number {
	return spatial.LookRotation(r3.Sub(r.front, r.back), spatial.Up)
}

type recordParser struct {
	col, vec rune
}

func (p recordParser) split(s string, sep rune) []string {
	if unicode.IsSpace(sep) {
		return strings.Fields(s)
	}
	parts := strings.Split(s, string(sep))
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// flat reports whether anchor components are separate columns.
func (p recordParser) flat() bool {
	return p.col == p.vec || (unicode.IsSpace(p.col) && unicode.IsSpace(p.vec))
}

func (p recordParser) parse(line string) (record, error) {
	var rec record
	cols := p.split(line, p.col)

	var front, back []string
	if p.flat() {
		if len(cols) < 9 {
			return rec, fmt.Errorf("expected at least 9 columns, got %d", len(cols))
		}
		front, back = cols[3:6], cols[6:9]
	} else {
		if len(cols) < 5 {
			return rec, fmt.Errorf("expected at least 5 columns, got %d", len(cols))
		}
		front, back = p.split(cols[3], p.vec), p.split(cols[4], p.vec)
		if len(front) != 3 || len(back) != 3 {
			return rec, fmt.Errorf("anchor points need 3 components, got %d and %d", len(front), len(back))
		}
	}

	seconds, err := strconv.ParseFloat(cols[0], 64)
	if err != nil {
		return rec, fmt.Errorf("time: %w", err)
	}
	ms := math.Round(seconds * secondsToMillis)
	if ms < 0 || ms > math.MaxUint32 || math.IsNaN(ms) {
		return rec, fmt.Errorf("time %v s out of range", seconds)
	}
	rec.time = uint32(ms)

	id, err := strconv.ParseInt(cols[1], 10, 32)
	if err != nil {
		return rec, fmt.Errorf("entity id: %w", err)
	}
	rec.id = int32(id)

	typ, err := strconv.ParseUint(cols[2], 10, 8)
	if err != nil {
		return rec, fmt.Errorf("entity type: %w", err)
	}
	rec.typ = EntityType(typ)

	if rec.front, err = parseAnchor(front); err != nil {
		return rec, fmt.Errorf("front: %w", err)
	}
	if rec.back, err = parseAnchor(back); err != nil {
		return rec, fmt.Errorf("back: %w", err)
	}
	return rec, nil
}

// parseAnchor reads x, z, y source components into a Y-up vector.
func parseAnchor(v []string) (r3.Vec, error) {
	var f [3]float64
	for i := range f {
		x, err := strconv.ParseFloat(v[i], 64)
		if err != nil {
			return r3.Vec{}, err
		}
		f[i] = x
	}
	return r3.Vec{X: f[0], Y: f[2], Z: f[1]}, nil
}
