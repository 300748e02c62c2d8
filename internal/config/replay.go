// Package config loads the JSON replay configuration. Every field is a
// pointer so a partial file leaves the rest at their defaults; the Get*
// methods resolve those defaults.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"
)

// DefaultConfigPath is the example configuration checked into the repo.
const DefaultConfigPath = "config/replay.defaults.json"

const (
	maxFileSize          = 1 * 1024 * 1024 // 1MB
	maxHeatmapResolution = 16384
)

// ReplayConfig is the root configuration shared by the replay and tool
// commands.
type ReplayConfig struct {
	// Ingestion
	IntervalMs            *uint32 `json:"interval_ms,omitempty"`
	ColumnSeparator       *string `json:"column_separator,omitempty"`
	VectorSeparator       *string `json:"vector_separator,omitempty"`
	FirstFrameIsStartTime *bool   `json:"first_frame_is_start_time,omitempty"`
	StrictTypes           *bool   `json:"strict_types,omitempty"`
	MaxEntityID           *int32  `json:"max_entity_id,omitempty"`

	// Playback
	TimeScale    *float64 `json:"time_scale,omitempty"`
	TickInterval *string  `json:"tick_interval,omitempty"` // duration string like "20ms"
	Loop         *bool    `json:"loop,omitempty"`

	// Asset catalog: type name or code → asset names.
	Seed         *uint64             `json:"seed,omitempty"`
	DefaultAsset *string             `json:"default_asset,omitempty"`
	Assets       map[string][]string `json:"assets,omitempty"`
	AddMissing   *bool               `json:"add_missing_types,omitempty"`

	Heatmap *HeatmapConfig `json:"heatmap,omitempty"`
}

// HeatmapConfig configures heatmap generation.
type HeatmapConfig struct {
	Resolution  *int          `json:"resolution,omitempty"`
	PointRadius *float64      `json:"point_radius,omitempty"`
	Logarithmic *bool         `json:"logarithmic,omitempty"`
	Bounds      *Bounds       `json:"bounds,omitempty"`
	Origin      *[3]float64   `json:"origin,omitempty"`
	Passes      []HeatmapPass `json:"passes,omitempty"`
}

// Bounds is an axis-aligned rectangle on the ground plane.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinZ float64 `json:"min_z"`
	MaxX float64 `json:"max_x"`
	MaxZ float64 `json:"max_z"`
}

// HeatmapPass is one named raster: the log's keyframes filtered by type.
// With Include false the listed types are excluded; an empty exclude list
// keeps everything.
type HeatmapPass struct {
	Name    string   `json:"name"`
	Log     string   `json:"log,omitempty"`
	Include bool     `json:"include"`
	Types   []string `json:"types,omitempty"`
}

// Environment overrides, prefixed with TRAJ_.
type envOverrides struct {
	IntervalMs        *uint32  `env:"INTERVAL_MS"`
	TimeScale         *float64 `env:"TIME_SCALE"`
	Seed              *uint64  `env:"SEED"`
	StrictTypes       *bool    `env:"STRICT_TYPES"`
	HeatmapResolution *int     `env:"HEATMAP_RESOLUTION"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRAJ_"

// Load reads a ReplayConfig from a JSON file. The path must have a .json
// extension and the file must be at most 1MB.
func Load(path string) (*ReplayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ReplayConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns an empty configuration when path is
// empty. Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*ReplayConfig, error) {
	cfg := &ReplayConfig{}
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays TRAJ_* environment variables onto c. A nil environ reads
// the process environment.
func (c *ReplayConfig) ApplyEnv(environ map[string]string) error {
	var o envOverrides
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if o.IntervalMs != nil {
		c.IntervalMs = o.IntervalMs
	}
	if o.TimeScale != nil {
		c.TimeScale = o.TimeScale
	}
	if o.Seed != nil {
		c.Seed = o.Seed
	}
	if o.StrictTypes != nil {
		c.StrictTypes = o.StrictTypes
	}
	if o.HeatmapResolution != nil {
		if c.Heatmap == nil {
			c.Heatmap = &HeatmapConfig{}
		}
		c.Heatmap.Resolution = o.HeatmapResolution
	}
	return c.Validate()
}

// Validate checks that the configured values are usable.
func (c *ReplayConfig) Validate() error {
	if c.IntervalMs != nil && *c.IntervalMs == 0 {
		return fmt.Errorf("interval_ms must be positive")
	}
	for name, sep := range map[string]*string{"column_separator": c.ColumnSeparator, "vector_separator": c.VectorSeparator} {
		if sep != nil && utf8.RuneCountInString(*sep) != 1 {
			return fmt.Errorf("%s must be a single character, got %q", name, *sep)
		}
	}
	if c.MaxEntityID != nil && *c.MaxEntityID <= 0 {
		return fmt.Errorf("max_entity_id must be positive, got %d", *c.MaxEntityID)
	}
	if c.TimeScale != nil && (math.IsNaN(*c.TimeScale) || math.IsInf(*c.TimeScale, 0)) {
		return fmt.Errorf("time_scale must be finite, got %v", *c.TimeScale)
	}
	if c.TickInterval != nil && *c.TickInterval != "" {
		d, err := time.ParseDuration(*c.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_interval must be positive, got %s", d)
		}
	}
	if h := c.Heatmap; h != nil {
		if err := h.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (h *HeatmapConfig) validate() error {
	if h.Resolution != nil && (*h.Resolution < 1 || *h.Resolution > maxHeatmapResolution) {
		return fmt.Errorf("heatmap.resolution must be between 1 and %d, got %d", maxHeatmapResolution, *h.Resolution)
	}
	if h.PointRadius != nil && (*h.PointRadius < 0 || math.IsNaN(*h.PointRadius)) {
		return fmt.Errorf("heatmap.point_radius must be non-negative, got %v", *h.PointRadius)
	}
	if b := h.Bounds; b != nil && (b.MaxX <= b.MinX || b.MaxZ <= b.MinZ) {
		return fmt.Errorf("heatmap.bounds must have max greater than min, got %+v", *b)
	}
	seen := make(map[string]bool, len(h.Passes))
	for i, p := range h.Passes {
		if p.Name == "" {
			return fmt.Errorf("heatmap.passes[%d] has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("heatmap pass %q is defined twice", p.Name)
		}
		seen[p.Name] = true
		if p.Include && len(p.Types) == 0 {
			return fmt.Errorf("heatmap pass %q includes no types", p.Name)
		}
	}
	return nil
}

// GetIntervalMs returns the frame bucket length in milliseconds.
func (c *ReplayConfig) GetIntervalMs() uint32 {
	if c.IntervalMs == nil {
		return 250
	}
	return *c.IntervalMs
}

// GetColumnSeparator returns the text column separator.
func (c *ReplayConfig) GetColumnSeparator() rune {
	return firstRune(c.ColumnSeparator, ';')
}

// GetVectorSeparator returns the separator between anchor components.
func (c *ReplayConfig) GetVectorSeparator() rune {
	return firstRune(c.VectorSeparator, ' ')
}

func firstRune(s *string, def rune) rune {
	if s == nil || *s == "" {
		return def
	}
	r, _ := utf8.DecodeRuneInString(*s)
	return r
}

// GetFirstFrameIsStartTime reports whether the first record anchors the
// frame index.
func (c *ReplayConfig) GetFirstFrameIsStartTime() bool {
	if c.FirstFrameIsStartTime == nil {
		return true
	}
	return *c.FirstFrameIsStartTime
}

// GetStrictTypes reports whether a changed entity type rejects the record.
func (c *ReplayConfig) GetStrictTypes() bool {
	return c.StrictTypes != nil && *c.StrictTypes
}

// GetMaxEntityID returns the largest accepted entity ID, or 0 for the
// loader default.
func (c *ReplayConfig) GetMaxEntityID() int32 {
	if c.MaxEntityID == nil {
		return 0
	}
	return *c.MaxEntityID
}

// GetTimeScale returns the playback rate.
func (c *ReplayConfig) GetTimeScale() float64 {
	if c.TimeScale == nil {
		return 1
	}
	return *c.TimeScale
}

// GetTickInterval returns the playback tick period.
func (c *ReplayConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 20 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil || d <= 0 {
		return 20 * time.Millisecond
	}
	return d
}

// GetLoop reports whether playback wraps at the end of the log.
func (c *ReplayConfig) GetLoop() bool {
	if c.Loop == nil {
		return true
	}
	return *c.Loop
}

// GetSeed returns the asset selection seed.
func (c *ReplayConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 13
	}
	return *c.Seed
}

// GetDefaultAsset returns the fallback asset for unmapped types.
func (c *ReplayConfig) GetDefaultAsset() string {
	if c.DefaultAsset == nil {
		return ""
	}
	return *c.DefaultAsset
}

// GetAddMissing reports whether unmapped types fall back to the default
// asset when the catalog is validated.
func (c *ReplayConfig) GetAddMissing() bool {
	if c.AddMissing == nil {
		return true
	}
	return *c.AddMissing
}

// HeatmapOrDefault returns the heatmap section, never nil.
func (c *ReplayConfig) HeatmapOrDefault() *HeatmapConfig {
	if c.Heatmap == nil {
		return &HeatmapConfig{}
	}
	return c.Heatmap
}

// GetResolution returns the raster edge length in cells.
func (h *HeatmapConfig) GetResolution() int {
	if h.Resolution == nil {
		return 4096
	}
	return *h.Resolution
}

// GetPointRadius returns the splat radius in cells.
func (h *HeatmapConfig) GetPointRadius() float64 {
	if h.PointRadius == nil {
		return 2
	}
	return *h.PointRadius
}

// GetLogarithmic reports whether logarithmic normalization is used.
func (h *HeatmapConfig) GetLogarithmic() bool {
	return h.Logarithmic != nil && *h.Logarithmic
}

// GetOrigin returns the world offset added to every sample.
func (h *HeatmapConfig) GetOrigin() [3]float64 {
	if h.Origin == nil {
		return [3]float64{}
	}
	return *h.Origin
}

// GetPasses returns the configured passes, or the vehicle, cyclist and
// pedestrian defaults.
func (h *HeatmapConfig) GetPasses() []HeatmapPass {
	if len(h.Passes) > 0 {
		return h.Passes
	}
	return []HeatmapPass{
		{Name: "vehicles", Include: false, Types: []string{"Cyclist"}},
		{Name: "cyclists", Include: true, Types: []string{"Cyclist"}},
		{Name: "pedestrians", Include: true, Types: []string{"MalePedestrian", "FemalePedestrian", "Pedestrian"}},
	}
}
