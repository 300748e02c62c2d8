// Package catalog maps recorded entity types to spawnable asset handles.
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"

	"github.com/banshee-data/trajectory.replay/internal/monitoring"
	"github.com/banshee-data/trajectory.replay/internal/trajlog"
)

// ErrConfiguration is matched by every *ConfigurationError.
var ErrConfiguration = errors.New("entity type not configured")

// ConfigurationError reports a type with no asset and no fallback.
type ConfigurationError struct {
	Type trajlog.EntityType
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no asset configured for entity type %s", TypeName(e.Type))
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Handle is an opaque spawnable descriptor handed to event consumers.
type Handle struct {
	Type  trajlog.EntityType
	Asset string
}

// Catalog supplies spawn handles for entity types.
type Catalog interface {
	// Instantiate returns a handle for one new entity of type t, or a
	// *ConfigurationError if t has no asset.
	Instantiate(t trajlog.EntityType) (Handle, error)

	// ValidateTypes checks that every present type can be instantiated and
	// returns the ones that cannot. With addIfMissing, missing types are
	// mapped to the default asset when there is one.
	ValidateTypes(present []trajlog.EntityType, addIfMissing bool) []trajlog.EntityType
}

// Assets is the catalog's reference implementation: a fixed list of asset
// names per type, with one picked at random for every instantiation.
type Assets struct {
	mu           sync.Mutex
	assets       map[trajlog.EntityType][]string
	defaultAsset string
	rng          *rand.Rand
}

// New returns a catalog over assets. defaultAsset may be empty. The same seed
// yields the same sequence of choices.
func New(assets map[trajlog.EntityType][]string, defaultAsset string, seed uint64) *Assets {
	m := make(map[trajlog.EntityType][]string, len(assets))
	for t, names := range assets {
		if len(names) > 0 {
			m[t] = slices.Clone(names)
		}
	}
	return &Assets{
		assets:       m,
		defaultAsset: defaultAsset,
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// FromNames builds a catalog from type names or codes, as found in
// configuration files.
func FromNames(assets map[string][]string, defaultAsset string, seed uint64) (*Assets, error) {
	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	sort.Strings(names)

	m := make(map[trajlog.EntityType][]string, len(assets))
	for _, name := range names {
		list := assets[name]
		t, err := ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse asset map: %w", err)
		}
		m[t] = append(m[t], list...)
	}
	return New(m, defaultAsset, seed), nil
}

// Instantiate implements Catalog.
func (a *Assets) Instantiate(t trajlog.EntityType) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	names, ok := a.assets[t]
	if !ok || t == None {
		return Handle{}, &ConfigurationError{Type: t}
	}
	return Handle{Type: t, Asset: names[a.rng.IntN(len(names))]}, nil
}

// ValidateTypes implements Catalog. None is never reported missing.
func (a *Assets) ValidateTypes(present []trajlog.EntityType, addIfMissing bool) []trajlog.EntityType {
	a.mu.Lock()
	defer a.mu.Unlock()

	var missing []trajlog.EntityType
	for _, t := range present {
		if t == None {
			continue
		}
		if _, ok := a.assets[t]; ok {
			continue
		}
		if addIfMissing && a.defaultAsset != "" {
			monitoring.Logf("[catalog] type %s has no asset, using default %q", TypeName(t), a.defaultAsset)
			a.assets[t] = []string{a.defaultAsset}
			continue
		}
		monitoring.Logf("[catalog] type %s has no asset", TypeName(t))
		if !slices.Contains(missing, t) {
			missing = append(missing, t)
		}
	}
	return missing
}

// Types returns the configured types in ascending order.
func (a *Assets) Types() []trajlog.EntityType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]trajlog.EntityType, 0, len(a.assets))
	for t := range a.assets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
