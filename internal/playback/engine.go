// Package playback replays a trajectory log against a caller-driven clock,
// turning keyframes into spawn, update and despawn events with interpolated
// poses.
//
// The engine keeps the live entities in two maps. One is authoritative; when
// a tick crosses into a new pair of frame buckets the roles flip, entities
// found again in the new low bucket move across, and whatever is left behind
// is despawned. Between boundaries a tick only blends the cached keyframe
// pairs.
package playback

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/banshee-data/trajectory.replay/internal/catalog"
	"github.com/banshee-data/trajectory.replay/internal/monitoring"
	"github.com/banshee-data/trajectory.replay/internal/spatial"
	"github.com/banshee-data/trajectory.replay/internal/trajlog"
	"gonum.org/v1/gonum/spatial/r3"
)

// noFrame marks the frame pair before the first tick.
const noFrame = -1

// ActiveEntity is the engine's state for one live entity. From and To are
// keyframe indices into the log; To equals From until a later keyframe for
// the entity is found.
type ActiveEntity struct {
	ID     int32
	Type   trajlog.EntityType
	Handle catalog.Handle
	From   int
	To     int
	Speed  float64 // metres per second between From and To

	matched uint64 // generation of the last high-bucket match
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records event counts and tick timings.
func WithMetrics(m *monitoring.PlaybackMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithErrorHandler receives each entity type configuration error the first
// time it occurs.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Engine) { e.onError = fn }
}

// WithReporter replaces the once-per-type diagnostic reporter.
func WithReporter(r *monitoring.OnceReporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// Engine drives playback of one log. It is not safe for concurrent use.
type Engine struct {
	log      *trajlog.Log
	catalog  catalog.Catalog
	consumer Consumer

	metrics  *monitoring.PlaybackMetrics
	onError  func(error)
	reporter *monitoring.OnceReporter

	low, high int
	buffers   [2]map[int32]*ActiveEntity
	current   int
	gen       uint64
}

// NewEngine returns an engine positioned before the first frame. A nil
// consumer discards events.
func NewEngine(log *trajlog.Log, cat catalog.Catalog, consumer Consumer, opts ...Option) (*Engine, error) {
	if log == nil {
		return nil, errors.New("playback: nil log")
	}
	if cat == nil {
		return nil, errors.New("playback: nil catalog")
	}
	if consumer == nil {
		consumer = ConsumerFuncs{}
	}
	e := &Engine{
		log:      log,
		catalog:  cat,
		consumer: consumer,
		low:      noFrame,
		high:     noFrame,
		buffers:  [2]map[int32]*ActiveEntity{make(map[int32]*ActiveEntity), make(map[int32]*ActiveEntity)},
	}
	for _, o := range opts {
		o(e)
	}
	if e.reporter == nil {
		e.reporter = monitoring.NewOnceReporter(nil)
	}
	return e, nil
}

// Log returns the log being played.
func (e *Engine) Log() *trajlog.Log { return e.log }

func (e *Engine) active() map[int32]*ActiveEntity   { return e.buffers[e.current] }
func (e *Engine) previous() map[int32]*ActiveEntity { return e.buffers[e.current^1] }

// Frames returns the bucket pair of the last tick, or (-1, -1) before the
// first tick.
func (e *Engine) Frames() (low, high int) { return e.low, e.high }

// ActiveCount returns the number of live entities.
func (e *Engine) ActiveCount() int { return len(e.active()) }

// Active returns a copy of the state of a live entity.
func (e *Engine) Active(id int32) (ActiveEntity, bool) {
	a, ok := e.active()[id]
	if !ok {
		return ActiveEntity{}, false
	}
	return *a, true
}

// ActiveIDs returns the live entity IDs in ascending order.
func (e *Engine) ActiveIDs() []int32 {
	ids := make([]int32, 0, len(e.active()))
	for id := range e.active() {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// PositionAt returns the raw recorded position of id in the bucket holding
// t, without touching engine state.
func (e *Engine) PositionAt(id int32, t float64) (r3.Vec, bool, error) {
	return e.log.PositionAt(id, t)
}

// Tick advances playback to log time t in milliseconds. Use Log.Wrap to map
// a free-running clock onto the log. A time outside the log returns an error
// wrapping trajlog.ErrOutOfRange and leaves the engine unchanged.
func (e *Engine) Tick(t float64) error {
	start := time.Now()
	defer e.metrics.ObserveTick(start)

	frame := e.log.FrameAt(t)
	last := e.log.Frames() - 1
	if math.IsNaN(frame) || frame < 0 || frame > float64(last) {
		return fmt.Errorf("%w: time %v ms is frame %v, outside [0, %d]", trajlog.ErrOutOfRange, t, frame, last)
	}
	low := int(math.Floor(frame))
	high := int(math.Ceil(frame))
	lerp := frame - float64(low)

	if low == e.low && high == e.high {
		e.blend(low, lerp)
		return nil
	}
	e.cross(low, high, lerp)
	return nil
}

// blend emits an update for every live entity of bucket low.
func (e *Engine) blend(low int, lerp float64) {
	lo, hi, _ := e.log.BucketRange(low)
	active := e.active()
	for i := lo; i < hi; i++ {
		a, ok := active[e.log.Keyframe(i).EntityID]
		if !ok || a.From != i {
			continue
		}
		e.update(a, lerp)
	}
}

func (e *Engine) update(a *ActiveEntity, lerp float64) {
	from := e.log.Keyframe(a.From).Pose()
	pose := from
	if a.To != a.From {
		pose = trajlog.Blend(from, e.log.Keyframe(a.To).Pose(), lerp)
	}
	e.consumer.OnUpdate(a.ID, pose, a.Speed)
	if e.metrics != nil {
		e.metrics.Updates.Inc()
	}
}

// cross handles a tick that lands on a new bucket pair.
func (e *Engine) cross(low, high int, lerp float64) {
	e.current ^= 1
	active, previous := e.active(), e.previous()
	clear(active)

	lo, hi, _ := e.log.BucketRange(low)
	for i := lo; i < hi; i++ {
		k := e.log.Keyframe(i)
		if _, dup := active[k.EntityID]; dup {
			continue
		}
		if a, ok := previous[k.EntityID]; ok {
			delete(previous, k.EntityID)
			a.From, a.To = i, i
			active[k.EntityID] = a
			continue
		}
		e.spawn(k, i)
	}

	e.despawnAll(previous)

	e.gen++
	// On an integer frame high == low, so every entity pairs with its own
	// keyframe and reports zero speed.
	seconds := float64(e.log.Interval()) / 1000
	lo, hi, _ = e.log.BucketRange(high)
	for i := lo; i < hi; i++ {
		k := e.log.Keyframe(i)
		a, ok := active[k.EntityID]
		if !ok || a.matched == e.gen {
			continue
		}
		a.matched = e.gen
		a.To = i
		a.Speed = spatial.Distance(e.log.Keyframe(a.From).Pos(), k.Pos()) / seconds
	}

	e.blend(low, lerp)
	e.low, e.high = low, high

	if e.metrics != nil {
		e.metrics.Boundaries.Inc()
		e.metrics.Active.Set(float64(len(active)))
	}
}

func (e *Engine) spawn(k trajlog.Keyframe, index int) {
	typ := e.log.TypeOf(k.EntityID)
	handle, err := e.catalog.Instantiate(typ)
	if err != nil {
		e.configError(typ, err)
		return
	}
	e.active()[k.EntityID] = &ActiveEntity{
		ID:     k.EntityID,
		Type:   typ,
		Handle: handle,
		From:   index,
		To:     index,
	}
	e.consumer.OnSpawn(k.EntityID, typ, handle, k.Pose())
	if e.metrics != nil {
		e.metrics.Spawns.Inc()
	}
}

func (e *Engine) configError(typ trajlog.EntityType, err error) {
	code := strconv.Itoa(int(typ))
	if e.metrics != nil {
		e.metrics.ConfigErrors.WithLabelValues(code).Inc()
	}
	if e.reporter.Report("type:"+code, "[playback] skipping entities of type %s: %v", catalog.TypeName(typ), err) && e.onError != nil {
		e.onError(err)
	}
}

// despawnAll emits a despawn for every entity in m in ascending ID order and
// empties it.
func (e *Engine) despawnAll(m map[int32]*ActiveEntity) {
	if len(m) == 0 {
		return
	}
	ids := make([]int32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		e.consumer.OnDespawn(id)
	}
	if e.metrics != nil {
		e.metrics.Despawns.Add(float64(len(ids)))
	}
	clear(m)
}

// Reset despawns every live entity and returns the engine to its state
// before the first tick.
func (e *Engine) Reset() {
	e.despawnAll(e.active())
	clear(e.previous())
	e.low, e.high = noFrame, noFrame
	if e.metrics != nil {
		e.metrics.Active.Set(0)
	}
}

// Load resets the engine and replaces its log.
func (e *Engine) Load(log *trajlog.Log) error {
	if log == nil {
		return errors.New("playback: nil log")
	}
	e.Reset()
	e.log = log
	return nil
}
