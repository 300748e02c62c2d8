package playback

import (
	"sync"

	"github.com/banshee-data/trajectory.replay/internal/catalog"
	"github.com/banshee-data/trajectory.replay/internal/trajlog"
)

// Consumer receives the engine's lifecycle and pose events. Calls are made
// synchronously from Tick, Reset and Load.
type Consumer interface {
	OnSpawn(id int32, typ trajlog.EntityType, handle catalog.Handle, pose trajlog.Pose)
	OnUpdate(id int32, pose trajlog.Pose, speed float64)
	OnDespawn(id int32)
}

// ConsumerFuncs adapts plain functions to Consumer. Nil fields are ignored.
type ConsumerFuncs struct {
	Spawn   func(id int32, typ trajlog.EntityType, handle catalog.Handle, pose trajlog.Pose)
	Update  func(id int32, pose trajlog.Pose, speed float64)
	Despawn func(id int32)
}

// OnSpawn calls Spawn if it is set.
func (f ConsumerFuncs) OnSpawn(id int32, typ trajlog.EntityType, handle catalog.Handle, pose trajlog.Pose) {
	if f.Spawn != nil {
		f.Spawn(id, typ, handle, pose)
	}
}

// OnUpdate calls Update if it is set.
func (f ConsumerFuncs) OnUpdate(id int32, pose trajlog.Pose, speed float64) {
	if f.Update != nil {
		f.Update(id, pose, speed)
	}
}

// OnDespawn calls Despawn if it is set.
func (f ConsumerFuncs) OnDespawn(id int32) {
	if f.Despawn != nil {
		f.Despawn(id)
	}
}

// Multi fans every event out to each consumer in order.
type Multi []Consumer

// OnSpawn forwards the spawn to every consumer.
func (m Multi) OnSpawn(id int32, typ trajlog.EntityType, handle catalog.Handle, pose trajlog.Pose) {
	for _, c := range m {
		c.OnSpawn(id, typ, handle, pose)
	}
}

// OnUpdate forwards the update to every consumer.
func (m Multi) OnUpdate(id int32, pose trajlog.Pose, speed float64) {
	for _, c := range m {
		c.OnUpdate(id, pose, speed)
	}
}

// OnDespawn forwards the despawn to every consumer.
func (m Multi) OnDespawn(id int32) {
	for _, c := range m {
		c.OnDespawn(id)
	}
}

// EventKind distinguishes recorded events.
type EventKind uint8

// Event kinds.
const (
	Spawn EventKind = iota + 1
	Update
	Despawn
)

// String returns the lower-case event name.
func (k EventKind) String() string {
	switch k {
	case Spawn:
		return "spawn"
	case Update:
		return "update"
	case Despawn:
		return "despawn"
	}
	return "unknown"
}

// Event is one recorded engine event.
type Event struct {
	Kind   EventKind
	ID     int32
	Type   trajlog.EntityType
	Handle catalog.Handle
	Pose   trajlog.Pose
	Speed  float64
}

// EventLog is a Consumer that records every event. It is safe for
// concurrent readers.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *EventLog) add(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// OnSpawn records a Spawn event.
func (l *EventLog) OnSpawn(id int32, typ trajlog.EntityType, handle catalog.Handle, pose trajlog.Pose) {
	l.add(Event{Kind: Spawn, ID: id, Type: typ, Handle: handle, Pose: pose})
}

// OnUpdate records an Update event.
func (l *EventLog) OnUpdate(id int32, pose trajlog.Pose, speed float64) {
	l.add(Event{Kind: Update, ID: id, Pose: pose, Speed: speed})
}

// OnDespawn records a Despawn event.
func (l *EventLog) OnDespawn(id int32) {
	l.add(Event{Kind: Despawn, ID: id})
}

// Events returns a copy of the recorded events.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Drain returns the recorded events and clears the log.
func (l *EventLog) Drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	return out
}

// Count returns how many events of kind were recorded.
func (l *EventLog) Count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
