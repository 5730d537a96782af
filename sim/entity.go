package sim

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// transitionKind is the explicit union of pending state transitions, evaluated
// once at the top of each tick. Representing "no pending transition" as its own
// case avoids the aliasing subtleties of a "switch to self" sentinel.
type transitionKind int8

const (
	stayPut transitionKind = iota
	switchState
	clearState
)

type pendingTransition struct {
	kind transitionKind
	next State
}

// Entity is an actor in the simulation world: anything that exhibits behavior.
// Behavior is executed exclusively by the entity's current State; setting a new
// state while one is active defers the switch to the next tick boundary.
type Entity struct {
	world *World
	id    string
	kind  string
	index int

	state   State
	pending pendingTransition
	// justChanged suppresses the TicksInState increment on the tick a
	// transition (or the initial binding) took effect, so TicksInState is
	// observably 0 for the whole of that tick.
	justChanged bool

	// TicksInState counts full ticks spent in the current state.
	TicksInState int
	// ChangedTick records the tick the current state was entered, for
	// on-change sampling.
	ChangedTick int64
	// Location is an optional spatial position, unused by the kernel itself.
	Location []float64

	// OnStateEntered runs right after a new state has been entered.
	OnStateEntered func(old, new State)
	// OnStateLeaving runs right before the current state is left and may remap
	// the state to enter by returning a different one. Return next unchanged
	// when no remapping is wanted.
	OnStateLeaving func(old, next State) State

	outputs []*StateSeries
}

// NewEntity creates an entity of the given kind and registers it with the
// world. The kind keys the world's serial-number registry; an empty id is
// replaced by "<kind> <serial>". The initial state, if any, is bound
// immediately (there is no running tick to finish).
func NewEntity(w *World, kind, id string, initial State) *Entity {
	if w == nil {
		panic("NewEntity: world must not be nil")
	}
	if kind == "" {
		kind = "Entity"
	}
	e := &Entity{world: w, kind: kind}
	e.index = w.nextSerial(kind)
	if id == "" {
		id = fmt.Sprintf("%s %03d", kind, e.index)
	}
	e.id = id
	if initial != nil {
		e.changeState(e.bind(initial))
	}
	w.Add(e)
	return e
}

// ID returns the entity's identifier, unique within its world.
func (e *Entity) ID() string { return e.id }

// Kind returns the entity's kind, the key of its serial number.
func (e *Entity) Kind() string { return e.kind }

// Index returns the entity's serial number within its kind.
func (e *Entity) Index() int { return e.index }

// World returns the owning world, or nil after removal.
func (e *Entity) World() *World { return e.world }

// State returns the entity's current behavior state, or nil.
func (e *Entity) State() *StateCore {
	if e.state == nil {
		return nil
	}
	return e.state.Core()
}

// CurrentState returns the current State value, or nil.
func (e *Entity) CurrentState() State { return e.state }

// TimeInState converts TicksInState to simulated time units.
func (e *Entity) TimeInState() float64 {
	if e.world == nil {
		return 0
	}
	return float64(e.TicksInState) / e.world.Tpu
}

// SetState changes the behavior state of the entity.
//
// While a state is active the switch is deferred: it takes effect at the start
// of the following tick, after which OnStateLeaving and OnStateEntered fire in
// that order. With no active state the transition happens immediately, since
// there is nothing to finish this tick. Passing nil clears behavior (the
// entity stays registered until removed).
func (e *Entity) SetState(next State) {
	if next != nil {
		next = e.bind(next)
	}
	if e.state == nil {
		e.changeState(next)
		return
	}
	if next == nil {
		e.pending = pendingTransition{kind: clearState}
		return
	}
	e.pending = pendingTransition{kind: switchState, next: next}
}

// bind claims the state for this entity. A state already owned by a different
// entity is a contract violation.
func (e *Entity) bind(s State) State {
	core := s.Core()
	if core.entity != nil && core.entity != e {
		panic(fmt.Sprintf("Entity %s: state %q already belongs to %s", e.id, core.name, core.entity.id))
	}
	core.entity = e
	return s
}

// tick runs one simulation step: apply any pending transition, execute the
// (possibly new) state's behavior, then account the tick. On a tick where a
// transition took effect TicksInState stays 0 for the whole tick.
func (e *Entity) tick() {
	switch e.pending.kind {
	case switchState:
		e.changeState(e.pending.next)
	case clearState:
		e.changeState(nil)
	}
	e.pending = pendingTransition{}

	if e.state != nil {
		e.state.Tick()
	}

	if e.justChanged {
		e.justChanged = false
	} else {
		e.TicksInState++
	}
}

// changeState performs the transition itself: OnStateLeaving fires first and
// may remap the target, then the new state is bound and OnStateEntered fires.
func (e *Entity) changeState(next State) {
	if next == e.state {
		return
	}

	old := e.state
	if old != nil && e.OnStateLeaving != nil {
		next = e.OnStateLeaving(old, next)
		if next != nil {
			next = e.bind(next)
		}
	}

	logrus.Debugf("%s: %s >> %s", e, stateName(old), stateName(next))

	e.state = next
	e.TicksInState = 0
	e.justChanged = true
	if e.world != nil {
		e.ChangedTick = e.world.Ticks
	}

	if e.OnStateEntered != nil {
		e.OnStateEntered(old, next)
	}
}

// Remove detaches this entity from its world and finalizes any attached state
// samplers. No further ticks occur afterwards.
func (e *Entity) Remove() {
	if e.world != nil {
		e.world.Remove(e)
	}
}

// linkOutput registers a StateSeries watching this entity so removal can stop it.
func (e *Entity) linkOutput(s *StateSeries) {
	e.outputs = append(e.outputs, s)
}

func (e *Entity) String() string {
	if strings.HasPrefix(e.id, e.kind) {
		return e.id
	}
	return fmt.Sprintf("%s %s", e.kind, e.id)
}
