package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// hookModel is a minimal Model for kernel tests, with pluggable hooks.
type hookModel struct {
	setup  func(w *World)
	before func(w *World)
	after  func(w *World)
}

func (m *hookModel) Setup(w *World) {
	if m.setup != nil {
		m.setup(w)
	}
}

func (m *hookModel) BeforeEntitiesUpdate(w *World) {
	if m.before != nil {
		m.before(w)
	}
}

func (m *hookModel) AfterEntitiesUpdate(w *World) {
	if m.after != nil {
		m.after(w)
	}
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	return NewWorld(&hookModel{}, WorldConfig{Title: "test", Seed: 42})
}

// runTicks drives the world synchronously for a fixed number of ticks.
func runTicks(t *testing.T, w *World, ticks int) {
	t.Helper()
	for i := 0; i < ticks && !w.stopped.Load(); i++ {
		w.tick()
	}
}

func TestNewWorld_Defaults(t *testing.T) {
	w := newTestWorld(t)
	assert.Equal(t, "test", w.Title())
	assert.Equal(t, 10.0, w.Tpu)
	assert.Equal(t, "seconds", w.TimeUnit)
	assert.Equal(t, 0.1, w.TickTime)
}

func TestNewWorld_NilModel_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "NewWorld: model must not be nil", func() {
		NewWorld(nil, WorldConfig{})
	})
}

func TestWorld_Add_SamePointerTwice_IsNoOp(t *testing.T) {
	w := newTestWorld(t)
	q := NewQueue(w, "line", 0)
	assert.NotPanics(t, func() { w.Add(q) })
	assert.Same(t, q, w.Queue("line"))
}

func TestWorld_Add_DuplicateID_Panics(t *testing.T) {
	// Ids are unique across categories, not per category.
	w := newTestWorld(t)
	NewQueue(w, "shared", 0)
	assert.Panics(t, func() {
		NewResource(w, "shared", ResourceConfig{Slots: 1})
	})
}

func TestWorld_Lookup_Miss_Panics(t *testing.T) {
	w := newTestWorld(t)
	assert.Panics(t, func() { w.Resource("nope") })
	assert.Panics(t, func() { w.Queue("nope") })
	assert.Panics(t, func() { w.Quantity("nope") })
	assert.Panics(t, func() { w.Entity("nope") })
	assert.Panics(t, func() { w.Constant("nope") })
}

func TestWorld_Constant_JoinedKeys(t *testing.T) {
	// Nested definition constants flatten to ":"-joined ids.
	w := newTestWorld(t)
	NewConstant(w, "limits:max_patients", 20)
	assert.Equal(t, 20, w.Constant("limits", "max_patients").Int())
}

func TestWorld_Remove_UnknownObject_ReturnsFalse(t *testing.T) {
	w := newTestWorld(t)
	other := newTestWorld(t)
	q := NewQueue(other, "line", 0)
	assert.False(t, w.Remove(q))
}

func TestWorld_TickAdvancesClock(t *testing.T) {
	w := newTestWorld(t)
	runTicks(t, w, 10)
	assert.Equal(t, int64(10), w.Ticks)
	assert.InDelta(t, 1.0, w.Time, 1e-12)
}

func TestWorld_HookOrder_BeforeEntitiesAfter(t *testing.T) {
	// GIVEN a world with one entity
	// WHEN one tick runs
	// THEN the order is before-hook, entity, after-hook.
	var order []string
	model := &hookModel{
		before: func(w *World) { order = append(order, "before") },
		after:  func(w *World) { order = append(order, "after") },
	}
	w := NewWorld(model, WorldConfig{Seed: 1})
	NewEntity(w, "Probe", "", &recordingState{StateCore: NewStateCore("on"), log: &order})

	runTicks(t, w, 1)
	assert.Equal(t, []string{"before", "entity", "after"}, order)
}

func TestWorld_EndTick_StopsRun(t *testing.T) {
	w := newTestWorld(t)
	w.start(SimOptions{EndTick: 5})
	err := w.run()
	assert.NoError(t, err)
	assert.True(t, w.Ended())
	assert.Equal(t, int64(5), w.Ticks)
}

func TestWorld_Stop_IsCooperative(t *testing.T) {
	// Stop requested by the after-hook ends the run at that tick boundary.
	var w *World
	model := &hookModel{
		after: func(w *World) {
			if w.Ticks == 2 {
				w.Stop()
			}
		},
	}
	w = NewWorld(model, WorldConfig{Seed: 1})
	w.start(SimOptions{})
	err := w.run()
	assert.NoError(t, err)
	assert.Equal(t, int64(3), w.Ticks)
}

func TestWorld_Run_PanicBecomesError(t *testing.T) {
	model := &hookModel{
		before: func(w *World) { w.Quantity("missing").Add(1) },
	}
	w := NewWorld(model, WorldConfig{Seed: 1})
	w.start(SimOptions{EndTick: 1})
	err := w.run()
	assert.Error(t, err)
	assert.True(t, w.Ended())
}

func TestWorld_EntityAddedDuringTick_FirstRunsNextTick(t *testing.T) {
	var ticked []string
	spawn := true
	model := &hookModel{}
	w := NewWorld(model, WorldConfig{Seed: 1})

	NewEntity(w, "Spawner", "spawner", &funcState{
		StateCore: NewStateCore("spawning"),
		tick: func(s *funcState) {
			ticked = append(ticked, "spawner")
			if spawn {
				spawn = false
				NewEntity(w, "Child", "child", &funcState{
					StateCore: NewStateCore("idle"),
					tick:      func(s *funcState) { ticked = append(ticked, "child") },
				})
			}
		},
	})

	runTicks(t, w, 1)
	assert.Equal(t, []string{"spawner"}, ticked)
	runTicks(t, w, 1)
	assert.Equal(t, []string{"spawner", "spawner", "child"}, ticked)
}

// recordingState appends "entity" to a shared log on every tick.
type recordingState struct {
	StateCore
	log *[]string
}

func (s *recordingState) Tick() { *s.log = append(*s.log, "entity") }

// funcState runs an arbitrary closure as its behavior.
type funcState struct {
	StateCore
	tick func(s *funcState)
}

func (s *funcState) Tick() {
	if s.tick != nil {
		s.tick(s)
	}
}
