package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingModel counts its ticks and stops after a fixed number.
type countingModel struct {
	ticks    int
	stopAt   int64
	perWorld func(w *World)
}

func (m *countingModel) Setup(w *World) {
	if m.perWorld != nil {
		m.perWorld(w)
	}
}

func (m *countingModel) BeforeEntitiesUpdate(w *World) { m.ticks++ }

func (m *countingModel) AfterEntitiesUpdate(w *World) {
	if m.stopAt > 0 && w.Ticks >= m.stopAt-1 {
		w.Stop()
	}
}

func TestNewRunner_NilFactory_Fails(t *testing.T) {
	_, err := NewRunner(nil, RunnerOptions{})
	assert.Error(t, err)
}

func TestNewRunner_NoBatches_CreatesSingleWorld(t *testing.T) {
	r, err := NewRunner(func() Model { return &countingModel{} }, RunnerOptions{Title: "solo"})
	require.NoError(t, err)
	assert.Len(t, r.Worlds(), 1)
	assert.Equal(t, "solo", r.Title())
	assert.NotEmpty(t, r.ID())
}

func TestNewRunner_Grid_CreatesOneWorldPerVariation(t *testing.T) {
	// A 3x2 grid makes six worlds, each with its variation applied.
	def := defFromYAML(t, `
title: Gridded
resources:
  - beds:
      slots: 1
constants:
  speedup: 1
batches:
  - grid:
      - beds.slots:
          range: [2, 6]
          step: 2
      - speedup: [1, 10]
`)
	r, err := NewRunner(func() Model { return &countingModel{} }, RunnerOptions{Definition: def})
	require.NoError(t, err)
	require.Len(t, r.Worlds(), 6)
	assert.Equal(t, "6x Gridded", r.Title())

	seen := map[string]bool{}
	for i, w := range r.Worlds() {
		assert.Equal(t, i, w.Index())
		seen[w.Variation()] = true
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, 2, r.Worlds()[0].Resource("beds").Slots())
	assert.Equal(t, 6, r.Worlds()[5].Resource("beds").Slots())
	assert.Equal(t, 10, r.Worlds()[5].Constant("speedup").Int())
}

func TestNewRunner_UnknownVariationSelector_Fails(t *testing.T) {
	def := defFromYAML(t, `
batches:
  - single:
      - nonexistent.slots: 3
`)
	_, err := NewRunner(func() Model { return &countingModel{} }, RunnerOptions{Definition: def})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestRunner_Simulate_RunsAllWorldsToCompletion(t *testing.T) {
	def := defFromYAML(t, `
constants:
  x: 1
batches:
  - grid:
      - x: [1, 2, 3]
`)
	r, err := NewRunner(func() Model { return &countingModel{} }, RunnerOptions{
		Definition: def,
		EndTick:    25,
	})
	require.NoError(t, err)

	require.NoError(t, r.Simulate())
	assert.False(t, r.Active())
	for _, w := range r.Worlds() {
		assert.True(t, w.Ended())
		assert.Equal(t, int64(25), w.Ticks)
	}
}

func TestRunner_Simulate_ModelStopCondition(t *testing.T) {
	r, err := NewRunner(func() Model { return &countingModel{stopAt: 10} }, RunnerOptions{})
	require.NoError(t, err)
	require.NoError(t, r.Simulate())
	assert.Equal(t, int64(10), r.Worlds()[0].Ticks)
}

func TestRunner_Simulate_WorldPanic_PropagatesAsError(t *testing.T) {
	// One world panicking must not corrupt the others.
	def := defFromYAML(t, `
constants:
  x: 1
batches:
  - grid:
      - x: [1, 2]
`)
	factory := func() Model {
		return &countingModel{stopAt: 5, perWorld: func(w *World) {
			NewEntity(w, "Bomb", "", &funcState{
				StateCore: NewStateCore("armed"),
				tick: func(s *funcState) {
					if w.Constant("x").Int() == 2 && w.Ticks == 2 {
						panic("boom")
					}
				},
			})
		}}
	}
	r, err := NewRunner(factory, RunnerOptions{Definition: def})
	require.NoError(t, err)

	err = r.Simulate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, r.Worlds()[0].Ended(), "the healthy world still ran to completion")
	assert.NoError(t, r.Worlds()[0].Err())
	assert.Error(t, r.Worlds()[1].Err())
}

func TestRunner_Finish_CollectsTablesAndAggregates(t *testing.T) {
	def := defFromYAML(t, `
quantities:
  - level:
      quantity_type: units
      start_value: 1
      sample_frequency: 1
constants:
  x: 1
batches:
  - grid:
      - x: [1, 2]
`)
	output := NewFileOutput()
	r, err := NewRunner(func() Model { return &countingModel{stopAt: 4} }, RunnerOptions{
		Definition: def,
		Output:     output,
	})
	require.NoError(t, err)
	require.NoError(t, r.Simulate())

	for _, w := range r.Worlds() {
		table := output.Table(w.Index(), "level")
		require.NotNil(t, table)
		assert.NotEmpty(t, table.Rows)
	}

	agg := output.Aggregated()
	require.NotNil(t, agg)
	assert.Equal(t, summaryColumns, agg.Columns)
	require.Len(t, agg.Rows, 2, "one summary row per world series")
	assert.Equal(t, "x=1", agg.Rows[0][1])
	assert.Equal(t, "x=2", agg.Rows[1][1])
}

func TestRunner_StartTwice_IsNoOp(t *testing.T) {
	r, err := NewRunner(func() Model { return &countingModel{stopAt: 3} }, RunnerOptions{})
	require.NoError(t, err)
	r.Start()
	r.Start()
	require.NoError(t, r.Wait())
}

func TestRunner_Wait_BeforeStart_Fails(t *testing.T) {
	r, err := NewRunner(func() Model { return &countingModel{} }, RunnerOptions{})
	require.NoError(t, err)
	assert.Error(t, r.Wait())
}

func TestRunner_Stop_EndsOpenEndedRun(t *testing.T) {
	r, err := NewRunner(func() Model { return &countingModel{} }, RunnerOptions{})
	require.NoError(t, err)
	r.Start()
	r.Stop()
	assert.NoError(t, r.Wait())
	assert.True(t, r.Worlds()[0].Ended())
}
