package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullDefinitionYAML = `
title: Test Clinic
tpu: 4
time_unit: hours

constants:
  end_enter_time: 100
  staffing:
    doctors: 3
    nurses: 7

resources:
  - beds:
      slots: 10
      usage_time: 20
      max_queue: 5
  - oxygen:
      start_amount: 500.0
      capacity: 800.0

queues:
  - triage:
      capacity: 15

quantities:
  - treated:
      quantity_type: patients
      start_value: 0
      sample_frequency: 0
  - temperature:
      quantity_type: celsius
      min: -10.0
      max: 45.0

batches:
  - grid:
      - beds.slots:
          range: [4, 8]
          step: 2
      - treated.value: [0, 100]
`

func TestParseDefinition_FullDocument(t *testing.T) {
	def := defFromYAML(t, fullDefinitionYAML)

	assert.Equal(t, "Test Clinic", def.Title)
	assert.Equal(t, 4.0, def.Tpu)
	assert.Equal(t, "hours", def.TimeUnit)

	require.Len(t, def.Resources, 2)
	assert.Equal(t, "beds", def.Resources[0].ID)
	assert.Equal(t, 10, def.Resources[0].Def.Slots)
	assert.Equal(t, 20, def.Resources[0].Def.UsageTime)
	assert.Equal(t, 5, def.Resources[0].Def.MaxQueue)
	require.NotNil(t, def.Resources[1].Def.StartAmount)
	assert.Equal(t, 500.0, *def.Resources[1].Def.StartAmount)

	require.Len(t, def.Queues, 1)
	assert.Equal(t, 15, def.Queues[0].Def.Capacity)

	require.Len(t, def.Quantities, 2)
	assert.Equal(t, "patients", def.Quantities[0].Def.Type)
	assert.Equal(t, 0, def.Quantities[0].Def.SampleFrequencyOrDefault())
	assert.Equal(t, 1, def.Quantities[1].Def.SampleFrequencyOrDefault())
	assert.True(t, def.Quantities[1].Def.GatherOrDefault())
}

func TestDefinition_FlatConstants_FlattensNestedMaps(t *testing.T) {
	def := defFromYAML(t, fullDefinitionYAML)
	flat := def.FlatConstants()
	assert.Equal(t, 100, flat["end_enter_time"])
	assert.Equal(t, 3, flat["staffing:doctors"])
	assert.Equal(t, 7, flat["staffing:nurses"])
}

func TestNewWorld_FromDefinition_InstantiatesObjects(t *testing.T) {
	def := defFromYAML(t, fullDefinitionYAML)
	w := NewWorld(&hookModel{}, WorldConfig{Definition: def, Seed: 42})

	assert.Equal(t, "Test Clinic", w.Title())
	assert.Equal(t, 4.0, w.Tpu)
	assert.Equal(t, "hours", w.TimeUnit)

	assert.Equal(t, 10, w.Resource("beds").Slots())
	assert.NotNil(t, w.Resource("beds").Queue())
	amount, ok := w.Resource("oxygen").Amount()
	assert.True(t, ok)
	assert.Equal(t, 500.0, amount)

	assert.Equal(t, 15, w.Queue("triage").Capacity())
	v, ok := w.Quantity("treated").Value()
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
	assert.Equal(t, 3, w.Constant("staffing", "doctors").Int())
}

func TestDefinition_QueueDeclaration_BacksRuntimeQueue(t *testing.T) {
	// The declaration entry and the runtime FIFO entry are distinct types;
	// a declared queue carries its capacity into the instantiated world.
	def := defFromYAML(t, fullDefinitionYAML)
	var decl QueueDefEntry = def.Queues[0]
	assert.Equal(t, "triage", decl.ID)

	w := NewWorld(&hookModel{}, WorldConfig{Definition: def, Seed: 1})
	q := w.Queue("triage")
	q.Enqueue(NewEntity(w, "Patient", "", nil), Amt(2))

	var entry QueueEntry
	entry, ok := q.PeekWithAmount()
	require.True(t, ok)
	assert.Equal(t, 2.0, *entry.Amount)
}

func TestParseDefinition_MultiKeyEntry_Fails(t *testing.T) {
	_, err := ParseDefinition([]byte(`
queues:
  - a:
      capacity: 1
    b:
      capacity: 2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single-key mapping")
}

func TestParseDefinition_BadGridRange_Fails(t *testing.T) {
	_, err := ParseDefinition([]byte(`
batches:
  - grid:
      - beds.slots:
          range: [10]
          step: 2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "range")
}

func TestParseDefinition_UnknownBatchType_Fails(t *testing.T) {
	_, err := ParseDefinition([]byte(`
batches:
  - random:
      - beds.slots: [1, 2]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown batch type")
}

func TestLoadDefinition_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "def.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullDefinitionYAML), 0o644))

	def, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "Test Clinic", def.Title)
}

func TestLoadDefinition_MissingFile_Fails(t *testing.T) {
	_, err := LoadDefinition(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// === Batch expansion ===

func TestBatchExpansion_Grid_IsCartesianProduct(t *testing.T) {
	def := defFromYAML(t, fullDefinitionYAML)
	variations, err := expandBatches(def)
	require.NoError(t, err)

	// slots in {4, 6, 8} x value in {0, 100}.
	require.Len(t, variations, 6)
	seen := map[string]bool{}
	for _, v := range variations {
		seen[v.String()] = true
	}
	assert.Len(t, seen, 6, "every grid point is a distinct variation")
	assert.True(t, seen["beds.slots=4, treated.value=0"])
	assert.True(t, seen["beds.slots=8, treated.value=100"])
}

func TestBatchExpansion_RangeIsInclusive(t *testing.T) {
	def := defFromYAML(t, `
batches:
  - grid:
      - x:
          range: [5, 15]
          step: 5
`)
	variations, err := expandBatches(def)
	require.NoError(t, err)
	require.Len(t, variations, 3)
	assert.Equal(t, 5, variations[0].Value("x"))
	assert.Equal(t, 15, variations[2].Value("x"))
}

func TestBatchExpansion_Single_ListsAssignments(t *testing.T) {
	def := defFromYAML(t, `
batches:
  - single:
      - beds.slots: 2
        end_tick: 100
      - beds.slots: 20
`)
	variations, err := expandBatches(def)
	require.NoError(t, err)
	require.Len(t, variations, 2)
	assert.Equal(t, "beds.slots=2, end_tick=100", variations[0].String())
	assert.Equal(t, 20, variations[1].Value("beds.slots"))
}

func TestBatchExpansion_ReversedRange_Fails(t *testing.T) {
	_, err := ParseDefinition([]byte(`
batches:
  - grid:
      - x:
          range: [10, 5]
          step: 1
`))
	assert.Error(t, err)
}
