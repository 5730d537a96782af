package sim

import (
	"strconv"
)

// Table is the tabular form of a sampled series, ready for the Output
// collaborator. Cells are pre-formatted strings so CSV and gob export treat
// numeric and categorical series uniformly.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// DataSource is the append-only sampling contract between the kernel and the
// dataset collaborator. Tick is called once per world tick, after entity and
// quantity updates; Stop flushes and finalizes the source when its watched
// object is removed or the world ends.
type DataSource interface {
	// Name labels the series in exported tables.
	Name() string
	// Tick optionally appends one sample for the current tick.
	Tick()
	// Stop takes a final sample and stops the source.
	Stop()
	// Table returns the recorded samples.
	Table() *Table
	// Owner returns the watched kernel object, or nil for free-standing data.
	Owner() any
}

// Dataset groups data sources under one id for per-world export.
type Dataset struct {
	world   *World
	id      string
	sources []DataSource
}

// ID returns the dataset identifier.
func (d *Dataset) ID() string { return d.id }

// Sources returns the dataset's sources in registration order.
func (d *Dataset) Sources() []DataSource { return d.sources }

// AddSource appends a source to the dataset, returning its index. Adding a
// source twice returns the existing index.
func (d *Dataset) AddSource(src DataSource) int {
	for i, s := range d.sources {
		if s == src {
			return i
		}
	}
	d.sources = append(d.sources, src)
	return len(d.sources) - 1
}

func (d *Dataset) tick() {
	for _, src := range d.sources {
		src.Tick()
	}
}

func (d *Dataset) stop() {
	for _, src := range d.sources {
		src.Stop()
	}
}

// FormatFloat renders a sample value the way exported tables expect it.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// === XYSeries ===

// XYSeries is a free-standing append-only series of (x, y) float samples.
// It records nothing by itself; owners append to it (Quantity outputs) or
// sampling wrappers embed it.
type XYSeries struct {
	world   *World
	name    string
	legendX string
	legendY string
	xs      []float64
	ys      []float64
	stopped bool
}

// NewXYSeries creates an empty series. The legends become column names of the
// exported table.
func NewXYSeries(w *World, name, legendX, legendY string) *XYSeries {
	return &XYSeries{world: w, name: name, legendX: legendX, legendY: legendY}
}

// Name returns the series label.
func (s *XYSeries) Name() string { return s.name }

// Len returns the number of recorded samples.
func (s *XYSeries) Len() int { return len(s.xs) }

// XY returns the i-th sample.
func (s *XYSeries) XY(i int) (x, y float64) { return s.xs[i], s.ys[i] }

// Ys returns the recorded y values. The returned slice is the series' internal
// storage; callers must not modify it.
func (s *XYSeries) Ys() []float64 { return s.ys }

// Append adds one sample to the series.
func (s *XYSeries) Append(x, y float64) {
	if s.stopped {
		return
	}
	s.xs = append(s.xs, x)
	s.ys = append(s.ys, y)
}

// Tick does nothing; XYSeries is fed by its owner.
func (s *XYSeries) Tick() {}

// Stop freezes the series.
func (s *XYSeries) Stop() { s.stopped = true }

// Owner returns nil; the series stands free of any kernel object.
func (s *XYSeries) Owner() any { return nil }

// Table returns the samples as a two-column table.
func (s *XYSeries) Table() *Table {
	rows := make([][]string, len(s.xs))
	for i := range s.xs {
		rows[i] = []string{FormatFloat(s.xs[i]), FormatFloat(s.ys[i])}
	}
	return &Table{Name: s.name, Columns: []string{s.legendX, s.legendY}, Rows: rows}
}

// sampleDue implements the shared frequency contract: sample every N ticks, or
// only on change (frequency 0) as signalled by the owner's change tick.
func sampleDue(w *World, frequency int, changedTick int64) bool {
	if frequency == 0 {
		return changedTick == w.Ticks
	}
	return w.Ticks%int64(frequency) == 0
}

// === ResourceSeries ===

// ResourceSeries samples a Resource every tick: its pool amount, or its user
// count when sampleUsers is set.
type ResourceSeries struct {
	XYSeries
	source      *Resource
	sampleUsers bool
	frequency   int
}

// NewResourceSeries creates a series watching the resource with the given id,
// which must already be registered. frequency 0 samples only on change.
func NewResourceSeries(w *World, sourceID string, sampleUsers bool, frequency int) *ResourceSeries {
	r := w.Resource(sourceID)
	legendY := "amount"
	if sampleUsers {
		legendY = "users"
	}
	return &ResourceSeries{
		XYSeries:    *NewXYSeries(w, sourceID, w.TimeUnit, legendY),
		source:      r,
		sampleUsers: sampleUsers,
		frequency:   frequency,
	}
}

// Tick appends a sample when due.
func (s *ResourceSeries) Tick() {
	if s.stopped {
		return
	}
	if !sampleDue(s.world, s.frequency, s.source.ChangedTick) {
		return
	}
	y := 0.0
	if s.sampleUsers {
		y = float64(len(s.source.Users()))
	} else if amount, ok := s.source.Amount(); ok {
		y = amount
	}
	s.Append(s.world.Time, y)
}

// Stop takes a final sample and freezes the series.
func (s *ResourceSeries) Stop() {
	s.Tick()
	s.stopped = true
}

// Owner returns the watched resource.
func (s *ResourceSeries) Owner() any { return s.source }

// === QueueSeries ===

// QueueSeries samples the length of a Queue.
type QueueSeries struct {
	XYSeries
	source    *Queue
	frequency int
}

// NewQueueSeries creates a series watching the queue with the given id, which
// must already be registered. frequency 0 samples only on change.
func NewQueueSeries(w *World, sourceID string, frequency int) *QueueSeries {
	q := w.Queue(sourceID)
	return &QueueSeries{
		XYSeries:  *NewXYSeries(w, sourceID, w.TimeUnit, "length"),
		source:    q,
		frequency: frequency,
	}
}

// Tick appends a sample when due.
func (s *QueueSeries) Tick() {
	if s.stopped {
		return
	}
	if !sampleDue(s.world, s.frequency, s.source.ChangedTick) {
		return
	}
	s.Append(s.world.Time, float64(s.source.Len()))
}

// Stop takes a final sample and freezes the series.
func (s *QueueSeries) Stop() {
	s.Tick()
	s.stopped = true
}

// Owner returns the watched queue.
func (s *QueueSeries) Owner() any { return s.source }

// === StateSeries ===

// StateSeries samples the state name of an Entity: a categorical series whose
// y values are state names rather than numbers.
type StateSeries struct {
	world     *World
	source    *Entity
	frequency int
	xs        []float64
	names     []string
	stopped   bool
}

// NewStateSeries creates a series watching an entity's state. frequency 0
// samples only on state changes (including the initial state).
func NewStateSeries(w *World, source *Entity, frequency int) *StateSeries {
	s := &StateSeries{world: w, source: source, frequency: frequency}
	source.linkOutput(s)
	return s
}

// Name returns the watched entity's identifier.
func (s *StateSeries) Name() string { return s.source.ID() }

// Len returns the number of recorded samples.
func (s *StateSeries) Len() int { return len(s.xs) }

// At returns the i-th sample.
func (s *StateSeries) At(i int) (x float64, state string) { return s.xs[i], s.names[i] }

// Tick appends a sample when due. With frequency 0 a sample is taken only on
// the tick a transition took effect, as stamped in the entity's ChangedTick.
func (s *StateSeries) Tick() {
	if s.stopped {
		return
	}
	if !sampleDue(s.world, s.frequency, s.source.ChangedTick) {
		return
	}
	s.xs = append(s.xs, s.world.Time)
	s.names = append(s.names, stateName(s.source.CurrentState()))
}

// Stop takes a final sample and freezes the series.
func (s *StateSeries) Stop() {
	if s.stopped {
		return
	}
	s.xs = append(s.xs, s.world.Time)
	s.names = append(s.names, stateName(s.source.CurrentState()))
	s.stopped = true
}

// Owner returns the watched entity.
func (s *StateSeries) Owner() any { return s.source }

// Table returns the samples as a two-column table.
func (s *StateSeries) Table() *Table {
	rows := make([][]string, len(s.xs))
	for i := range s.xs {
		rows[i] = []string{FormatFloat(s.xs[i]), s.names[i]}
	}
	return &Table{Name: s.source.ID(), Columns: []string{s.world.TimeUnit, "state"}, Rows: rows}
}
