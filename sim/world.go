package sim

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Model is the domain logic of a simulation world. Setup registers the
// domain's entities, resources, queues and quantities; the two update hooks
// run at fixed points of every tick.
type Model interface {
	// Setup runs once at world construction, after definition objects exist.
	Setup(w *World)
	// BeforeEntitiesUpdate runs at the start of each tick, before any entity
	// is updated. The usual place to inject arriving entities and to pull
	// waiting entities from queues into resources.
	BeforeEntitiesUpdate(w *World)
	// AfterEntitiesUpdate runs at the end of each tick, after all entities
	// have been updated. The usual place to check termination conditions and
	// call Stop.
	AfterEntitiesUpdate(w *World)
}

// Aggregator is an optional extension of Model: worlds whose model implements
// it contribute extra domain tables to the end-of-run output.
type Aggregator interface {
	AggregateData(w *World) []*Table
}

// WorldConfig carries the constructor parameters of a World.
type WorldConfig struct {
	// Definition, when non-nil, declares constants, resources, queues,
	// quantities and generators to instantiate before Setup runs.
	Definition *Definition
	// Title is the descriptive name of the simulation (overridden by the
	// definition's title when set). Defaults to "Unnamed Simulation".
	Title string
	// Tpu is the tick rate in ticks per time unit. Defaults to 10.
	Tpu float64
	// TimeUnit names the simulated time unit. Defaults to "seconds".
	TimeUnit string
	// Seed is the deterministic random seed for this world's RNG partition.
	Seed int64
	// Index identifies this world within a batch run.
	Index int
	// Variation describes the batch parameter assignment ("a=1, b=2").
	Variation string
	// VariationSet holds the raw parameter assignment for aggregation tags.
	VariationSet map[string]Value
	// Headless suppresses any output collaborator interactivity. Simulation
	// results never depend on it.
	Headless bool
}

// World owns every simulation object for one run and drives the tick loop.
// Object identifiers are unique within a world across all owned categories.
//
// Each world ticks on its own goroutine; entities within one world tick
// strictly sequentially in registration order. Worlds share no mutable state
// with each other.
type World struct {
	TimeBase

	model    Model
	index    int
	title    string
	headless bool
	realtime bool

	variation    string
	variationSet map[string]Value

	// ids maps every owned object id to its object, across categories.
	ids        map[string]any
	constants  map[string]*Constant
	resources  map[string]*Resource
	queues     map[string]*Queue
	quantities map[string]*Quantity
	generators map[string]*Generator
	datasets   map[string]*Dataset

	// insertion orders, for deterministic iteration.
	quantityOrder []string
	datasetOrder  []string

	entities   []*Entity
	entityByID map[string]*Entity
	serials    map[string]int

	rng *PartitionedRNG

	active  bool
	stopped atomic.Bool
	ended   atomic.Bool
	done    chan struct{}
	runErr  error
}

// NewWorld creates a simulation world: definition objects are instantiated
// first, then the model's Setup registers the domain on top of them.
func NewWorld(model Model, cfg WorldConfig) *World {
	if model == nil {
		panic("NewWorld: model must not be nil")
	}
	w := &World{
		model:        model,
		index:        cfg.Index,
		title:        cfg.Title,
		headless:     cfg.Headless,
		variation:    cfg.Variation,
		variationSet: cfg.VariationSet,
		ids:          make(map[string]any),
		constants:    make(map[string]*Constant),
		resources:    make(map[string]*Resource),
		queues:       make(map[string]*Queue),
		quantities:   make(map[string]*Quantity),
		generators:   make(map[string]*Generator),
		datasets:     make(map[string]*Dataset),
		entityByID:   make(map[string]*Entity),
		serials:      make(map[string]int),
		done:         make(chan struct{}),
	}
	w.Tpu = cfg.Tpu
	w.TimeUnit = cfg.TimeUnit
	if w.title == "" {
		w.title = "Unnamed Simulation"
	}
	if w.Tpu <= 0 {
		w.Tpu = 10.0
	}
	if w.TimeUnit == "" {
		w.TimeUnit = "seconds"
	}
	w.TickTime = 1.0 / w.Tpu
	w.rng = NewPartitionedRNG(NewSimulationKey(cfg.Seed ^ fnv1a64(SubsystemWorld(cfg.Index))))

	if cfg.Definition != nil {
		w.applyDefinition(cfg.Definition)
	}
	model.Setup(w)
	return w
}

// applyDefinition instantiates the declared simulation objects.
func (w *World) applyDefinition(def *Definition) {
	if def.Title != "" {
		w.title = def.Title
	}
	if def.Tpu > 0 {
		w.Tpu = def.Tpu
		w.TickTime = 1.0 / w.Tpu
	}
	if def.TimeUnit != "" {
		w.TimeUnit = def.TimeUnit
	}
	for id, value := range def.FlatConstants() {
		NewConstant(w, id, value)
	}
	for _, entry := range def.Resources {
		d := entry.Def
		NewResource(w, entry.ID, ResourceConfig{
			Type:        d.Type,
			Slots:       d.Slots,
			UsageTime:   d.UsageTime,
			MaxQueue:    d.MaxQueue,
			Capacity:    d.Capacity,
			StartAmount: d.StartAmount,
		})
	}
	for _, entry := range def.Queues {
		NewQueue(w, entry.ID, entry.Def.Capacity)
	}
	for _, entry := range def.Quantities {
		d := entry.Def
		NewQuantity(w, entry.ID, d.Type, QuantityConfig{
			Start:           d.StartValue,
			Min:             d.Min,
			Max:             d.Max,
			Gather:          d.GatherOrDefault(),
			DataID:          d.DataID,
			SampleFrequency: d.SampleFrequencyOrDefault(),
		})
	}
	for _, entry := range def.Generators {
		g, err := newGeneratorFromDef(w, entry.ID, entry.Def)
		if err != nil {
			panic(fmt.Sprintf("World %q: generator %q: %v", w.title, entry.ID, err))
		}
		w.Add(g)
	}
}

// Index returns this world's position within its batch.
func (w *World) Index() int { return w.index }

// Title returns the descriptive name of the simulation.
func (w *World) Title() string { return w.title }

// Variation returns the batch parameter assignment descriptor, if any.
func (w *World) Variation() string { return w.variation }

// VariationSet returns the raw batch parameter assignment, if any.
func (w *World) VariationSet() map[string]Value { return w.variationSet }

// Headless reports whether the run has no interactive output attached.
func (w *World) Headless() bool { return w.headless }

// Rand returns this world's deterministic RNG partition.
func (w *World) Rand() *PartitionedRNG { return w.rng }

// nextSerial issues the next serial number for an entity kind. The registry
// is per-world, so batch worlds number their entities independently.
func (w *World) nextSerial(kind string) int {
	w.serials[kind]++
	return w.serials[kind]
}

// Add registers a simulation object with this world. Adding the same object
// again is a no-op; adding a different object under an already-taken id is a
// fatal configuration error.
func (w *World) Add(obj any) {
	id := objectID(obj)
	if existing, taken := w.ids[id]; taken {
		if existing == obj {
			return
		}
		panic(fmt.Sprintf("World %q: another object with id %q already exists", w.title, id))
	}
	w.ids[id] = obj

	switch o := obj.(type) {
	case *Constant:
		w.constants[id] = o
	case *Entity:
		w.entities = append(w.entities, o)
		w.entityByID[id] = o
	case *Resource:
		w.resources[id] = o
	case *Queue:
		w.queues[id] = o
	case *Quantity:
		w.quantities[id] = o
		w.quantityOrder = append(w.quantityOrder, id)
	case *Generator:
		w.generators[id] = o
	default:
		panic(fmt.Sprintf("World %q: cannot add object of type %T", w.title, obj))
	}
}

// Remove detaches a simulation object from this world, stopping any data
// sources watching it. Returns false when the object was not registered.
func (w *World) Remove(obj any) bool {
	id := objectID(obj)
	if existing, found := w.ids[id]; !found || existing != obj {
		return false
	}
	delete(w.ids, id)

	switch o := obj.(type) {
	case *Constant:
		delete(w.constants, id)
	case *Entity:
		for i, e := range w.entities {
			if e == o {
				w.entities = append(w.entities[:i], w.entities[i+1:]...)
				break
			}
		}
		delete(w.entityByID, id)
		o.world = nil
		for _, out := range o.outputs {
			out.Stop()
		}
	case *Resource:
		delete(w.resources, id)
		w.stopSourcesOf(o)
	case *Queue:
		delete(w.queues, id)
		w.stopSourcesOf(o)
	case *Quantity:
		delete(w.quantities, id)
		for i, qid := range w.quantityOrder {
			if qid == id {
				w.quantityOrder = append(w.quantityOrder[:i], w.quantityOrder[i+1:]...)
				break
			}
		}
	case *Generator:
		delete(w.generators, id)
	default:
		return false
	}
	return true
}

func (w *World) stopSourcesOf(owner any) {
	for _, dsID := range w.datasetOrder {
		for _, src := range w.datasets[dsID].sources {
			if src.Owner() == owner {
				src.Stop()
			}
		}
	}
}

func objectID(obj any) string {
	switch o := obj.(type) {
	case *Constant:
		return o.id
	case *Entity:
		return o.id
	case *Resource:
		return o.id
	case *Queue:
		return o.id
	case *Quantity:
		return o.id
	case *Generator:
		return o.id
	}
	panic(fmt.Sprintf("objectID: unsupported object type %T", obj))
}

// Has reports whether any object is registered under the given id.
func (w *World) Has(id string) bool {
	_, ok := w.ids[id]
	return ok
}

// Lookup accessors. Callers are expected to register objects before
// referencing them; a miss is a fatal key-not-found error, never a silent nil.

// Constant returns the constant with the given id, joining multiple keys with
// ":" the way nested definition constants are flattened.
func (w *World) Constant(keys ...string) *Constant {
	id := joinKeys(keys)
	c, ok := w.constants[id]
	if !ok {
		panic(fmt.Sprintf("World %q: no constant with id %q found", w.title, id))
	}
	return c
}

// Entity returns the entity with the given id.
func (w *World) Entity(id string) *Entity {
	e, ok := w.entityByID[id]
	if !ok {
		panic(fmt.Sprintf("World %q: no entity with id %q found", w.title, id))
	}
	return e
}

// Resource returns the resource with the given id.
func (w *World) Resource(id string) *Resource {
	r, ok := w.resources[id]
	if !ok {
		panic(fmt.Sprintf("World %q: no resource with id %q found", w.title, id))
	}
	return r
}

// Queue returns the queue with the given id.
func (w *World) Queue(id string) *Queue {
	q, ok := w.queues[id]
	if !ok {
		panic(fmt.Sprintf("World %q: no queue with id %q found", w.title, id))
	}
	return q
}

// Quantity returns the quantity with the given id.
func (w *World) Quantity(id string) *Quantity {
	q, ok := w.quantities[id]
	if !ok {
		panic(fmt.Sprintf("World %q: no quantity with id %q found", w.title, id))
	}
	return q
}

// Generator returns the generator with the given id.
func (w *World) Generator(id string) *Generator {
	g, ok := w.generators[id]
	if !ok {
		panic(fmt.Sprintf("World %q: no generator with id %q found", w.title, id))
	}
	return g
}

// Entities returns the registered entities in registration order. The
// returned slice is the world's internal storage; callers must not modify it.
func (w *World) Entities() []*Entity { return w.entities }

// EntityCount returns the number of registered entities.
func (w *World) EntityCount() int { return len(w.entities) }

// AddSeries registers a data source under the given dataset id, creating the
// dataset on first use. Returns the dataset for chaining.
func (w *World) AddSeries(datasetID string, src DataSource) *Dataset {
	ds, ok := w.datasets[datasetID]
	if !ok {
		ds = &Dataset{world: w, id: datasetID}
		w.datasets[datasetID] = ds
		w.datasetOrder = append(w.datasetOrder, datasetID)
	}
	ds.AddSource(src)
	return ds
}

// Dataset returns the dataset with the given id, or nil.
func (w *World) Dataset(id string) *Dataset { return w.datasets[id] }

// Datasets returns the world's datasets in creation order.
func (w *World) Datasets() []*Dataset {
	out := make([]*Dataset, 0, len(w.datasetOrder))
	for _, id := range w.datasetOrder {
		out = append(out, w.datasets[id])
	}
	return out
}

// SimOptions configures one simulation run.
type SimOptions struct {
	// Tpu overrides the tick rate when positive.
	Tpu float64
	// EndTick ends the run at that tick count, unless 0 (run until stopped).
	EndTick int64
	// Realtime paces the loop by sleeping TickTime per tick. Best-effort
	// pacing only, never a correctness requirement.
	Realtime bool
}

// start arms the world for a run. The tick loop itself executes in run, on
// the goroutine the Runner dedicates to this world.
func (w *World) start(opts SimOptions) {
	w.setRate(opts.Tpu, opts.EndTick)
	w.realtime = opts.Realtime
	w.active = true
}

// Active reports whether the world is armed and has not ended.
func (w *World) Active() bool {
	return w.active && !w.ended.Load()
}

// Ended reports whether the tick loop has exited.
func (w *World) Ended() bool { return w.ended.Load() }

// Err returns the abnormal-end error of this world, if any.
func (w *World) Err() error { return w.runErr }

// Stop requests a cooperative stop, observed at the top of the next tick.
func (w *World) Stop() {
	w.stopped.Store(true)
}

// Wait blocks until the tick loop has observed the stop flag (or the end
// condition) and exited.
func (w *World) Wait() {
	<-w.done
}

// run drives the tick loop to completion. A panic escaping domain hooks ends
// this world abnormally without corrupting sibling worlds; the error
// propagates to the Runner's join barrier.
func (w *World) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("world %d (%s): %v", w.index, w.title, r)
			logrus.Errorf("%v", err)
		}
		w.runErr = err
		w.ended.Store(true)
		close(w.done)
	}()

	if w.EndTick > 0 {
		logrus.Debugf("%s: Run for %g %s (%d ticks at %g ticks/%s)...",
			w.title, float64(w.EndTick)/w.Tpu, w.TimeUnit, w.EndTick, w.Tpu, w.TimeUnit)
	} else {
		logrus.Debugf("%s: Running indefinitely at %g ticks/%s...", w.title, w.Tpu, w.TimeUnit)
	}
	if w.realtime && w.TimeUnit != "seconds" {
		logrus.Warnf("%s: realtime pacing uses seconds, not %s", w.title, w.TimeUnit)
	}

	for !w.stopped.Load() && !w.endReached() {
		w.tick()
		if w.realtime {
			time.Sleep(time.Duration(w.TickTime * float64(time.Second)))
		}
	}

	w.finalize()
	logrus.Debugf("%s: End of simulation after %d ticks (%g %s)", w.title, w.Ticks, w.Time, w.TimeUnit)
	return nil
}

// tick runs exactly one tick in the fixed order domain correctness depends
// on: before-hook, entities, quantities, after-hook, data sources, advance.
func (w *World) tick() {
	w.model.BeforeEntitiesUpdate(w)

	// Snapshot so removals during the update don't skip neighbours; entities
	// added during another entity's tick first run next tick.
	snapshot := make([]*Entity, len(w.entities))
	copy(snapshot, w.entities)
	for _, e := range snapshot {
		if e.world != nil {
			e.tick()
		}
	}

	for _, id := range w.quantityOrder {
		w.quantities[id].tick()
	}

	w.model.AfterEntitiesUpdate(w)

	for _, id := range w.datasetOrder {
		w.datasets[id].tick()
	}

	w.advance()
}

// finalize flushes every dataset source once the loop has exited.
func (w *World) finalize() {
	for _, id := range w.datasetOrder {
		w.datasets[id].stop()
	}
}
