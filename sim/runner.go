package sim

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunnerOptions configures a batch run.
type RunnerOptions struct {
	// Definition declares the simulation objects and the batch plan.
	Definition *Definition
	// Title of the run; the definition's title wins when set.
	Title string
	// Tpu overrides the tick rate when positive.
	Tpu float64
	// TimeUnit names the simulated time unit.
	TimeUnit string
	// Seed is the deterministic seed shared by every world of the run; world
	// isolation comes from per-world RNG partitioning, not from the seed.
	Seed int64
	// EndTick ends every world at that tick count, unless 0.
	EndTick int64
	// Realtime paces every world's loop in real time.
	Realtime bool
	// Headless marks the run as non-interactive.
	Headless bool

	// Output collects tables; nil defaults to a FileOutput.
	Output Output
	// OutputPath, when set, saves all collected tables there after the run.
	OutputPath string
	// CSV selects CSV export instead of gob.
	CSV bool
	// ClearOutput deletes previously saved run directories under OutputPath
	// before saving.
	ClearOutput bool
}

// Runner creates the worlds of a run (one per batch variation, or a single
// default world) and drives them to completion. Every world ticks on its own
// goroutine; the runner joins on all of them, then aggregates and saves.
type Runner struct {
	id     string
	title  string
	opts   RunnerOptions
	worlds []*World
	output Output

	group   *errgroup.Group
	started bool
}

// NewRunner builds the runner and its worlds. Every batch variation becomes
// one world built from a fresh Model; a malformed batch plan or an unknown
// variation selector fails here, before any world ticks.
func NewRunner(factory func() Model, opts RunnerOptions) (*Runner, error) {
	if factory == nil {
		return nil, fmt.Errorf("runner: model factory must not be nil")
	}

	variations, err := expandBatches(opts.Definition)
	if err != nil {
		return nil, err
	}

	output := opts.Output
	if output == nil {
		output = NewFileOutput()
	}

	r := &Runner{
		id:     uuid.NewString(),
		opts:   opts,
		output: output,
	}

	for i, variation := range variations {
		w := NewWorld(factory(), WorldConfig{
			Definition:   opts.Definition,
			Title:        opts.Title,
			Tpu:          opts.Tpu,
			TimeUnit:     opts.TimeUnit,
			Seed:         opts.Seed,
			Index:        i,
			Variation:    variation.String(),
			VariationSet: variation.Set(),
			Headless:     opts.Headless,
		})
		for _, selector := range variation.Selectors() {
			if err := w.applyVariation(selector, variation.Value(selector)); err != nil {
				return nil, err
			}
		}
		r.worlds = append(r.worlds, w)
	}

	if len(r.worlds) == 0 {
		r.worlds = append(r.worlds, NewWorld(factory(), WorldConfig{
			Definition: opts.Definition,
			Title:      opts.Title,
			Tpu:        opts.Tpu,
			TimeUnit:   opts.TimeUnit,
			Seed:       opts.Seed,
			Headless:   opts.Headless,
		}))
		logrus.Debug("No batches defined, created a single world.")
	} else {
		logrus.Debugf("Created %d worlds.", len(r.worlds))
	}

	for _, w := range r.worlds {
		r.output.AddWorld(w.Index())
	}

	r.title = r.worlds[0].Title()
	if len(r.worlds) > 1 {
		r.title = fmt.Sprintf("%dx %s", len(r.worlds), r.title)
	}
	return r, nil
}

// ID returns the unique identifier of this run.
func (r *Runner) ID() string { return r.id }

// Title returns the run title ("3x Unnamed Simulation" for batches).
func (r *Runner) Title() string { return r.title }

// Worlds returns the runner's worlds in batch order.
func (r *Runner) Worlds() []*World { return r.worlds }

// Output returns the attached output collector.
func (r *Runner) Output() Output { return r.output }

// Simulate runs all worlds to completion and blocks until the run is
// finished, aggregated and (when configured) saved. The returned error is the
// first abnormal world end or save failure.
func (r *Runner) Simulate() error {
	r.Start()
	return r.Wait()
}

// Start launches every world's tick loop without blocking. Calling Start
// again is a no-op.
func (r *Runner) Start() {
	if r.started {
		return
	}
	r.started = true

	logrus.Infof("%s: Starting simulation (run %s)", r.title, r.id)
	r.group = &errgroup.Group{}
	for _, w := range r.worlds {
		w.start(SimOptions{Tpu: r.opts.Tpu, EndTick: r.opts.EndTick, Realtime: r.opts.Realtime})
	}
	for _, w := range r.worlds {
		r.group.Go(w.run)
	}
}

// Active reports whether any world is still running.
func (r *Runner) Active() bool {
	if !r.started {
		return false
	}
	for _, w := range r.worlds {
		if !w.Ended() {
			return true
		}
	}
	return false
}

// Stop requests a cooperative stop of every world.
func (r *Runner) Stop() {
	for _, w := range r.worlds {
		w.Stop()
	}
}

// Wait joins on every world, then gathers, aggregates and saves exactly once.
func (r *Runner) Wait() error {
	if !r.started {
		return fmt.Errorf("runner: not started")
	}
	runErr := r.group.Wait()
	logrus.Infof("%s: End of simulation", r.title)

	r.finish()

	if runErr != nil {
		return runErr
	}
	if r.opts.OutputPath != "" {
		return r.save()
	}
	return nil
}

// finish pushes every world's recorded tables into the output and aggregates
// the batch.
func (r *Runner) finish() {
	var summaries []SeriesSummary
	for _, w := range r.worlds {
		for _, ds := range w.Datasets() {
			for _, src := range ds.Sources() {
				r.output.UpdateDataset(w.Index(), tableID(ds, src), src.Table())
			}
		}
		if agg, ok := w.model.(Aggregator); ok {
			for _, table := range agg.AggregateData(w) {
				r.output.UpdateDataset(w.Index(), table.Name, table)
			}
		}
		summaries = append(summaries, summarizeWorld(w)...)
	}
	r.output.AggregateBatches(summaries)
}

// tableID names a source's table within its world's output: the dataset id,
// qualified by the source name when a dataset holds several sources.
func tableID(ds *Dataset, src DataSource) string {
	if len(ds.Sources()) == 1 {
		return ds.ID()
	}
	return fmt.Sprintf("%s - %s", ds.ID(), src.Name())
}

// save writes the collected tables under OutputPath, in a directory named
// after this run.
func (r *Runner) save() error {
	format := "gob"
	if r.opts.CSV {
		format = "csv"
	}
	dir := r.opts.OutputPath
	if r.opts.ClearOutput {
		if err := clearDirectory(dir); err != nil {
			return err
		}
	}
	return r.output.Save(runDirectory(dir, r.id), format)
}
