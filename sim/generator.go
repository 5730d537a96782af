package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gopkg.in/yaml.v3"
)

// Record is one generated data point: property name to value, plus the
// sequential "id" property every record carries.
type Record map[string]Value

// Float returns a record property as a float64; ok is false for missing or
// non-numeric properties.
func (r Record) Float(property string) (v float64, ok bool) {
	return toFloat(r[property])
}

// Sampler produces successive values for one record property. The first call
// returns the starting value; accumulation, clamping and scaling are the
// concern of the concrete samplers.
type Sampler interface {
	Next() Value
}

// SamplerSpec is the declarative form of a sampler, parsed from a generator
// subset. A bare scalar declares a fixed value; a mapping declares either a
// static (possibly cumulative) value or a distribution.
type SamplerSpec struct {
	// Static holds the bare-scalar form; nil when the mapping form was used.
	Static Value

	// Value is the static step in the mapping form.
	Value *float64 `yaml:"value"`

	// Distribution selects a random distribution: normal, lognormal,
	// exponential, uniform, poisson.
	Distribution string             `yaml:"distribution"`
	Parameters   map[string]float64 `yaml:"parameters"`

	// Sample is the accumulation mode: absolute (default), cumulative, or
	// binned (distributions only).
	Sample string `yaml:"sample"`

	Start   *float64 `yaml:"start"`
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
	Width   float64  `yaml:"width"`
	Scaling float64  `yaml:"scaling"`

	scalar bool
}

func (s *SamplerSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v Value
		if err := node.Decode(&v); err != nil {
			return err
		}
		s.Static = v
		s.scalar = true
		return nil
	}
	type plain SamplerSpec
	return node.Decode((*plain)(s))
}

func (s *SamplerSpec) validate() error {
	if s.scalar || s.Value != nil {
		return nil
	}
	switch s.Distribution {
	case "normal", "lognormal", "exponential", "uniform", "poisson":
		return nil
	case "":
		return fmt.Errorf("sampler needs a value or a distribution")
	}
	return fmt.Errorf("unknown distribution %q", s.Distribution)
}

// newSampler builds the concrete sampler for a spec. Distribution samplers
// draw from the given RNG; static samplers never touch it.
func newSampler(spec SamplerSpec, rng *rand.Rand) (Sampler, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	scaling := spec.Scaling
	if scaling == 0 {
		scaling = 1.0
	}

	if spec.scalar {
		return &StaticSampler{value: spec.Static}, nil
	}
	if spec.Value != nil {
		start := 0.0
		if spec.Start != nil {
			start = *spec.Start
		}
		return &StaticSampler{
			current:    start,
			step:       *spec.Value,
			accumulate: spec.Sample == "cumulative",
			scaling:    scaling,
			numeric:    true,
		}, nil
	}

	width := spec.Width
	if width == 0 {
		width = 1.0
	}
	d := &DistributionSampler{
		distribution: spec.Distribution,
		parameters:   spec.Parameters,
		mode:         spec.Sample,
		min:          spec.Min,
		max:          spec.Max,
		width:        width,
		scaling:      scaling,
		rng:          rng,
	}
	if spec.Start != nil {
		d.value = *spec.Start
		d.currentBin = *spec.Start - width
		d.started = true
	} else {
		d.currentBin = -width
	}
	return d, nil
}

// StaticSampler returns a fixed value, or with cumulative sampling a value
// stepping by a fixed amount on every call after the first.
type StaticSampler struct {
	value      Value
	current    float64
	step       float64
	accumulate bool
	scaling    float64
	numeric    bool
	started    bool
}

// Next returns the sampler's current value.
func (s *StaticSampler) Next() Value {
	if !s.numeric {
		return s.value
	}
	if !s.accumulate {
		return s.scaling * s.step
	}
	if !s.started {
		s.started = true
	} else {
		s.current += s.step
	}
	return s.scaling * s.current
}

// DistributionSampler draws from a random distribution, in one of three
// accumulation modes: absolute returns each draw; cumulative sums the draws;
// binned interprets each draw as a count of records in successive bins of the
// given width, returning the bin position (arrival-time style generation).
type DistributionSampler struct {
	distribution string
	parameters   map[string]float64
	mode         string
	min          *float64
	max          *float64
	width        float64
	scaling      float64
	rng          *rand.Rand

	value       float64
	currentBin  float64
	samplesLeft int
	started     bool
}

// Next returns the next sample.
func (d *DistributionSampler) Next() Value {
	if !d.started {
		d.started = true
		d.value = d.sample()
		return d.value
	}
	sample := d.sample()
	if d.mode == "cumulative" {
		d.value += sample
		return d.value
	}
	return sample
}

func (d *DistributionSampler) sample() float64 {
	if d.mode == "binned" {
		for d.samplesLeft <= 0 {
			d.currentBin += d.width
			d.samplesLeft = int(math.Round(d.clamp(d.draw())))
		}
		d.samplesLeft--
		return d.scaling * d.currentBin
	}
	return d.scaling * d.clamp(d.draw())
}

func (d *DistributionSampler) clamp(v float64) float64 {
	if d.min != nil && v < *d.min {
		v = *d.min
	}
	if d.max != nil && v > *d.max {
		v = *d.max
	}
	return v
}

func (d *DistributionSampler) param(name string, fallback float64) float64 {
	if v, ok := d.parameters[name]; ok {
		return v
	}
	return fallback
}

func (d *DistributionSampler) draw() float64 {
	switch d.distribution {
	case "normal":
		return d.rng.NormFloat64()*d.param("scale", 1.0) + d.param("loc", 0.0)
	case "lognormal":
		return math.Exp(d.rng.NormFloat64()*d.param("sigma", 1.0) + d.param("mean", 0.0))
	case "exponential":
		return d.rng.ExpFloat64() * d.param("scale", 1.0)
	case "uniform":
		low, high := d.param("low", 0.0), d.param("high", 1.0)
		return low + d.rng.Float64()*(high-low)
	case "poisson":
		return float64(d.poisson(d.param("lam", 1.0)))
	}
	panic(fmt.Sprintf("DistributionSampler: unknown distribution %q", d.distribution))
}

// poisson draws by inversion of the exponential inter-arrival representation.
func (d *DistributionSampler) poisson(lam float64) int {
	limit := math.Exp(-lam)
	product := d.rng.Float64()
	count := 0
	for product > limit {
		count++
		product *= d.rng.Float64()
	}
	return count
}

// Generator produces populations of synthetic records from declared subsets.
// All randomness flows through the owning world's partitioned RNG, so sibling
// worlds in a batch generate independent but reproducible populations.
type Generator struct {
	world   *World
	id      string
	key     string
	subsets []map[string]SamplerSpec
}

// newGeneratorFromDef builds a generator from its definition entry. Specs are
// validated here so a bad definition fails before any world ticks.
func newGeneratorFromDef(w *World, id string, def GeneratorDef) (*Generator, error) {
	if len(def.Subsets) == 0 {
		return nil, fmt.Errorf("generator has no subsets")
	}
	for _, subset := range def.Subsets {
		for property, spec := range subset {
			if err := spec.validate(); err != nil {
				return nil, fmt.Errorf("property %q: %w", property, err)
			}
		}
	}
	return &Generator{world: w, id: id, key: def.Key, subsets: def.Subsets}, nil
}

// ID returns the generator's identifier, unique within its world.
func (g *Generator) ID() string { return g.id }

// Limit bounds a generated property: generation of a subset stops at the
// first record whose property compares beyond the limit (that record is
// discarded). Op is "<" or ">".
type Limit struct {
	Op    string
	Value float64
}

// CountRule caps the record count of the subsets whose key property equals
// the given value.
type CountRule struct {
	Property string
	Equals   Value
	Max      int
}

// GenerateOptions refines one Generate call.
type GenerateOptions struct {
	// Limits stop subset generation once a property crosses its limit.
	Limits map[string]Limit
	// Counts cap matching subsets at a fixed record count.
	Counts []CountRule
	// SortBy orders the combined population by the named property.
	SortBy string
	// Desc sorts descending instead of ascending.
	Desc bool
}

// Generate produces the full record population: every subset generates until
// a limit or count stops it. Records carry a sequential "id" property unique
// across subsets.
func (g *Generator) Generate(opts GenerateOptions) []Record {
	rng := g.world.Rand().ForSubsystem(SubsystemGenerator(g.id))
	var data []Record
	serial := 0

	for _, subset := range g.subsets {
		// Order the properties so the RNG draw sequence is reproducible.
		properties := make([]string, 0, len(subset))
		for property := range subset {
			properties = append(properties, property)
		}
		sort.Strings(properties)

		samplers := make(map[string]Sampler, len(subset))
		for _, property := range properties {
			sampler, err := newSampler(subset[property], rng)
			if err != nil {
				panic(fmt.Sprintf("Generator %s: property %q: %v", g.id, property, err))
			}
			samplers[property] = sampler
		}

		count := 0
		for _, rule := range opts.Counts {
			if spec, ok := subset[rule.Property]; ok && spec.Static == rule.Equals {
				count = rule.Max
				break
			}
		}

	subsetLoop:
		for {
			serial++
			record := Record{"id": fmt.Sprintf("%d", serial)}
			for _, property := range properties {
				record[property] = samplers[property].Next()
			}

			for property, limit := range opts.Limits {
				value, ok := toFloat(record[property])
				if !ok {
					continue
				}
				if (limit.Op == ">" && value > limit.Value) ||
					(limit.Op == "<" && value < limit.Value) {
					serial--
					break subsetLoop
				}
			}

			data = append(data, record)
			if count > 0 {
				count--
				if count == 0 {
					break
				}
			}
		}
	}

	if opts.SortBy != "" {
		sort.SliceStable(data, func(i, j int) bool {
			less := recordLess(data[i], data[j], opts.SortBy)
			if opts.Desc {
				return !less
			}
			return less
		})
	}
	return data
}

func recordLess(a, b Record, property string) bool {
	av, aok := toFloat(a[property])
	bv, bok := toFloat(b[property])
	if aok && bok {
		return av < bv
	}
	return fmt.Sprint(a[property]) < fmt.Sprint(b[property])
}

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (g *Generator) String() string {
	return fmt.Sprintf("Generator %s", g.id)
}
