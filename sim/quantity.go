package sim

import (
	"fmt"
	"math"
)

// QuantityConfig carries the constructor parameters of a Quantity.
type QuantityConfig struct {
	// Start, when non-nil, gives the quantity its starting value. A quantity
	// without a starting value records no samples and rejects arithmetic
	// until Set is called.
	Start *float64
	// Min and Max are optional informational bounds. Clamping is the
	// responsibility of callers using the arithmetic operations; Clamp is
	// provided for that.
	Min *float64
	Max *float64
	// Gather automatically attaches a sampling output at SampleFrequency.
	Gather bool
	// DataID names the dataset for the automatic output (default: the id).
	DataID string
	// SampleFrequency: record every N ticks, or only on change when 0.
	SampleFrequency int
}

// Quantity is a named scalar observable that can be automatically sampled per
// tick. Once a quantity has a value it can never be unset again.
type Quantity struct {
	world        *World
	id           string
	quantityType string

	value float64
	set   bool

	// Min and Max are optional informational bounds.
	Min *float64
	Max *float64

	outputs []*quantityOutput
}

type quantityOutput struct {
	frequency int
	series    *XYSeries
}

// NewQuantity creates a quantity and registers it with the world. quantityType
// describes the unit or kind of thing counted and doubles as the axis legend
// of sampled series.
func NewQuantity(w *World, id, quantityType string, cfg QuantityConfig) *Quantity {
	if w == nil {
		panic("NewQuantity: world must not be nil")
	}
	q := &Quantity{world: w, id: id, quantityType: quantityType, Min: cfg.Min, Max: cfg.Max}
	if cfg.Start != nil {
		q.value = *cfg.Start
		q.set = true
	}
	w.Add(q)
	if cfg.Gather {
		dataID := cfg.DataID
		if dataID == "" {
			dataID = id
		}
		q.AddOutput(dataID, cfg.SampleFrequency)
	}
	return q
}

// ID returns the quantity's identifier, unique within its world.
func (q *Quantity) ID() string { return q.id }

// Type returns the descriptive type or unit of the quantity.
func (q *Quantity) Type() string { return q.quantityType }

// Value returns the current value; ok is false while the quantity has never
// been given a starting value.
func (q *Quantity) Value() (v float64, ok bool) {
	return q.value, q.set
}

// Set assigns the value, recording a sample on every on-change output.
func (q *Quantity) Set(v float64) {
	q.value = v
	q.set = true
	for _, out := range q.outputs {
		if out.frequency == 0 {
			out.series.Append(q.world.Time, q.value)
		}
	}
}

// Clamp applies the informational Min/Max bounds to a candidate value.
func (q *Quantity) Clamp(v float64) float64 {
	if q.Min != nil && v < *q.Min {
		v = *q.Min
	}
	if q.Max != nil && v > *q.Max {
		v = *q.Max
	}
	return v
}

// AddOutput attaches a sampling series for this quantity under the given
// dataset id, recording every frequency ticks, or only on change when 0.
func (q *Quantity) AddOutput(dataID string, frequency int) *XYSeries {
	if dataID == "" {
		dataID = q.id
	}
	series := NewXYSeries(q.world, q.id, q.world.TimeUnit, q.quantityType)
	if q.set {
		series.Append(q.world.Time, q.value)
	}
	q.outputs = append(q.outputs, &quantityOutput{frequency: frequency, series: series})
	q.world.AddSeries(dataID, series)
	return series
}

// tick records periodic samples. On-change outputs are fed by Set instead.
func (q *Quantity) tick() {
	if !q.set {
		return
	}
	for _, out := range q.outputs {
		if out.frequency > 0 && q.world.Ticks%int64(out.frequency) == 0 {
			out.series.Append(q.world.Time, q.value)
		}
	}
}

// Arithmetic operations. Every one of them requires a starting value; mutating
// a quantity that was never set is a domain-model bug and panics.

// Add adds delta to the quantity.
func (q *Quantity) Add(delta float64) { q.Set(q.mustValue("add to") + delta) }

// Sub subtracts delta from the quantity.
func (q *Quantity) Sub(delta float64) { q.Set(q.mustValue("subtract from") - delta) }

// Mul multiplies the quantity by factor.
func (q *Quantity) Mul(factor float64) { q.Set(q.mustValue("multiply") * factor) }

// Div divides the quantity by divisor.
func (q *Quantity) Div(divisor float64) { q.Set(q.mustValue("divide") / divisor) }

// FloorDiv divides the quantity by divisor, rounding down.
func (q *Quantity) FloorDiv(divisor float64) {
	q.Set(math.Floor(q.mustValue("divide") / divisor))
}

// Mod sets the quantity to its remainder modulo divisor.
func (q *Quantity) Mod(divisor float64) { q.Set(math.Mod(q.mustValue("take modulus of"), divisor)) }

// Pow raises the quantity to the given power.
func (q *Quantity) Pow(power float64) { q.Set(math.Pow(q.mustValue("raise"), power)) }

func (q *Quantity) mustValue(verb string) float64 {
	if !q.set {
		panic(fmt.Sprintf("Quantity %s: can't %s a quantity that did not have a starting value", q.id, verb))
	}
	return q.value
}

func (q *Quantity) String() string {
	return fmt.Sprintf("Quantity %s", q.id)
}
