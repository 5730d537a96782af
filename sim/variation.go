package sim

import (
	"fmt"
	"sort"
	"strings"
)

// Variation is one concrete parameter assignment of a batch: selector paths
// ("beds.slots", "max_patients") to values, with a stable selector order for
// reporting.
type Variation struct {
	selectors []string
	values    map[string]Value
}

// Selectors returns the assignment's selector paths in stable order.
func (v Variation) Selectors() []string { return v.selectors }

// Value returns the assigned value for a selector.
func (v Variation) Value(selector string) Value { return v.values[selector] }

// Set returns the raw assignment map.
func (v Variation) Set() map[string]Value { return v.values }

// String renders the assignment as "a=1, b=2".
func (v Variation) String() string {
	parts := make([]string, 0, len(v.selectors))
	for _, selector := range v.selectors {
		parts = append(parts, fmt.Sprintf("%s=%v", selector, v.values[selector]))
	}
	return strings.Join(parts, ", ")
}

// expandBatches turns the definition's batch entries into the flat list of
// world variations. An empty batch plan yields no variations; the Runner then
// creates a single default world.
func expandBatches(def *Definition) ([]Variation, error) {
	if def == nil {
		return nil, nil
	}
	var variations []Variation
	for i := range def.Batches {
		expanded, err := def.Batches[i].expand()
		if err != nil {
			return nil, err
		}
		variations = append(variations, expanded...)
	}
	return variations, nil
}

// expand produces the entry's variations: the explicit assignments of a
// "single" entry, or the cartesian product of a "grid" entry's axes.
func (e *BatchEntry) expand() ([]Variation, error) {
	switch e.Kind {
	case "single":
		variations := make([]Variation, 0, len(e.Single))
		for _, assignment := range e.Single {
			selectors := make([]string, 0, len(assignment))
			for selector := range assignment {
				selectors = append(selectors, selector)
			}
			sort.Strings(selectors)
			variations = append(variations, Variation{selectors: selectors, values: assignment})
		}
		return variations, nil

	case "grid":
		selectors := make([]string, 0, len(e.Grid))
		axes := make([][]Value, 0, len(e.Grid))
		for _, axis := range e.Grid {
			values, err := axis.expand()
			if err != nil {
				return nil, err
			}
			selectors = append(selectors, axis.Selector)
			axes = append(axes, values)
		}
		return cartesian(selectors, axes), nil
	}
	return nil, fmt.Errorf("unknown batch type %q", e.Kind)
}

// expand resolves one grid axis to its value list. Stepped ranges are
// inclusive of the end value when the step lands on it.
func (a GridAxis) expand() ([]Value, error) {
	if a.Range != nil {
		r := a.Range
		if r.Step <= 0 {
			return nil, fmt.Errorf("invalid range for grid batch: %q has step %d", a.Selector, r.Step)
		}
		if r.End < r.Start {
			return nil, fmt.Errorf("invalid range for grid batch: %q has end %d before start %d", a.Selector, r.End, r.Start)
		}
		var values []Value
		for v := r.Start; v <= r.End; v += r.Step {
			values = append(values, v)
		}
		return values, nil
	}
	if len(a.Values) == 0 {
		return nil, fmt.Errorf("invalid range for grid batch: %q has no values", a.Selector)
	}
	return a.Values, nil
}

// cartesian combines the axes into every possible assignment, first axis
// varying slowest.
func cartesian(selectors []string, axes [][]Value) []Variation {
	total := 1
	for _, axis := range axes {
		total *= len(axis)
	}
	variations := make([]Variation, 0, total)
	indices := make([]int, len(axes))
	for n := 0; n < total; n++ {
		values := make(map[string]Value, len(selectors))
		for i, selector := range selectors {
			values[selector] = axes[i][indices[i]]
		}
		variations = append(variations, Variation{selectors: selectors, values: values})
		for i := len(indices) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(axes[i]) {
				break
			}
			indices[i] = 0
		}
	}
	return variations
}

// applyVariation sets one selector of a variation on the world. Selectors
// address a settable parameter through a typed path: a constant id, a world
// parameter, or "<object-id>.<field>" for resources, queues and quantities.
// Unknown selectors are configuration errors.
func (w *World) applyVariation(selector string, value Value) error {
	parts := strings.SplitN(selector, ".", 2)

	if len(parts) == 1 {
		if c, ok := w.constants[selector]; ok {
			c.setValue(value)
			return nil
		}
		switch selector {
		case "tpu":
			v, ok := toFloat(value)
			if !ok || v <= 0 {
				return fmt.Errorf("variation %q: tpu needs a positive number, got %v", selector, value)
			}
			w.Tpu = v
			w.TickTime = 1.0 / v
			return nil
		case "end_tick":
			v, ok := toFloat(value)
			if !ok || v < 0 {
				return fmt.Errorf("variation %q: end_tick needs a non-negative number, got %v", selector, value)
			}
			w.EndTick = int64(v)
			return nil
		case "title":
			w.title = fmt.Sprint(value)
			return nil
		}
		return fmt.Errorf("variation %q: no constant or world parameter with that name", selector)
	}

	id, field := parts[0], parts[1]
	if r, ok := w.resources[id]; ok {
		return r.applyVariation(field, value)
	}
	if q, ok := w.queues[id]; ok {
		return q.applyVariation(field, value)
	}
	if q, ok := w.quantities[id]; ok {
		return q.applyVariation(field, value)
	}
	return fmt.Errorf("variation %q: no resource, queue or quantity with id %q", selector, id)
}

func (r *Resource) applyVariation(field string, value Value) error {
	num, numeric := toFloat(value)
	switch field {
	case "slots":
		if !numeric || num < 0 {
			break
		}
		r.slots = int(num)
		return nil
	case "usage_time":
		if !numeric || num <= 0 {
			break
		}
		r.usageTime = int(num)
		return nil
	case "capacity":
		if !numeric {
			break
		}
		r.capacity = num
		return nil
	case "amount":
		if !numeric {
			break
		}
		r.hasPool = true
		r.amount = num
		return nil
	default:
		return fmt.Errorf("variation: Resource %s has no settable field %q", r.id, field)
	}
	return fmt.Errorf("variation: Resource %s field %q needs a valid number, got %v", r.id, field, value)
}

func (q *Queue) applyVariation(field string, value Value) error {
	if field != "capacity" {
		return fmt.Errorf("variation: Queue %s has no settable field %q", q.id, field)
	}
	num, numeric := toFloat(value)
	if !numeric || num < 0 {
		return fmt.Errorf("variation: Queue %s capacity needs a valid number, got %v", q.id, value)
	}
	q.capacity = int(num)
	return nil
}

func (q *Quantity) applyVariation(field string, value Value) error {
	num, numeric := toFloat(value)
	if !numeric {
		return fmt.Errorf("variation: Quantity %s field %q needs a number, got %v", q.id, field, value)
	}
	switch field {
	case "value":
		q.value = num
		q.set = true
		return nil
	case "min":
		q.Min = &num
		return nil
	case "max":
		q.Max = &num
		return nil
	}
	return fmt.Errorf("variation: Quantity %s has no settable field %q", q.id, field)
}
