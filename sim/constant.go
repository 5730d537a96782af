package sim

import "fmt"

// Value is a constant or variation value: int, float64, string or nil.
type Value = any

// Constant is a named value used to initialise a simulation run. Constants
// exist so batch variations can vary plain values that live outside other
// simulation objects; apart from variation application they are immutable
// after construction.
type Constant struct {
	world *World
	id    string
	value Value
}

// NewConstant creates a constant and registers it with the world. Nested
// definition maps are flattened into ":"-joined ids before reaching here.
func NewConstant(w *World, id string, value Value) *Constant {
	if w == nil {
		panic("NewConstant: world must not be nil")
	}
	c := &Constant{world: w, id: id, value: value}
	w.Add(c)
	return c
}

// ID returns the constant's identifier, unique within its world.
func (c *Constant) ID() string { return c.id }

// Value returns the raw value (int, float64, string or nil).
func (c *Constant) Value() Value { return c.value }

// IsNil reports whether the constant holds no value.
func (c *Constant) IsNil() bool { return c.value == nil }

// Int returns the value as an int. Returns 0 when the value is nil.
func (c *Constant) Int() int {
	switch v := c.value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Float returns the value as a float64. Returns 0.0 when the value is nil.
func (c *Constant) Float() float64 {
	switch v := c.value.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0.0
}

// Equals compares the constant directly to a raw value.
func (c *Constant) Equals(v Value) bool {
	return c.value == v
}

// setValue is the variation-application escape hatch; constants are otherwise
// immutable after construction.
func (c *Constant) setValue(v Value) {
	c.value = v
}

func (c *Constant) String() string {
	return fmt.Sprint(c.value)
}
