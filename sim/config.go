package sim

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the declarative simulation setup loaded from a YAML file:
// world parameters, simulation objects to instantiate, and the batch plan.
//
// Object sections are lists of single-key mappings so the file preserves
// declaration order:
//
//	resources:
//	  - beds:
//	      slots: 10
//	      usage_time: 50
type Definition struct {
	Title    string `yaml:"title"`
	Tpu      float64
	TimeUnit string `yaml:"time_unit"`

	// Constants may nest arbitrarily; nested maps are flattened into
	// ":"-joined ids (FlatConstants).
	Constants map[string]Value `yaml:"constants"`

	Resources  []ResourceEntry  `yaml:"resources"`
	Queues     []QueueDefEntry  `yaml:"queues"`
	Quantities []QuantityEntry  `yaml:"quantities"`
	Generators []GeneratorEntry `yaml:"generators"`

	Batches []BatchEntry `yaml:"batches"`
}

// LoadDefinition reads and validates a definition file.
func LoadDefinition(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition: %w", err)
	}
	return ParseDefinition(raw)
}

// ParseDefinition parses definition YAML.
func ParseDefinition(raw []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parsing definition: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) validate() error {
	if d.Tpu < 0 {
		return fmt.Errorf("definition: tpu must be positive, got %g", d.Tpu)
	}
	for _, entry := range d.Generators {
		g := entry.Def
		if len(g.Subsets) == 0 {
			return fmt.Errorf("definition: generator %q has no subsets", entry.ID)
		}
		for _, subset := range g.Subsets {
			for property, spec := range subset {
				if err := spec.validate(); err != nil {
					return fmt.Errorf("definition: generator %q, property %q: %w", entry.ID, property, err)
				}
			}
		}
	}
	for i := range d.Batches {
		if _, err := d.Batches[i].expand(); err != nil {
			return err
		}
	}
	return nil
}

// FlatConstants returns the constants section with nested maps flattened into
// ":"-joined ids, in stable (sorted within each level) declaration order.
func (d *Definition) FlatConstants() map[string]Value {
	flat := make(map[string]Value)
	flattenInto(flat, "", d.Constants)
	return flat
}

func flattenInto(dst map[string]Value, prefix string, src map[string]Value) {
	for key, value := range src {
		id := key
		if prefix != "" {
			id = prefix + ":" + key
		}
		switch nested := value.(type) {
		case map[string]Value:
			flattenInto(dst, id, nested)
		case map[any]Value:
			converted := make(map[string]Value, len(nested))
			for k, v := range nested {
				converted[fmt.Sprint(k)] = v
			}
			flattenInto(dst, id, converted)
		default:
			dst[id] = value
		}
	}
}

// joinKeys joins constant lookup keys the same way FlatConstants flattens ids.
func joinKeys(keys []string) string {
	return strings.Join(keys, ":")
}

// decodeSingleKey unpacks one single-key mapping node into its id and value
// node. Multiple keys in one entry are a malformed definition.
func decodeSingleKey(node *yaml.Node) (id string, value *yaml.Node, err error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return "", nil, fmt.Errorf("unable to parse definition entry: expected a single-key mapping at line %d", node.Line)
	}
	return node.Content[0].Value, node.Content[1], nil
}

// === Resources ===

// ResourceDef declares a Resource in the definition file.
type ResourceDef struct {
	Type        string   `yaml:"resource_type"`
	Slots       int      `yaml:"slots"`
	UsageTime   int      `yaml:"usage_time"`
	MaxQueue    int      `yaml:"max_queue"`
	Capacity    float64  `yaml:"capacity"`
	StartAmount *float64 `yaml:"start_amount"`
}

// ResourceEntry is one id-keyed resource declaration.
type ResourceEntry struct {
	ID  string
	Def ResourceDef
}

func (e *ResourceEntry) UnmarshalYAML(node *yaml.Node) error {
	id, value, err := decodeSingleKey(node)
	if err != nil {
		return err
	}
	e.ID = id
	return value.Decode(&e.Def)
}

// === Queues ===

// QueueDef declares a Queue in the definition file.
type QueueDef struct {
	Capacity int `yaml:"capacity"`
}

// QueueDefEntry is one id-keyed queue declaration.
type QueueDefEntry struct {
	ID  string
	Def QueueDef
}

func (e *QueueDefEntry) UnmarshalYAML(node *yaml.Node) error {
	id, value, err := decodeSingleKey(node)
	if err != nil {
		return err
	}
	e.ID = id
	return value.Decode(&e.Def)
}

// === Quantities ===

// QuantityDef declares a Quantity in the definition file.
type QuantityDef struct {
	Type            string   `yaml:"quantity_type"`
	StartValue      *float64 `yaml:"start_value"`
	Min             *float64 `yaml:"min"`
	Max             *float64 `yaml:"max"`
	Gather          *bool    `yaml:"gather"`
	DataID          string   `yaml:"data_id"`
	SampleFrequency *int     `yaml:"sample_frequency"`
}

// GatherOrDefault: quantities gather samples unless explicitly disabled.
func (d QuantityDef) GatherOrDefault() bool {
	if d.Gather == nil {
		return true
	}
	return *d.Gather
}

// SampleFrequencyOrDefault: sample every tick unless declared otherwise.
func (d QuantityDef) SampleFrequencyOrDefault() int {
	if d.SampleFrequency == nil {
		return 1
	}
	return *d.SampleFrequency
}

// QuantityEntry is one id-keyed quantity declaration.
type QuantityEntry struct {
	ID  string
	Def QuantityDef
}

func (e *QuantityEntry) UnmarshalYAML(node *yaml.Node) error {
	id, value, err := decodeSingleKey(node)
	if err != nil {
		return err
	}
	e.ID = id
	return value.Decode(&e.Def)
}

// === Generators ===

// GeneratorDef declares a Generator: a keyed list of subsets, each mapping
// record properties to sampler specs.
type GeneratorDef struct {
	// Key names the property that identifies each subset ("illness", ...).
	Key string `yaml:"key"`
	// Subsets each describe one record population.
	Subsets []map[string]SamplerSpec `yaml:"subsets"`
}

// GeneratorEntry is one id-keyed generator declaration.
type GeneratorEntry struct {
	ID  string
	Def GeneratorDef
}

func (e *GeneratorEntry) UnmarshalYAML(node *yaml.Node) error {
	id, value, err := decodeSingleKey(node)
	if err != nil {
		return err
	}
	e.ID = id
	return value.Decode(&e.Def)
}

// === Batches ===

// BatchEntry is one batch declaration: either a "single" list of explicit
// parameter assignments, or a "grid" whose value lists are combined into a
// cartesian product. Expansion lives in variation.go.
type BatchEntry struct {
	Kind   string
	Single []map[string]Value
	Grid   []GridAxis
}

// GridAxis is one grid dimension: an explicit value list or an inclusive
// stepped integer range.
type GridAxis struct {
	Selector string
	Values   []Value
	Range    *GridRange
}

// GridRange is an inclusive [Start, End] integer range with a step.
type GridRange struct {
	Start int
	End   int
	Step  int
}

func (e *BatchEntry) UnmarshalYAML(node *yaml.Node) error {
	kind, value, err := decodeSingleKey(node)
	if err != nil {
		return err
	}
	e.Kind = kind
	switch kind {
	case "single":
		return value.Decode(&e.Single)
	case "grid":
		if value.Kind != yaml.SequenceNode || len(value.Content) == 0 {
			return fmt.Errorf("grid batch at line %d is empty", node.Line)
		}
		// Axes combine across all list items, in declaration order.
		for _, item := range value.Content {
			if item.Kind != yaml.MappingNode {
				return fmt.Errorf("grid batch at line %d: expected a mapping of selectors", item.Line)
			}
			for i := 0; i+1 < len(item.Content); i += 2 {
				axis, err := decodeGridAxis(item.Content[i].Value, *item.Content[i+1])
				if err != nil {
					return err
				}
				e.Grid = append(e.Grid, axis)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown batch type %q at line %d", kind, node.Line)
}

func decodeGridAxis(selector string, node yaml.Node) (GridAxis, error) {
	axis := GridAxis{Selector: selector}
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&axis.Values); err != nil {
			return axis, err
		}
		return axis, nil
	case yaml.MappingNode:
		var spec struct {
			Range []int `yaml:"range"`
			Step  int   `yaml:"step"`
		}
		if err := node.Decode(&spec); err != nil {
			return axis, err
		}
		if len(spec.Range) != 2 {
			return axis, fmt.Errorf("invalid range for grid batch: %q needs [start, end]", selector)
		}
		step := spec.Step
		if step == 0 {
			step = 1
		}
		axis.Range = &GridRange{Start: spec.Range[0], End: spec.Range[1], Step: step}
		return axis, nil
	}
	return axis, fmt.Errorf("invalid range for grid batch: %q", selector)
}
