package sim

// Completion is the tri-state completion marker of a State: most states do not
// represent a completable task at all (CompletionNone); those that do start as
// CompletionPending and end as CompletionDone.
type Completion int8

const (
	// CompletionNone marks a state that does not represent a completable task.
	CompletionNone Completion = iota
	// CompletionPending marks a task-like state that has not finished yet.
	CompletionPending
	// CompletionDone marks a task-like state that has finished.
	CompletionDone
)

// State is one Entity's behavior for one tick. Implementations embed StateCore
// and override Tick; the Tick body always observes a stable state membership
// for the whole of one simulated tick, because transitions requested during a
// tick take effect only at the start of the following tick.
//
// A State instance belongs to exactly one Entity once bound. Binding a State
// that already belongs to a different Entity panics.
type State interface {
	// Tick executes the behavior of the bound entity for one tick.
	Tick()
	// Core returns the shared bookkeeping embedded in every State.
	Core() *StateCore
}

// StateCore carries the bookkeeping every State needs: a descriptive name, the
// completion marker and the owning entity. Embed it by value.
type StateCore struct {
	name      string
	completed Completion
	entity    *Entity
}

// NewStateCore creates the embeddable core for a state with CompletionNone.
func NewStateCore(name string) StateCore {
	return StateCore{name: name}
}

// NewTaskStateCore creates the embeddable core for a completable (task-like)
// state, starting as CompletionPending.
func NewTaskStateCore(name string) StateCore {
	return StateCore{name: name, completed: CompletionPending}
}

// Core returns the state's bookkeeping; this is what makes an embedder a State.
func (c *StateCore) Core() *StateCore { return c }

// Tick is the default no-behavior tick. Override in the embedding state.
func (c *StateCore) Tick() {}

// Name returns the descriptive name of the state.
func (c *StateCore) Name() string { return c.name }

// Entity returns the entity this state is bound to, or nil before binding.
func (c *StateCore) Entity() *Entity { return c.entity }

// Completed returns the completion marker of the state.
func (c *StateCore) Completed() Completion { return c.completed }

// SetCompleted updates the completion marker of the state.
func (c *StateCore) SetCompleted(completion Completion) { c.completed = completion }

// stateName is a nil-safe name accessor for transition logging.
func stateName(s State) string {
	if s == nil {
		return "None"
	}
	return s.Core().name
}
