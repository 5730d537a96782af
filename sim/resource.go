package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// UseResult is the outcome of a resource usage attempt. All outcomes other
// than UseSuccess are expected steady-state conditions that the caller must
// branch on; they are never raised as errors.
type UseResult int

const (
	// UseSuccess: the slot was taken or the amount was debited.
	UseSuccess UseResult = iota
	// UseDepleted: the amount pool is exactly empty.
	UseDepleted
	// UseInsufficient: the pool holds some amount, but less than requested.
	// The pool is never mutated by an insufficient request.
	UseInsufficient
	// UseQueued: the resource could not serve the user, who was accepted by
	// the overflow queue instead.
	UseQueued
	// UseInUse: all slots are taken and no queue accepted the user.
	UseInUse
)

func (r UseResult) String() string {
	switch r {
	case UseSuccess:
		return "Success"
	case UseDepleted:
		return "Failed: Resource depleted"
	case UseInsufficient:
		return "Failed: Insufficient amount available"
	case UseQueued:
		return "Queued"
	case UseInUse:
		return "Failed: Resource in use"
	}
	return fmt.Sprintf("UseResult(%d)", int(r))
}

// ResourceConfig carries the constructor parameters of a Resource.
type ResourceConfig struct {
	// Type identifies the kind of resource in the pool ("bed", "fuel", ...).
	// Defaults to the resource id.
	Type string
	// Slots is the number of possible simultaneous users. Defaults to 1 for
	// slot-based resources; a resource with a StartAmount and Slots 0 is a
	// pure amount pool.
	Slots int
	// UsageTime is the default number of ticks one use occupies a slot.
	// Defaults to 1.
	UsageTime int
	// MaxQueue, when positive, attaches a bounded overflow queue so users can
	// wait for the resource without a separate waiting state of their own.
	MaxQueue int
	// Capacity is the optional maximum of the amount pool (0 = no maximum).
	Capacity float64
	// StartAmount, when non-nil, makes this an amount-based resource holding
	// the given starting amount.
	StartAmount *float64
}

// Resource is a contention point in the simulation: a storage location for an
// amount of things, an item/tool/machine usable by a limited number of users,
// or a documented composition of both (subclass-style wrappers can combine
// the slot protocol with an amount pool).
//
// A Resource with a nil amount pool behaves as purely slot-based. Using an
// amount-based resource without requesting an amount is a programmer error and
// panics.
type Resource struct {
	world        *World
	id           string
	resourceType string

	slots     int
	usageTime int
	users     []*Entity
	timeLeft  []int

	queue *Queue

	hasPool  bool
	amount   float64
	capacity float64

	// ChangedTick records the last tick the amount mutated, for on-change
	// sampling.
	ChangedTick int64

	// TickUsage, when set, replaces the built-in flat countdown to model
	// variable or stochastic service times. It must return false exactly when
	// the user's usage ends, after deregistering the user via Release.
	TickUsage func(user *Entity) bool
}

// NewResource creates a resource and registers it with the world. See
// ResourceConfig for the parameter semantics; a config with neither slots nor
// a starting amount defaults to a single-slot resource.
func NewResource(w *World, id string, cfg ResourceConfig) *Resource {
	if w == nil {
		panic("NewResource: world must not be nil")
	}
	if cfg.Type == "" {
		cfg.Type = id
	}
	if cfg.Slots == 0 && cfg.StartAmount == nil {
		cfg.Slots = 1
	}
	if cfg.UsageTime <= 0 {
		cfg.UsageTime = 1
	}
	r := &Resource{
		world:        w,
		id:           id,
		resourceType: cfg.Type,
		slots:        cfg.Slots,
		usageTime:    cfg.UsageTime,
		capacity:     cfg.Capacity,
	}
	if cfg.StartAmount != nil {
		r.hasPool = true
		r.amount = *cfg.StartAmount
	}
	if cfg.MaxQueue > 0 {
		r.queue = NewQueue(w, id+".queue", cfg.MaxQueue)
	}
	w.Add(r)
	return r
}

// ID returns the resource's identifier, unique within its world.
func (r *Resource) ID() string { return r.id }

// Type returns the resource type identifier.
func (r *Resource) Type() string { return r.resourceType }

// Slots returns the number of concurrent-usage slots.
func (r *Resource) Slots() int { return r.slots }

// Queue returns the attached overflow queue, or nil.
func (r *Resource) Queue() *Queue { return r.queue }

// Users returns the entities currently occupying slots. The returned slice is
// the resource's internal storage; callers must not modify it.
func (r *Resource) Users() []*Entity { return r.users }

// Occupied reports whether every slot is taken.
func (r *Resource) Occupied() bool {
	return len(r.users) >= r.slots
}

// Amount returns the pool amount; ok is false for a resource without a pool.
func (r *Resource) Amount() (amount float64, ok bool) {
	return r.amount, r.hasPool
}

// UseOptions refines a single use attempt.
type UseOptions struct {
	// Amount to debit from the pool. Required for amount-based resources,
	// ignored by slot-based ones.
	Amount *float64
	// UsageTime overrides the resource's default slot occupation time for
	// this use (0 = default).
	UsageTime int
	// FromQueue, when set, drops the user's entry from that queue after a
	// successful use. This is the retry path for users who were queued.
	FromQueue *Queue
}

// Amt is a convenience for building UseOptions with a requested amount.
func Amt(v float64) *float64 { return &v }

// TryUse attempts to use the resource: taking the requested amount if this is
// an amount-based resource, or occupying a slot otherwise. A user occupying a
// slot is switched into a UsingResourceState and counted down every tick.
//
// The outcome is returned as a UseResult; see the constants for the exact
// contract. Amount-based use without a requested amount panics: that is a
// domain-model bug, not a runtime condition.
func (r *Resource) TryUse(user *Entity, opts UseOptions) UseResult {
	if user == nil {
		panic("TryUse: user must not be nil")
	}

	if r.hasPool {
		if opts.Amount == nil {
			panic(fmt.Sprintf("Resource %s: %s is trying to use an amount-based resource without a requested amount", r.id, user))
		}
		requested := *opts.Amount
		if requested > r.amount {
			if r.queue != nil && r.queue.Enqueue(user, opts.Amount) {
				return UseQueued
			}
			if r.amount == 0 {
				return UseDepleted
			}
			return UseInsufficient
		}
		r.amount -= requested
		r.stamp()
		r.served(user, opts.FromQueue)
		logrus.Debugf("%s took %v from Resource %s (%v left)", user, requested, r.id, r.amount)
		return UseSuccess
	}

	if !r.Occupied() {
		usage := opts.UsageTime
		if usage <= 0 {
			usage = r.usageTime
		}
		r.users = append(r.users, user)
		r.timeLeft = append(r.timeLeft, usage)
		r.stamp()
		user.SetState(NewUsingResourceState(r))
		r.served(user, opts.FromQueue)
		logrus.Debugf("%s occupies Resource %s for %d ticks", user, r.id, usage)
		return UseSuccess
	}

	if r.queue != nil && r.queue.Enqueue(user, opts.Amount) {
		return UseQueued
	}
	return UseInUse
}

// served finalizes a successful attempt by removing the user's stale entry
// from the queue it was waiting in, if any.
func (r *Resource) served(user *Entity, from *Queue) {
	if from != nil {
		from.RemoveEntity(user)
	}
}

// UsageTick counts one tick of usage for a slot user, deregistering it once
// its usage time runs out. Returns false exactly when the usage ended (the
// slot is free again). Resources with a TickUsage override delegate to it.
func (r *Resource) UsageTick(user *Entity) bool {
	if r.TickUsage != nil {
		return r.TickUsage(user)
	}
	idx := r.indexOf(user)
	if idx < 0 {
		panic(fmt.Sprintf("Resource %s: UsageTick for %s, which holds no slot", r.id, user))
	}
	r.timeLeft[idx]--
	if r.timeLeft[idx] <= 0 {
		r.release(idx)
		return false
	}
	return true
}

// Release frees the slot held by the given user before its usage time is up.
// Returns false if the user held no slot.
func (r *Resource) Release(user *Entity) bool {
	idx := r.indexOf(user)
	if idx < 0 {
		return false
	}
	r.release(idx)
	return true
}

func (r *Resource) release(idx int) {
	r.users = append(r.users[:idx], r.users[idx+1:]...)
	r.timeLeft = append(r.timeLeft[:idx], r.timeLeft[idx+1:]...)
	r.stamp()
}

func (r *Resource) indexOf(user *Entity) int {
	for i, u := range r.users {
		if u == user {
			return i
		}
	}
	return -1
}

// Add credits (or with a negative delta debits) the amount pool, clamped to
// [0, capacity]. A no-op on a resource without a pool, matching the rule that
// arithmetic on an absent value never silently manufactures one.
func (r *Resource) Add(delta float64) {
	if !r.hasPool {
		return
	}
	r.amount += delta
	if r.amount < 0 {
		r.amount = 0
	}
	if r.capacity > 0 && r.amount > r.capacity {
		r.amount = r.capacity
	}
	r.stamp()
}

func (r *Resource) stamp() {
	r.ChangedTick = r.world.Ticks
}

func (r *Resource) String() string {
	if r.id == r.resourceType {
		return fmt.Sprintf("Resource %s", r.id)
	}
	return fmt.Sprintf("Resource %s of type %s", r.id, r.resourceType)
}

// UsingResourceState is the state an Entity is in while occupying a Resource
// slot. Each tick it counts down the usage; when the resource signals
// completion it marks itself CompletionDone and clears the entity's behavior,
// so the entity naturally falls out of the using-state next tick.
type UsingResourceState struct {
	StateCore
	Resource *Resource
}

// NewUsingResourceState creates the using-state for the given resource.
func NewUsingResourceState(r *Resource) *UsingResourceState {
	return &UsingResourceState{
		StateCore: NewTaskStateCore(fmt.Sprintf("using %s", r.id)),
		Resource:  r,
	}
}

// Tick uses the resource for one tick.
func (s *UsingResourceState) Tick() {
	e := s.Entity()
	if e == nil {
		panic("UsingResourceState: no entity bound")
	}
	if !s.Resource.UsageTick(e) {
		s.SetCompleted(CompletionDone)
		e.SetState(nil)
	}
}
