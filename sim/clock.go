package sim

// TimeBase holds the tick counter and its conversion to simulated time.
// One tick is the atomic scheduling unit; Tpu (ticks per time unit) converts
// tick counts to time in TimeUnit. The invariant Time == Ticks/Tpu holds after
// every advance, and TickTime == 1/Tpu.
type TimeBase struct {
	// Ticks elapsed in the current simulation.
	Ticks int64
	// Time elapsed in the current simulation, in units of TimeUnit.
	Time float64
	// EndTick is the tick count at which the simulation ends, unless 0
	// (run until stopped externally).
	EndTick int64
	// TimeUnit names the simulated time unit ("seconds", "hours", ...).
	TimeUnit string
	// Tpu is the number of ticks per simulated time unit.
	Tpu float64
	// TickTime is the duration of one tick in time units (1/Tpu). Also the
	// real-time sleep per tick when pacing in realtime mode.
	TickTime float64
}

// setRate fixes the tick rate and resets the counters for a fresh run.
func (tb *TimeBase) setRate(tpu float64, endTick int64) {
	if tpu > 0 {
		tb.Tpu = tpu
	}
	if tb.Tpu <= 0 {
		tb.Tpu = 10.0
	}
	tb.Ticks = 0
	tb.Time = 0.0
	tb.TickTime = 1.0 / tb.Tpu
	if endTick > 0 {
		tb.EndTick = endTick
	}
}

// advance moves the clock forward by exactly one tick.
func (tb *TimeBase) advance() {
	tb.Ticks++
	tb.Time = float64(tb.Ticks) / tb.Tpu
}

// endReached reports whether the configured end tick has been hit.
func (tb *TimeBase) endReached() bool {
	return tb.EndTick > 0 && tb.Ticks >= tb.EndTick
}
