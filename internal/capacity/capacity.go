// Package capacity turns a person's committed workload into a utilization
// tier and an over-capacity flag. All functions are pure; the thresholds are
// policy constants, not derived values.
package capacity

// Tier buckets available capacity into a utilization level.
type Tier string

const (
	TierHealthy  Tier = "healthy"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// Tier thresholds on available capacity, in percentage points.
const (
	healthyMin  = 30
	moderateMin = 15
	highMin     = 5
)

// Bounds for the workload contributed by a single chair assignment.
const (
	MinIncrement = 1
	MaxIncrement = 20
)

// Available returns the capacity a person has left given their base workload.
func Available(baseUsed int) int {
	return 100 - baseUsed
}

// TierFor buckets available capacity into a tier.
func TierFor(available int) Tier {
	switch {
	case available >= healthyMin:
		return TierHealthy
	case available >= moderateMin:
		return TierModerate
	case available >= highMin:
		return TierHigh
	default:
		return TierCritical
	}
}

// Projection is the result of adding a proposed increase to a current workload.
// OverCapacity is a warning for the caller, never a hard block.
type Projection struct {
	Projected    int  `json:"projected"`
	OverCapacity bool `json:"over_capacity"`
}

// Project adds a proposed increase to the current workload.
func Project(current, increase int) Projection {
	projected := current + increase
	return Projection{Projected: projected, OverCapacity: projected > 100}
}

// ClampIncrement bounds a per-assignment workload increment to [MinIncrement,
// MaxIncrement]. Callers must clamp before any value reaches the ledger.
func ClampIncrement(v int) int {
	if v < MinIncrement {
		return MinIncrement
	}
	if v > MaxIncrement {
		return MaxIncrement
	}
	return v
}
