// Package resources implements the resource allocator: static
// per-tier resource tables with live cluster-pressure downgrade logic
// by priority and subscription tier. Tables follow the same
// map[Key]Config + GetXxx() default-filling idiom as
// Lens/modules/core/pkg/config/config.go.
package resources

import "github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/quality"

// Priority is a task's scheduling priority, selecting both the
// scheduler's lane and the resource allocator's downgrade behavior.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityBatch  Priority = "batch"
)

// SubscriptionTier bounds which quality tiers a caller may request and
// forces an allocation floor under pressure.
type SubscriptionTier string

const (
	SubscriptionFree     SubscriptionTier = "free"
	SubscriptionStandard SubscriptionTier = "standard"
	SubscriptionPremium  SubscriptionTier = "premium"
)

// AllowedTiers returns the quality tiers a subscription tier may
// request, highest first.
func AllowedTiers(sub SubscriptionTier) []quality.Tier {
	switch sub {
	case SubscriptionPremium:
		return []quality.Tier{quality.TierHigh, quality.TierMedium, quality.TierLow}
	case SubscriptionStandard:
		return []quality.Tier{quality.TierMedium, quality.TierLow}
	default:
		return []quality.Tier{quality.TierLow}
	}
}

// ValidateQualityForSubscription reports whether sub may request tier.
func ValidateQualityForSubscription(tier quality.Tier, sub SubscriptionTier) bool {
	for _, t := range AllowedTiers(sub) {
		if t == tier {
			return true
		}
	}
	return false
}

// HighestAllowedQuality returns the best tier sub may request.
func HighestAllowedQuality(sub SubscriptionTier) quality.Tier {
	return AllowedTiers(sub)[0]
}

// Allocation is the resource shape granted to a task.
type Allocation struct {
	CPUMillis    int64
	MemoryMiB    int64
	GPUCount     int
	NodeSelector map[string]string
	Downgraded   bool
}

// Tier is a static resource table entry keyed by quality tier.
type Tier struct {
	CPUMillis    int64
	MemoryMiB    int64
	GPUCount     int
	NodeSelector map[string]string
}

// ClusterPressure is the live per-dimension utilization signal the
// allocator downgrades against. A dimension is "under pressure" above
// 0.8.
type ClusterPressure struct {
	CPUUtilization float64 // 0..1
	MemUtilization float64 // 0..1
	GPUUtilization float64 // 0..1
}

const pressureThreshold = 0.8

const (
	cpuFloorMillis   = 100
	memFloorMiBSmall = 256  // floor when the base row's unit was Mi
	memFloorMiBLarge = 1024 // floor when the base row's unit was Gi (1 GiB)
)

var cpuOptimizedSelector = map[string]string{"node-type": "cpu-optimized"}

// tierTable is the static allocation table, one row per quality tier.
var tierTable = map[quality.Tier]Tier{
	quality.TierLow: {
		CPUMillis: 500, MemoryMiB: 2048, GPUCount: 0,
		NodeSelector: cpuOptimizedSelector,
	},
	quality.TierMedium: {
		CPUMillis: 2000, MemoryMiB: 8192, GPUCount: 1,
		NodeSelector: map[string]string{"node-type": "gpu-optimized", "gpu-type": "t4"},
	},
	quality.TierHigh: {
		CPUMillis: 4000, MemoryMiB: 16384, GPUCount: 2,
		NodeSelector: map[string]string{"node-type": "gpu-optimized", "gpu-type": "a100"},
	},
}

// priorityValueTable maps (tier, subscription) to the priority-class
// name the orchestrator adapter's workflow dispatch uses.
var priorityValueTable = map[quality.Tier]string{
	quality.TierHigh:   "system-critical",
	quality.TierMedium: "interactive",
	quality.TierLow:    "low-priority-batch",
}

// PriorityValueFor returns the priority-class name for a quality tier,
// used by the orchestrator's priority-class selection.
func PriorityValueFor(tier quality.Tier, sub SubscriptionTier) string {
	if sub == SubscriptionFree {
		return priorityValueTable[quality.TierLow]
	}
	if name, ok := priorityValueTable[tier]; ok {
		return name
	}
	return priorityValueTable[quality.TierLow]
}

// Allocator allocates resources for a task given its quality tier,
// priority, subscription tier, and the cluster's current pressure.
type Allocator struct {
	tiers map[quality.Tier]Tier
}

func New() *Allocator {
	return &Allocator{tiers: tierTable}
}

// Allocate implements the allocation algorithm: start from the tier's
// base row, then scale individual dimensions under pressure according
// to priority, with a free-subscription override that forces the low
// tier and drops GPU whenever any dimension is under pressure.
func (a *Allocator) Allocate(tier quality.Tier, priority Priority, sub SubscriptionTier, pressure ClusterPressure) Allocation {
	anyPressure := pressure.CPUUtilization > pressureThreshold ||
		pressure.MemUtilization > pressureThreshold ||
		pressure.GPUUtilization > pressureThreshold

	if sub == SubscriptionFree && anyPressure {
		low := a.tiers[quality.TierLow]
		return Allocation{
			CPUMillis:    low.CPUMillis,
			MemoryMiB:    low.MemoryMiB,
			GPUCount:     0,
			NodeSelector: cpuOptimizedSelector,
			Downgraded:   true,
		}
	}

	base := a.tiers[tier]
	alloc := Allocation{
		CPUMillis:    base.CPUMillis,
		MemoryMiB:    base.MemoryMiB,
		GPUCount:     base.GPUCount,
		NodeSelector: base.NodeSelector,
	}

	switch priority {
	case PriorityHigh:
		// never downgraded
		return alloc

	case PriorityMedium:
		if pressure.CPUUtilization > pressureThreshold {
			alloc.CPUMillis = scaleFloorCPU(alloc.CPUMillis, 0.75)
			alloc.Downgraded = true
		}
		if pressure.MemUtilization > pressureThreshold {
			alloc.MemoryMiB = scaleFloorMem(alloc.MemoryMiB, 0.75)
			alloc.Downgraded = true
		}
		if pressure.GPUUtilization > pressureThreshold && alloc.GPUCount > 0 {
			alloc.Downgraded = true
		}

	case PriorityLow, PriorityBatch:
		if pressure.CPUUtilization > pressureThreshold {
			alloc.CPUMillis = scaleFloorCPU(alloc.CPUMillis, 0.5)
			alloc.Downgraded = true
		}
		if pressure.MemUtilization > pressureThreshold {
			alloc.MemoryMiB = scaleFloorMem(alloc.MemoryMiB, 0.5)
			alloc.Downgraded = true
		}
		if pressure.GPUUtilization > pressureThreshold {
			alloc.Downgraded = true
			if tier != quality.TierHigh {
				alloc.GPUCount = 0
				alloc.NodeSelector = cpuOptimizedSelector
			}
		}
	}

	return alloc
}

func scaleFloorCPU(millis int64, factor float64) int64 {
	scaled := int64(float64(millis) * factor)
	if scaled < cpuFloorMillis {
		return cpuFloorMillis
	}
	return scaled
}

// scaleFloorMem scales a MiB-denominated quantity, flooring at 1 GiB
// for rows that started at or above 1 GiB and at 256 Mi otherwise,
// mirroring the source's distinct Gi/Mi floors.
func scaleFloorMem(mib int64, factor float64) int64 {
	scaled := int64(float64(mib) * factor)
	floor := int64(memFloorMiBSmall)
	if mib >= memFloorMiBLarge {
		floor = memFloorMiBLarge
	}
	if scaled < floor {
		return floor
	}
	return scaled
}
