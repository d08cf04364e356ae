package resources

import (
	"context"
	"strconv"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
)

// utilizationKeyPrefix mirrors the six keys a separate cluster-capacity
// updater maintains: resources:{cpu,memory,gpu}:{utilization,availability}.
const utilizationKeyPrefix = "resources:"

// ReadClusterPressure reads the three live utilization gauges the
// capacity updater publishes, defaulting any missing or unparsable
// dimension to 0 (no pressure) rather than failing the allocation.
func ReadClusterPressure(ctx context.Context, store kvstore.Store) ClusterPressure {
	return ClusterPressure{
		CPUUtilization: readUtilization(ctx, store, "cpu"),
		MemUtilization: readUtilization(ctx, store, "memory"),
		GPUUtilization: readUtilization(ctx, store, "gpu"),
	}
}

func readUtilization(ctx context.Context, store kvstore.Store, dimension string) float64 {
	raw, ok, err := store.Get(ctx, utilizationKeyPrefix+dimension+":utilization")
	if err != nil || !ok {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
