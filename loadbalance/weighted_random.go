package loadbalance

import (
	"math/rand/v2"

	"form2idle/registry"
)

// WeightedRandomBalancer picks an address with probability proportional to
// its weight. Weights below 1 count as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.PrinterInstance) (*registry.PrinterInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += weightOf(v)
	}

	r := rand.IntN(totalWeight)
	for i := range instances {
		r -= weightOf(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "weighted_random"
}

func weightOf(inst registry.PrinterInstance) int {
	if inst.Weight < 1 {
		return 1
	}
	return inst.Weight
}
