// Package loadbalance picks one endpoint when a printer is known under
// several addresses.
//
// Two strategies are implemented:
//   - RoundRobin:      spread successive connections over every address
//   - WeightedRandom:  prefer addresses with a higher weight (e.g. wired over Wi-Fi)
package loadbalance

import (
	"errors"
	"fmt"

	"form2idle/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects a target before a connection is opened.
type Balancer interface {
	// Pick selects one instance from the available list. Must be goroutine-safe.
	Pick(instances []registry.PrinterInstance) (*registry.PrinterInstance, error)

	// Name returns the strategy name (for logging/config).
	Name() string
}

// ByName returns the balancer configured under name. Empty selects weighted random.
func ByName(name string) (Balancer, error) {
	switch name {
	case "", "weighted", "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "round_robin", "roundrobin":
		return &RoundRobinBalancer{}, nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
	}
}
