package client

import (
	"context"
	"errors"

	"form2idle/loadbalance"
	"form2idle/registry"
	"form2idle/transport"
)

// Resolve turns a printer name into an address. Registries are consulted in
// order; the first that knows the name wins and bal picks among its
// addresses. A name no registry knows is used as a host name or IP.
func Resolve(ctx context.Context, name string, bal loadbalance.Balancer, regs ...registry.Registry) (string, error) {
	for _, reg := range regs {
		if reg == nil {
			continue
		}
		instances, err := reg.Discover(ctx, name)
		if errors.Is(err, registry.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		inst, err := bal.Pick(instances)
		if err != nil {
			return "", err
		}
		return transport.Address(inst.Addr), nil
	}
	return transport.Address(name), nil
}
