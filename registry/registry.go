// Package registry maps printer names to network endpoints.
//
// A printer may be reachable under several addresses (wired and Wi-Fi), so a
// name resolves to a list of instances and a loadbalance.Balancer picks one.
package registry

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("registry: printer not found")

type PrinterInstance struct {
	Addr   string `json:"addr"`
	Weight int    `json:"weight"` // Preference when several addresses are known
	Model  string `json:"model,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, name string, instance PrinterInstance, ttl int64) error
	Deregister(ctx context.Context, name string, addr string) error
	Discover(ctx context.Context, name string) ([]PrinterInstance, error)
}
