package registry

import (
	"context"
	"fmt"
	"sync"
)

// StaticRegistry keeps printers in memory. It is seeded from the config file
// and needs no external service. TTLs are ignored.
type StaticRegistry struct {
	mu        sync.RWMutex
	instances map[string][]PrinterInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{instances: make(map[string][]PrinterInstance)}
}

func (r *StaticRegistry) Register(_ context.Context, name string, instance PrinterInstance, _ int64) error {
	if name == "" || instance.Addr == "" {
		return fmt.Errorf("registry: name and addr are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	insts := r.instances[name]
	for i, inst := range insts {
		if inst.Addr == instance.Addr {
			insts[i] = instance
			return nil
		}
	}
	r.instances[name] = append(insts, instance)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, name string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	insts := r.instances[name]
	for i, inst := range insts {
		if inst.Addr == addr {
			r.instances[name] = append(insts[:i:i], insts[i+1:]...)
			break
		}
	}
	if len(r.instances[name]) == 0 {
		delete(r.instances, name)
	}
	return nil
}

// Discover returns a copy of the instances registered under name, or
// ErrNotFound when there are none.
func (r *StaticRegistry) Discover(_ context.Context, name string) ([]PrinterInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	insts := r.instances[name]
	if len(insts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]PrinterInstance(nil), insts...), nil
}
