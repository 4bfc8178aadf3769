package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// newTestEtcd connects to a local etcd or skips the test. The etcd client
// logs from its own goroutines after the test returns, so no zaptest here.
func newTestEtcd(t *testing.T) *EtcdRegistry {
	t.Helper()
	reg, err := NewEtcdRegistry([]string{"127.0.0.1:2379"}, time.Second, zap.NewNop())
	if err != nil {
		t.Skipf("etcd not available: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.client.Status(ctx, "127.0.0.1:2379"); err != nil {
		t.Skipf("etcd not available: %v", err)
	}
	return reg
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg := newTestEtcd(t)
	ctx := context.Background()
	name := "test-" + t.Name()

	inst1 := PrinterInstance{Addr: "127.0.0.1:8001", Weight: 10, Model: "Form 2"}
	inst2 := PrinterInstance{Addr: "127.0.0.1:8002", Weight: 5, Model: "Form 2"}

	if err := reg.Register(ctx, name, inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, name, inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister(ctx, name, inst1.Addr); err != nil {
		t.Fatal(err)
	}

	instances, err = reg.Discover(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expect 1 instance after deregister, got %d", len(instances))
	}
	if instances[0].Addr != inst2.Addr {
		t.Fatalf("expect %s, got %s", inst2.Addr, instances[0].Addr)
	}

	if err := reg.Deregister(ctx, name, inst2.Addr); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Discover(ctx, name); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound, got %v", err)
	}
}
