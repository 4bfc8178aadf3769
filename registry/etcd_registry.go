package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// etcd stores the printer phonebook:
//
//	Key:   /form2/printers/{name}/{addr}
//	Value: JSON-encoded PrinterInstance
//
// Entries are attached to a TTL lease that is kept alive while the
// registering process runs. A crashed simulator or bridge disappears from
// discovery once its lease expires.
const keyPrefix = "/form2/printers/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // Thread-safe, shared across goroutines
	logger *zap.Logger
}

// NewEtcdRegistry connects to the given endpoints. The zap logger is handed
// to the etcd client as well; nil means no logging.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd: %w", err)
	}
	return &EtcdRegistry{client: c, logger: logger}, nil
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

func printerKey(name, addr string) string {
	return keyPrefix + name + "/" + addr
}

func printerPrefix(name string) string {
	return keyPrefix + name + "/"
}

// Register stores instance under name with a TTL lease and keeps the lease
// alive until the client is closed.
//
// The lease ID stays local so one EtcdRegistry can register many printers.
func (r *EtcdRegistry) Register(ctx context.Context, name string, instance PrinterInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("registry: grant lease: %w", err)
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	if _, err := r.client.Put(ctx, printerKey(name, instance.Addr), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("registry: put %s: %w", name, err)
	}

	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return fmt.Errorf("registry: keepalive %s: %w", name, err)
	}

	// Drain KeepAlive responses so the channel never fills up
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("printer", name), zap.String("addr", instance.Addr))
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, name string, addr string) error {
	if _, err := r.client.Delete(ctx, printerKey(name, addr)); err != nil {
		return fmt.Errorf("registry: delete %s: %w", name, err)
	}
	return nil
}

// Discover returns every instance currently registered under name.
func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]PrinterInstance, error) {
	resp, err := r.client.Get(ctx, printerPrefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: get %s: %w", name, err)
	}

	instances := make([]PrinterInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance PrinterInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed registry entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return instances, nil
}
