package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdAPI is the subset of *clientv3.Client the resolver uses.
type etcdAPI interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	KeepAliveOnce(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	Close() error
}

// EtcdResolver stores and looks up Device entries in etcd.
//
// Thread-safety: All methods are safe for concurrent use.
type EtcdResolver struct {
	client    etcdAPI
	namespace string
	ttl       int

	mu         sync.Mutex
	leases     map[string]clientv3.LeaseID
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// NewEtcdResolver connects to etcd and verifies connectivity.
func NewEtcdResolver(cfg Config) (*EtcdResolver, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("discovery endpoints cannot be empty")
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
	}

	tlsCfg, err := clientTLS(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	clientCfg.TLS = tlsCfg

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return newEtcdResolver(cli, cfg.Namespace, cfg.TTL), nil
}

func newEtcdResolver(client etcdAPI, namespace string, ttl int) *EtcdResolver {
	if namespace == "" {
		namespace = "thunder"
	}
	if ttl <= 0 {
		ttl = 30
	}
	return &EtcdResolver{
		client:     client,
		namespace:  strings.Trim(namespace, "/"),
		ttl:        ttl,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}
}

// Register writes dev under a lease and keeps the lease alive until
// Deregister or Close. Registering an existing name replaces the entry.
func (r *EtcdResolver) Register(ctx context.Context, dev Device) error {
	if dev.Name == "" || dev.Host == "" {
		return fmt.Errorf("device name and host are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("discovery client is closed")
	}

	if cancel, ok := r.cancelFns[dev.Name]; ok {
		cancel()
		delete(r.cancelFns, dev.Name)
	}

	lease, err := r.client.Grant(ctx, int64(r.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	if dev.RegisteredAt.IsZero() {
		dev.RegisteredAt = time.Now()
	}
	data, err := json.Marshal(dev)
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}

	if _, err := r.client.Put(ctx, r.key(dev.Name), string(data), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}

	r.leases[dev.Name] = lease.ID

	kaCtx, cancel := context.WithCancel(context.Background())
	r.cancelFns[dev.Name] = cancel
	r.wg.Add(1)
	go r.keepalive(kaCtx, lease.ID, dev.Name)

	return nil
}

// Deregister removes the entry for name and revokes its lease. Unknown
// names are a no-op.
func (r *EtcdResolver) Deregister(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("discovery client is closed")
	}

	if cancel, ok := r.cancelFns[name]; ok {
		cancel()
		delete(r.cancelFns, name)
	}

	leaseID, ok := r.leases[name]
	if !ok {
		return nil
	}
	delete(r.leases, name)

	if _, err := r.client.Revoke(ctx, leaseID); err != nil {
		if _, derr := r.client.Delete(ctx, r.key(name)); derr != nil {
			return fmt.Errorf("failed to deregister device: %w", err)
		}
	}
	return nil
}

// Resolve returns the entry for name or ErrNotFound.
func (r *EtcdResolver) Resolve(ctx context.Context, name string) (Device, error) {
	if err := r.checkOpen(); err != nil {
		return Device{}, err
	}

	resp, err := r.client.Get(ctx, r.key(name))
	if err != nil {
		return Device{}, fmt.Errorf("failed to resolve device %s: %w", name, err)
	}
	if len(resp.Kvs) == 0 {
		return Device{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	var dev Device
	if err := json.Unmarshal(resp.Kvs[0].Value, &dev); err != nil {
		return Device{}, fmt.Errorf("invalid entry for device %s: %w", name, err)
	}
	return dev, nil
}

// List returns every device in the namespace sorted by name. Entries that
// fail to parse are skipped.
func (r *EtcdResolver) List(ctx context.Context) ([]Device, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	resp, err := r.client.Get(ctx, r.prefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]Device, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var dev Device
		if err := json.Unmarshal(kv.Value, &dev); err != nil {
			continue
		}
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// Close stops keepalives and closes the etcd client.
func (r *EtcdResolver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	for _, cancel := range r.cancelFns {
		cancel()
	}
	r.cancelFns = make(map[string]context.CancelFunc)

	close(r.closedChan)
	r.mu.Unlock()

	r.wg.Wait()
	return r.client.Close()
}

func (r *EtcdResolver) checkOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("discovery client is closed")
	}
	return nil
}

// keepalive renews the lease every TTL/3 until cancelled or the lease is lost.
func (r *EtcdResolver) keepalive(ctx context.Context, leaseID clientv3.LeaseID, name string) {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Duration(r.ttl) * time.Second / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closedChan:
			return
		case <-ticker.C:
			if _, err := r.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				r.mu.Lock()
				if r.leases[name] == leaseID {
					delete(r.leases, name)
					delete(r.cancelFns, name)
				}
				r.mu.Unlock()
				return
			}
		}
	}
}

func (r *EtcdResolver) prefix() string {
	return fmt.Sprintf("/%s/devices/", r.namespace)
}

func (r *EtcdResolver) key(name string) string {
	return r.prefix() + name
}
