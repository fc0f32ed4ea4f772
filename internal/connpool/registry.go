package connpool

import (
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options controls how each pooled client is configured.
type Options struct {
	MaxConnections int
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
}

// Registry maps a backend endpoint URI to a shared *redis.Client.
// Clients manage their own internal connection pools, so two stores built
// against the same URI share the exact same pool.
type Registry struct {
	mutex sync.RWMutex
	pools map[string]*redis.Client
	opts  Options
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		pools: make(map[string]*redis.Client),
		opts:  opts,
	}
}

// Get returns the pooled client for the endpoint, creating one on first use.
// The endpoint is a URI of the form scheme://host:port/db-index.
func (r *Registry) Get(endpoint string) (*redis.Client, error) {
	r.mutex.RLock()
	client, exists := r.pools[endpoint]
	r.mutex.RUnlock()

	if exists {
		return client, nil
	}

	opt, err := redis.ParseURL(endpoint)
	if err != nil {
		return nil, err
	}

	opt.PoolSize = r.opts.MaxConnections
	opt.DialTimeout = r.opts.ConnectTimeout
	opt.ReadTimeout = r.opts.SocketTimeout
	opt.WriteTimeout = r.opts.SocketTimeout
	// One shot per call; the retry layer owns retries.
	opt.MaxRetries = -1

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if client, exists = r.pools[endpoint]; exists {
		return client, nil
	}

	client = redis.NewClient(opt)
	r.pools[endpoint] = client
	return client, nil
}

// Size returns the number of distinct endpoint pools.
func (r *Registry) Size() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.pools)
}

// Reset closes every pooled client and empties the registry.
// Intended for test isolation and process shutdown.
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, client := range r.pools {
		_ = client.Close()
	}
	r.pools = make(map[string]*redis.Client)
}
