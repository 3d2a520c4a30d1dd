// Package tenancy routes per-tenant data access to schema-scoped
// connection pools. Pools are created lazily on first resolve, cached
// for the life of the process, and owned exclusively by the Router;
// callers borrow a handle for the duration of a request.
package tenancy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ultimate-pixel/storegate/internal/metrics"
	"github.com/ultimate-pixel/storegate/internal/shop"
)

// TenantConn is a live connection pool bound to one tenant schema.
type TenantConn struct {
	Schema string
	Pool   *pgxpool.Pool
}

// Close releases the underlying pool. Only the Router calls this.
func (c *TenantConn) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// OpenFunc initializes a connection for a tenant schema. Injectable so
// tests can count initializations without a database.
type OpenFunc func(ctx context.Context, schema string) (*TenantConn, error)

// Router caches one TenantConn per shop code. Concurrent first-time
// resolves for the same code coalesce into a single initialization; a
// failed initialization is not cached and is retried on the next
// resolve.
type Router struct {
	open    OpenFunc
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics

	group singleflight.Group
	mu    sync.RWMutex
	conns map[string]*TenantConn
}

// NewRouter creates a Router with the given initializer. timeout bounds
// each initialization so one unreachable schema cannot stall unrelated
// tenants.
func NewRouter(open OpenFunc, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *Router {
	return &Router{
		open:    open,
		timeout: timeout,
		log:     log,
		metrics: m,
		conns:   make(map[string]*TenantConn),
	}
}

// PoolOpener returns the production OpenFunc: a bounded pgx pool whose
// search_path targets the tenant schema.
func PoolOpener(connString string, maxConns int32) OpenFunc {
	return func(ctx context.Context, schema string) (*TenantConn, error) {
		cfg, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return nil, fmt.Errorf("tenancy: parse config for %q: %w", schema, err)
		}

		cfg.MaxConns = maxConns
		cfg.MinConns = 1
		cfg.MaxConnLifetime = 30 * time.Minute
		cfg.MaxConnIdleTime = 5 * time.Minute
		cfg.ConnConfig.RuntimeParams["search_path"] = schema

		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("tenancy: connect %q: %w", schema, err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("tenancy: ping %q: %w", schema, err)
		}
		return &TenantConn{Schema: schema, Pool: pool}, nil
	}
}

// Resolve returns the tenant's connection handle, initializing it on
// first access. All concurrent callers for a never-seen code receive
// the same handle, or the same initialization error.
func (r *Router) Resolve(ctx context.Context, code string) (*TenantConn, error) {
	if err := shop.ValidateCode(code); err != nil {
		return nil, err
	}

	r.mu.RLock()
	conn, ok := r.conns[code]
	r.mu.RUnlock()
	if ok {
		if r.metrics != nil {
			r.metrics.TenantCacheHits.Inc()
		}
		return conn, nil
	}

	v, err, _ := r.group.Do(code, func() (any, error) {
		// Re-check: a concurrent resolve may have finished between the
		// cache miss and the singleflight slot.
		r.mu.RLock()
		existing, ok := r.conns[code]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		if r.metrics != nil {
			r.metrics.TenantCacheMisses.Inc()
		}

		// Initialization runs under its own deadline, detached from any
		// single request context, so one cancelled caller cannot fail
		// the coalesced waiters.
		openCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		conn, err := r.open(openCtx, shop.SchemaName(code))
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.conns[code] = conn
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.TenantPoolsActive.Inc()
		}
		r.log.Info("tenant connection initialized", zap.String("shop_code", code))
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.(*TenantConn), nil
}

// Evict closes and removes one tenant's cached connection.
func (r *Router) Evict(code string) {
	r.mu.Lock()
	conn, ok := r.conns[code]
	if ok {
		delete(r.conns, code)
	}
	r.mu.Unlock()

	if ok {
		conn.Close()
		if r.metrics != nil {
			r.metrics.TenantPoolsActive.Dec()
		}
		r.log.Info("tenant connection evicted", zap.String("shop_code", code))
	}
}

// Close shuts down all cached tenant connections. Call during graceful
// shutdown.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, conn := range r.conns {
		conn.Close()
		delete(r.conns, code)
		if r.metrics != nil {
			r.metrics.TenantPoolsActive.Dec()
		}
	}
}
