package tenancy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func countingOpener(inits *atomic.Int32, delay time.Duration, err error) OpenFunc {
	return func(ctx context.Context, schema string) (*TenantConn, error) {
		inits.Add(1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err != nil {
			return nil, err
		}
		return &TenantConn{Schema: schema}, nil
	}
}

func TestResolveInitializesOnce(t *testing.T) {
	var inits atomic.Int32
	r := NewRouter(countingOpener(&inits, 0, nil), time.Second, zap.NewNop(), nil)

	first, err := r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	require.NoError(t, err)
	assert.Equal(t, "shop_A1B2C3D4E5F6G7H8I9J0", first.Schema)

	second, err := r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), inits.Load())
}

func TestResolveCoalescesConcurrentInits(t *testing.T) {
	var inits atomic.Int32
	r := NewRouter(countingOpener(&inits, 20*time.Millisecond, nil), time.Second, zap.NewNop(), nil)

	const callers = 16
	conns := make([]*TenantConn, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), inits.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, conns[0], conns[i])
	}
}

func TestResolveIsolatesTenants(t *testing.T) {
	var inits atomic.Int32
	r := NewRouter(countingOpener(&inits, 0, nil), time.Second, zap.NewNop(), nil)

	a, err := r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), "X9Y8Z7W6V5U4T3S2R1Q0")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, int32(2), inits.Load())
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	var inits atomic.Int32
	boom := errors.New("connection refused")
	var fail atomic.Bool
	fail.Store(true)

	open := func(ctx context.Context, schema string) (*TenantConn, error) {
		inits.Add(1)
		if fail.Load() {
			return nil, boom
		}
		return &TenantConn{Schema: schema}, nil
	}
	r := NewRouter(open, time.Second, zap.NewNop(), nil)

	_, err := r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	assert.ErrorIs(t, err, boom)

	fail.Store(false)
	conn, err := r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	require.NoError(t, err)
	assert.Equal(t, "shop_A1B2C3D4E5F6G7H8I9J0", conn.Schema)
	assert.Equal(t, int32(2), inits.Load())
}

func TestResolveRejectsInvalidCode(t *testing.T) {
	var inits atomic.Int32
	r := NewRouter(countingOpener(&inits, 0, nil), time.Second, zap.NewNop(), nil)

	_, err := r.Resolve(context.Background(), `A"; DROP SCHEMA public`)
	require.Error(t, err)
	assert.Equal(t, int32(0), inits.Load())
}

func TestResolveCallerCancellation(t *testing.T) {
	var inits atomic.Int32
	r := NewRouter(countingOpener(&inits, 0, nil), time.Second, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, "A1B2C3D4E5F6G7H8I9J0")
	assert.ErrorIs(t, err, context.Canceled)

	// The initialization itself still completed and is served to the
	// next caller without reopening.
	conn, err := r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	require.NoError(t, err)
	assert.Equal(t, "shop_A1B2C3D4E5F6G7H8I9J0", conn.Schema)
	assert.Equal(t, int32(1), inits.Load())
}

func TestResolveInitTimeout(t *testing.T) {
	var inits atomic.Int32
	r := NewRouter(countingOpener(&inits, time.Second, nil), 10*time.Millisecond, zap.NewNop(), nil)

	_, err := r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvict(t *testing.T) {
	var inits atomic.Int32
	r := NewRouter(countingOpener(&inits, 0, nil), time.Second, zap.NewNop(), nil)

	_, err := r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	require.NoError(t, err)

	r.Evict("A1B2C3D4E5F6G7H8I9J0")

	_, err = r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inits.Load())
}

func TestEvictUnknownCodeIsNoop(t *testing.T) {
	var inits atomic.Int32
	r := NewRouter(countingOpener(&inits, 0, nil), time.Second, zap.NewNop(), nil)
	r.Evict("A1B2C3D4E5F6G7H8I9J0")
	assert.Equal(t, int32(0), inits.Load())
}

func TestCloseDropsAllTenants(t *testing.T) {
	var inits atomic.Int32
	r := NewRouter(countingOpener(&inits, 0, nil), time.Second, zap.NewNop(), nil)

	_, err := r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "X9Y8Z7W6V5U4T3S2R1Q0")
	require.NoError(t, err)

	r.Close()

	_, err = r.Resolve(context.Background(), "A1B2C3D4E5F6G7H8I9J0")
	require.NoError(t, err)
	assert.Equal(t, int32(3), inits.Load())
}
