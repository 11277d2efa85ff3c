package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal(0)
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "PLA-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, maxSeen)
	require.Zero(t, l.held("PLA-1"))
}

func TestLocalTimesOut(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "PLA-1")
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background(), "PLA-1")
	require.ErrorIs(t, err, ErrTimeout)

	other, err := l.Acquire(context.Background(), "PLA-2")
	require.NoError(t, err)
	other()
}

func TestLocalReleaseIsIdempotent(t *testing.T) {
	l := NewLocal(time.Second)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	again, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
	require.Zero(t, l.held("k"))
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal(0)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisAcquireRelease(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewRedis(rdb, "placelock:", time.Second, 50*time.Millisecond)

	release, err := l.Acquire(context.Background(), "PLA-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("placelock:PLA-1"))

	_, err = l.Acquire(context.Background(), "PLA-1")
	require.ErrorIs(t, err, ErrTimeout)

	release()
	require.False(t, mr.Exists("placelock:PLA-1"))

	again, err := l.Acquire(context.Background(), "PLA-1")
	require.NoError(t, err)
	again()
}

func TestRedisReleaseKeepsForeignHold(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewRedis(rdb, "placelock:", time.Second, 0)

	release, err := l.Acquire(context.Background(), "PLA-1")
	require.NoError(t, err)

	// the hold expired and someone else took the key
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("placelock:PLA-1", "someone-else"))

	release()
	v, err := mr.Get("placelock:PLA-1")
	require.NoError(t, err)
	require.Equal(t, "someone-else", v)
}

func TestRedisUnavailable(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	l := NewRedis(rdb, "placelock:", time.Second, 0)

	_, err := l.Acquire(context.Background(), "PLA-1")
	require.ErrorIs(t, err, ErrUnavailable)
}
