package errgroupx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestGroupErrorCancelsContext(t *testing.T) {
	ctx := context.Background()
	g := WithContext(ctx)

	finished := make(chan bool, 1)
	g.Go(func(ctx context.Context) error {
		return errors.New("member failed")
	})
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		finished <- true
		return nil
	})

	require.Error(t, g.Wait())
	require.True(t, <-finished)
	require.NoError(t, ctx.Err()) // Parent context not canceled.
}

func TestGroupWaitCancelsGroupContext(t *testing.T) {
	g := WithContext(context.Background())
	g.Go(func(ctx context.Context) error { return nil })
	require.NoError(t, g.Wait())
	require.Error(t, g.ctx.Err())
}

func TestGroupLimitBoundsConcurrency(t *testing.T) {
	g := WithContext(context.Background()).WithLimit(2)

	var mu sync.Mutex
	inflight, peak := 0, 0
	for i := 0; i < 8; i++ {
		g.Go(func(ctx context.Context) error {
			mu.Lock()
			inflight++
			if inflight > peak {
				peak = inflight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inflight--
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, g.Wait())
	require.LessOrEqual(t, peak, 2)
}

func TestGroupRecover(t *testing.T) {
	g := WithContext(context.Background()).WithRecover()
	g.Go(func(ctx context.Context) error {
		panic("worker exploded")
	})
	require.ErrorContains(t, g.Wait(), "worker exploded")
}
