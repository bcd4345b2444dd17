package wandb

import (
	"context"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/syncx/errgroupx"
)

// Deleter is the slice of the API the cleaner needs.
type Deleter interface {
	ListRuns(ctx context.Context, entity, project string) ([]Run, error)
	DeleteRun(ctx context.Context, id string) error
}

// Cleaner deletes every run of a project over a bounded worker pool.
type Cleaner struct {
	// System dependencies.
	log *log.Entry
	api Deleter

	workers int
}

// NewCleaner returns a Cleaner deleting over the given number of workers.
// A non-positive count falls back to the number of CPUs.
func NewCleaner(api Deleter, workers int) *Cleaner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Cleaner{
		log:     log.WithField("component", "wandb-cleaner"),
		api:     api,
		workers: workers,
	}
}

// Clean deletes all runs of the given project and returns how many were
// deleted. A failed deletion does not stop the sweep; every run is attempted
// and the failures are returned together once the pool drains.
func (c *Cleaner) Clean(ctx context.Context, entity, project string) (int, error) {
	runs, err := c.api.ListRuns(ctx, entity, project)
	if err != nil {
		return 0, err
	}
	c.log.Infof("deleting %d runs from %s/%s", len(runs), entity, project)

	var mu sync.Mutex
	var merr *multierror.Error
	deleted := 0

	pool := errgroupx.WithContext(ctx).WithLimit(c.workers).WithRecover()
	for _, run := range runs {
		run := run
		pool.Go(func(ctx context.Context) error {
			if err := c.api.DeleteRun(ctx, run.ID); err != nil {
				c.log.WithError(err).Warnf("failed to delete run %s", run.Name)
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
				return nil
			}
			c.log.Debugf("deleted run %s", run.Name)
			mu.Lock()
			deleted++
			mu.Unlock()
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		merr = multierror.Append(merr, err)
	}
	return deleted, merr.ErrorOrNil()
}
