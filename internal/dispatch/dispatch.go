// Package dispatch reconciles the tracking table against the live container
// list and GPU occupancy, launching pending jobs whose devices are idle.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/container"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/gpu"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/tracking"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/set"
)

// Dispatcher owns the reconciliation of tracked jobs. It assumes it is the
// only writer of the tracking table; a second dispatcher against the same
// table is not supported.
type Dispatcher struct {
	// System dependencies. Set during initialization, never modified afterwards.
	log     *logrus.Entry
	store   *tracking.Store
	runtime container.Runtime
	gpus    gpu.Provider
	clock   clockwork.Clock

	// Options.
	interactive bool
	showCmd     bool
	settleDelay time.Duration
	interval    time.Duration
}

// Params bundles the dependencies and options of a Dispatcher.
type Params struct {
	Store   *tracking.Store
	Runtime container.Runtime
	GPUs    gpu.Provider
	Clock   clockwork.Clock

	// Interactive launches jobs attached to the terminal instead of detached.
	Interactive bool
	// ShowCmd logs the full launch command of every launched job.
	ShowCmd bool
	// SettleDelay is the pause after each launch, giving occupancy sampling
	// time to see the new process before the next candidate is judged.
	SettleDelay time.Duration
	// ReconcileInterval is the pause between reconciliation passes.
	ReconcileInterval time.Duration
}

// New returns a Dispatcher. A nil Clock falls back to the wall clock.
func New(p Params) *Dispatcher {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		log:         logrus.WithField("component", "dispatch"),
		store:       p.Store,
		runtime:     p.Runtime,
		gpus:        p.GPUs,
		clock:       p.Clock,
		interactive: p.Interactive,
		showCmd:     p.ShowCmd,
		settleDelay: p.SettleDelay,
		interval:    p.ReconcileInterval,
	}
}

// Cycle runs one reconciliation pass and reports whether every tracked job
// has reached a terminal status. Failures scoped to a single record are
// logged and do not disturb the rest of the pass; failures to read or write
// the table or the container list abort it.
func (d *Dispatcher) Cycle(ctx context.Context) (bool, error) {
	records, err := d.store.Load()
	if err != nil {
		return false, err
	}

	names, err := d.runtime.ListRunning(ctx)
	if err != nil {
		return false, errors.Wrap(err, "cannot list running containers")
	}
	live := set.FromSlice(names)

	for i := range records {
		record := &records[i]
		switch {
		case live.Contains(record.DockerName):
			if record.Status == tracking.Pending {
				d.log.Infof("adopting already live container %s", record.DockerName)
				record.Status = tracking.Running
			}
		case record.Status == tracking.Running:
			d.log.Infof("container %s is gone, marking it %s", record.DockerName, tracking.Stopped)
			record.Status = tracking.Stopped
		}
	}

	interrupted := false
	for i := range records {
		record := &records[i]
		if record.Status != tracking.Pending {
			continue
		}

		idle, err := d.devicesIdle(ctx, record)
		if err != nil {
			d.log.WithError(err).Warnf("cannot judge eligibility of %s", record.DockerName)
			continue
		}
		if !idle {
			d.log.Debugf("devices of %s are busy, keeping it %s", record.DockerName, tracking.Pending)
			continue
		}

		if err := d.launch(ctx, record); err != nil {
			launchFailures.Inc()
			d.log.WithError(err).Warnf("failed to launch %s", record.DockerName)
			continue
		}
		record.Status = tracking.Running
		launches.Inc()

		// Let occupancy sampling catch up before judging the next candidate.
		if d.settleDelay > 0 {
			select {
			case <-d.clock.After(d.settleDelay):
			case <-ctx.Done():
				interrupted = true
			}
			if interrupted {
				break
			}
		}
	}

	if err := d.store.Save(records); err != nil {
		return false, err
	}
	if interrupted {
		return false, ctx.Err()
	}

	done := true
	for _, record := range records {
		if !record.Status.Terminal() {
			done = false
			break
		}
	}
	recordStatuses(records)
	return done, nil
}

// devicesIdle queries a fresh occupancy snapshot and reports whether every
// device assigned to the record has zero active compute processes. Any
// foreign process on a shared device blocks the launch.
func (d *Dispatcher) devicesIdle(ctx context.Context, record *tracking.JobRecord) (bool, error) {
	occupancy, err := d.gpus.Occupancy(ctx)
	if err != nil {
		return false, err
	}

	total := 0
	for _, id := range record.Devices {
		count, ok := occupancy[id]
		if !ok {
			return false, errors.Errorf("device %d is not visible to the occupancy provider", id)
		}
		total += count
	}
	return total == 0, nil
}

func (d *Dispatcher) launch(ctx context.Context, record *tracking.JobRecord) error {
	cmd := record.Cmd
	mode := container.Detached
	if d.interactive {
		cmd = strings.Replace(cmd, " -d ", " -it ", 1)
		mode = container.Interactive
	}

	if d.showCmd {
		d.log.Infof("launching %s: %s", record.DockerName, cmd)
	} else {
		d.log.Infof("launching %s", record.DockerName)
	}
	return d.runtime.Launch(ctx, cmd, mode)
}

// RunLoop reconciles on a fixed interval until every tracked job is terminal
// or the context is canceled.
func (d *Dispatcher) RunLoop(ctx context.Context) error {
	d.log.Infof("reconciling every %s", d.interval)
	for {
		start := time.Now()
		done, err := d.Cycle(ctx)
		cycleLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		if done {
			d.log.Info("every job has reached a terminal status, stopping")
			return nil
		}

		select {
		case <-d.clock.After(d.interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
