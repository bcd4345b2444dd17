package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/docker/docker/client"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/config"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/dispatch"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/generate"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/gpu"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/hostinfo"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/options"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/tracking"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/wandb"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/check"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/docker"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "generate and dispatch the benchmark matrix",
		Args:  cobra.NoArgs,
	}
	registerOptions(cmd.Flags())

	cmd.RunE = func(*cobra.Command, []string) error {
		opts, err := getOptions(v.AllSettings())
		if err != nil {
			return err
		}
		if err := check.Validate(*opts); err != nil {
			return errors.Wrap(err, "command-line arguments specify illegal configuration")
		}

		printable, err := opts.Printable()
		if err != nil {
			return err
		}
		log.Infof("benchmark pipeline configuration: %s", printable)

		return run(*opts)
	}

	return cmd
}

// getOptions decodes the viper settings, which hold defaults, flag values and
// environment values, into pipeline options.
func getOptions(settings map[string]interface{}) (*options.Options, error) {
	bs, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}

	opts := &options.Options{}
	if err = yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}
	return opts, nil
}

func run(opts options.Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cl, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return errors.Wrap(err, "cannot connect to the docker daemon")
	}
	runtime := docker.NewClient(cl)

	if opts.KillAll {
		killed, err := runtime.KillAll(ctx)
		log.Infof("killed %d containers", killed)
		return err
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}

	if opts.CleanWandB {
		return cleanWandB(ctx, cfg, opts)
	}

	store := tracking.NewStore(opts.TrackingFile)

	if !opts.SkipGeneration {
		builder := generate.New(generate.Params{
			Config:         cfg,
			Runtime:        runtime,
			Store:          store,
			Host:           hostinfo.New(),
			Interactive:    opts.Interactive,
			AppendExisting: opts.AppendTracking,
		})
		report, err := builder.Generate(ctx)
		if err != nil {
			return err
		}
		log.Infof("generated %d jobs into %s", report.Generated, store.Path())
		for _, benchmark := range report.BuildFailed {
			log.Warnf("jobs of %s are marked %s and will never launch",
				benchmark, tracking.BuildFailed)
		}
	}
	if opts.GenerateOnly {
		return nil
	}

	if opts.Metrics.Enabled {
		serveMetrics(opts.Metrics.Port)
	}

	dispatcher := dispatch.New(dispatch.Params{
		Store:             store,
		Runtime:           runtime,
		GPUs:              gpu.New(),
		Interactive:       opts.Interactive,
		ShowCmd:           opts.ShowCmd,
		SettleDelay:       opts.SettleDelay(),
		ReconcileInterval: opts.ReconcileInterval(),
	})
	if err := dispatcher.RunLoop(ctx); err != nil {
		if ctx.Err() != nil {
			log.Info("interrupted, shutting down")
			return nil
		}
		return err
	}
	return nil
}

func cleanWandB(ctx context.Context, cfg *config.Config, opts options.Options) error {
	if cfg.WandB.Key == "" || cfg.WandB.User == "" || cfg.WandB.Project == "" {
		return errors.New(
			"wandb cleanup requires key, user and project in the wandb configuration section")
	}

	cleaner := wandb.NewCleaner(wandb.NewClient(cfg.WandB.Key), opts.CleanWorkers)
	deleted, err := cleaner.Clean(ctx, cfg.WandB.User, cfg.WandB.Project)
	log.Infof("deleted %d wandb runs from %s/%s", deleted, cfg.WandB.User, cfg.WandB.Project)
	return err
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		addr := fmt.Sprintf(":%d", port)
		log.Infof("serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil { // #nosec G114
			log.WithError(err).Error("metrics server failed")
		}
	}()
}
