package options

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/check"
)

// Options stores all the configurable options for the benchmark pipeline.
type Options struct {
	ConfigFile   string `json:"config_file"`
	TrackingFile string `json:"tracking_file"`

	AppendTracking bool `json:"append_tracking"`
	SkipGeneration bool `json:"skip_generation"`
	GenerateOnly   bool `json:"generate_only"`
	Interactive    bool `json:"interactive"`
	ShowCmd        bool `json:"show_cmd"`

	KillAll    bool `json:"kill_all"`
	CleanWandB bool `json:"clean_wandb"`

	SettleDelaySeconds       int `json:"settle_delay_seconds"`
	ReconcileIntervalSeconds int `json:"reconcile_interval_seconds"`

	CleanWorkers int `json:"clean_workers"`

	Metrics MetricsOptions `json:"metrics"`
}

// DefaultOptions returns the default pipeline options.
func DefaultOptions() *Options {
	return &Options{
		ConfigFile:               "benchmarks.yml",
		TrackingFile:             "tracking.csv",
		SettleDelaySeconds:       15,
		ReconcileIntervalSeconds: 15,
		Metrics: MetricsOptions{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate validates the state of the Options struct.
func (o Options) Validate() []error {
	return []error{
		check.NotEmpty(o.ConfigFile, "a benchmark configuration file must be provided"),
		check.NotEmpty(o.TrackingFile, "a tracking file must be provided"),
		check.True(o.SettleDelaySeconds >= 0, "settle delay must not be negative"),
		check.True(o.ReconcileIntervalSeconds > 0, "reconcile interval must be positive"),
		check.True(o.CleanWorkers >= 0, "clean workers must not be negative"),
		o.validateModes(),
	}
}

func (o Options) validateModes() error {
	if o.SkipGeneration && o.GenerateOnly {
		return errors.New("cannot skip generation and stop after generation at the same time")
	}
	return nil
}

// SettleDelay returns the post-launch settle delay as a duration.
func (o Options) SettleDelay() time.Duration {
	return time.Duration(o.SettleDelaySeconds) * time.Second
}

// ReconcileInterval returns the reconciliation interval as a duration.
func (o Options) ReconcileInterval() time.Duration {
	return time.Duration(o.ReconcileIntervalSeconds) * time.Second
}

// Printable returns a printable string.
func (o Options) Printable() ([]byte, error) {
	optJSON, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert options to JSON")
	}
	return optJSON, nil
}

// MetricsOptions configures the Prometheus endpoint of the dispatcher.
type MetricsOptions struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Validate implements the check.Validatable interface.
func (m MetricsOptions) Validate() []error {
	if !m.Enabled {
		return nil
	}
	return []error{
		check.True(m.Port > 0 && m.Port < 65536, "metrics port must be in (0, 65536)"),
	}
}
