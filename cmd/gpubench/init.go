package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/options"
)

var v *viper.Viper

// viperKeyDelimiter marks nested values in the configuration. ".." is used
// instead of the default "." so option keys may themselves contain dots.
const viperKeyDelimiter = ".."

type configKey []string

func (c configKey) EnvName() string {
	return "GPUBENCH_" + strings.ReplaceAll(strings.ToUpper(c.FlagName()), "-", "_")
}

func (c configKey) AccessPath() string {
	return strings.ReplaceAll(strings.Join(c, viperKeyDelimiter), "-", "_")
}

func (c configKey) FlagName() string {
	return strings.Join(c, "-")
}

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

// registerOptions binds every pipeline option to a flag, an environment
// variable and a viper default.
func registerOptions(flags *pflag.FlagSet) {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))
	v.SetTypeByDefaultValue(true)

	defaults := options.DefaultOptions()
	name := func(components ...string) configKey { return components }

	registerString(flags, name("config-file"),
		defaults.ConfigFile, "location of the benchmark matrix configuration")
	registerString(flags, name("tracking-file"),
		defaults.TrackingFile, "location of the job tracking table")

	registerBool(flags, name("append-tracking"),
		defaults.AppendTracking, "append to an existing tracking table instead of starting fresh")
	registerBool(flags, name("skip-generation"),
		defaults.SkipGeneration, "dispatch an existing tracking table without regenerating it")
	registerBool(flags, name("generate-only"),
		defaults.GenerateOnly, "stop after generating the tracking table")
	registerBool(flags, name("interactive"),
		defaults.Interactive, "launch containers attached to the terminal")
	registerBool(flags, name("show-cmd"),
		defaults.ShowCmd, "log the full launch command of every launched job")

	registerBool(flags, name("kill-all"),
		defaults.KillAll, "kill every running container and exit")
	registerBool(flags, name("clean-wandb"),
		defaults.CleanWandB, "delete every wandb run of the configured project and exit")

	registerInt(flags, name("settle-delay-seconds"),
		defaults.SettleDelaySeconds, "pause after each launch before judging the next candidate")
	registerInt(flags, name("reconcile-interval-seconds"),
		defaults.ReconcileIntervalSeconds, "pause between reconciliation passes")
	registerInt(flags, name("clean-workers"),
		defaults.CleanWorkers, "wandb deletion workers (0 uses the CPU count)")

	registerBool(flags, name("metrics", "enabled"),
		defaults.Metrics.Enabled, "serve Prometheus metrics while dispatching")
	registerInt(flags, name("metrics", "port"),
		defaults.Metrics.Port, "Prometheus metrics port")
}
