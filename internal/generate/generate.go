// Package generate expands the benchmark matrix into tracked, launchable
// jobs: one job per active system, active benchmark, enabled compute
// capability and parameter assignment.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/config"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/container"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/tracking"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/set"
)

const dateLayout = "2006.01.02-15:04"

// TagSource provides host descriptor tags for tracked runs.
type TagSource interface {
	Tags() []string
}

// Builder expands a benchmark matrix configuration into the tracking table.
type Builder struct {
	// System dependencies. Set during initialization, never modified afterwards.
	log     *logrus.Entry
	cfg     *config.Config
	runtime container.Runtime
	store   *tracking.Store
	host    TagSource
	now     func() time.Time

	// Options.
	interactive    bool
	appendExisting bool
}

// Params bundles the dependencies and options of a Builder.
type Params struct {
	Config  *config.Config
	Runtime container.Runtime
	Store   *tracking.Store
	Host    TagSource

	// Interactive generates commands that attach to the terminal and mount
	// the build context into the container for quick iteration.
	Interactive bool
	// AppendExisting keeps the rows already present in the tracking table
	// instead of starting a fresh one.
	AppendExisting bool
}

// New returns a Builder for the given matrix configuration.
func New(p Params) *Builder {
	return &Builder{
		log:            logrus.WithField("component", "generate"),
		cfg:            p.Config,
		runtime:        p.Runtime,
		store:          p.Store,
		host:           p.Host,
		now:            time.Now,
		interactive:    p.Interactive,
		appendExisting: p.AppendExisting,
	}
}

// Report summarizes a generation run.
type Report struct {
	// Generated is the number of jobs written to the tracking table.
	Generated int
	// BuildFailed lists benchmarks whose image build failed; their jobs are
	// recorded as BUILD_FAILED and never launch.
	BuildFailed []string
}

// Generate builds every active benchmark's image once, expands the matrix
// and appends the resulting jobs to the tracking table. Configuration
// errors halt generation; a failed image build does not, it marks the
// benchmark's jobs as BUILD_FAILED instead.
func (b *Builder) Generate(ctx context.Context) (*Report, error) {
	if err := b.store.Init(b.appendExisting); err != nil {
		return nil, err
	}

	seen := set.New[string]()
	if b.appendExisting {
		existing, err := b.store.Load()
		if err != nil {
			return nil, err
		}
		for _, record := range existing {
			seen.Insert(record.DockerName)
		}
	}

	var hostTags []string
	if b.cfg.WandB.Active {
		hostTags = b.host.Tags()
	}

	report := &Report{}
	buildOutcome := map[string]tracking.Status{}
	for _, systemName := range sortedKeys(b.cfg.Systems) {
		system := b.cfg.Systems[systemName]
		if !system.Active {
			b.log.Infof("skipping benchmarks for %s", systemName)
			continue
		}

		for _, benchmarkName := range sortedKeys(b.cfg.Benchmarks) {
			benchmark, err := b.cfg.ResolveBenchmark(benchmarkName)
			if err != nil {
				return nil, err
			}
			if !benchmark.Active {
				b.log.Infof("skipping %s for %s", benchmarkName, systemName)
				continue
			}
			b.log.Infof("generating %s for %s", benchmarkName, systemName)

			status, built := buildOutcome[benchmarkName]
			if !built {
				status = tracking.Pending
				if err := b.runtime.BuildImage(ctx, container.BuildSpec{
					ContextDir: benchmark.Docker.Path,
					Dockerfile: benchmark.Docker.Dockerfile,
					Tag:        benchmarkName,
				}); err != nil {
					b.log.WithError(err).Errorf("image build failed for %s", benchmarkName)
					status = tracking.BuildFailed
					report.BuildFailed = append(report.BuildFailed, benchmarkName)
				}
				buildOutcome[benchmarkName] = status
			}

			records, err := b.expand(systemName, system, benchmarkName, benchmark,
				status, hostTags, seen)
			if err != nil {
				return nil, err
			}
			if err := b.store.Append(records); err != nil {
				return nil, err
			}
			report.Generated += len(records)
		}
	}
	return report, nil
}

// expand produces the jobs of one benchmark on one system: the cartesian
// product of the parameter axes crossed with the system's enabled compute
// capabilities.
func (b *Builder) expand(
	systemName string,
	system config.System,
	benchmarkName string,
	benchmark *config.Benchmark,
	status tracking.Status,
	hostTags []string,
	seen set.Set[string],
) ([]tracking.JobRecord, error) {
	deviceList := tracking.FormatDevices(system.DeviceIDs)
	mounts, err := b.mountFlags(benchmark)
	if err != nil {
		return nil, errors.Wrapf(err, "benchmark %s", benchmarkName)
	}

	var records []tracking.JobRecord
	for _, assignment := range config.Assignments(benchmark.Params) {
		for _, capability := range sortedKeys(system.Capabilities) {
			if !system.Capabilities[capability] {
				continue
			}
			cmdTemplate, ok := benchmark.Docker.Executable.Commands[capability]
			if !ok {
				b.log.Infof("skipping %s for %s-%s, no command declared",
					capability, systemName, benchmarkName)
				continue
			}

			replacements, notes := buildReplacements(assignment, deviceList,
				len(system.DeviceIDs), systemName, benchmarkName, capability)

			benchmarkCmd, err := b.renderCommand(benchmark, cmdTemplate, replacements)
			if err != nil {
				return nil, errors.Wrapf(err, "benchmark %s capability %s", benchmarkName, capability)
			}

			runName := fmt.Sprintf("%s-%s-%s-B%sxE%sxLR%s",
				benchmarkName, systemName, capability,
				formatValue(assignment["batch-size"]),
				formatValue(assignment["epochs"]),
				formatValue(assignment["learning-rate"]))
			if seen.Contains(runName) {
				return nil, errors.Errorf(
					"duplicate docker_name %s; parameter axes must distinguish every job", runName)
			}
			seen.Insert(runName)

			cmd, err := b.launchCommand(benchmark, benchmarkName, runName, capability,
				deviceList, mounts, hostTags, notes, benchmarkCmd)
			if err != nil {
				return nil, errors.Wrapf(err, "benchmark %s capability %s", benchmarkName, capability)
			}

			b.log.Infof("generated %s", runName)
			records = append(records, tracking.JobRecord{
				BenchmarkName: benchmarkName,
				SystemName:    systemName,
				Devices:       append([]int(nil), system.DeviceIDs...),
				DockerName:    runName,
				Status:        status,
				Cmd:           cmd,
			})
		}
	}
	return records, nil
}

// buildReplacements assembles the placeholder substitutions for command
// templates, plus the same values typed for the run notes.
func buildReplacements(
	assignment map[string]interface{},
	deviceList string,
	deviceCount int,
	systemName, benchmarkName, capability string,
) (map[string]string, map[string]interface{}) {
	replacements := make(map[string]string, len(assignment)+5)
	notes := make(map[string]interface{}, len(assignment)+5)
	for axis, value := range assignment {
		replacements[axis] = formatValue(value)
		notes[axis] = value
	}
	replacements["NVIDIA_VISIBLE_DEVICES"] = deviceList
	replacements["NB_CUDA_DEVICES"] = fmt.Sprintf("%d", deviceCount)
	replacements["SYSTEM_NAME"] = systemName
	replacements["BENCHMARK_NAME"] = benchmarkName
	replacements["CAPABILITY"] = capability

	notes["NVIDIA_VISIBLE_DEVICES"] = deviceList
	notes["NB_CUDA_DEVICES"] = deviceCount
	notes["SYSTEM_NAME"] = systemName
	notes["BENCHMARK_NAME"] = benchmarkName
	notes["CAPABILITY"] = capability
	return replacements, notes
}

// renderCommand renders the preparation steps and the capability's command
// into the single shell command executed inside the container.
func (b *Builder) renderCommand(
	benchmark *config.Benchmark,
	cmdTemplate string,
	replacements map[string]string,
) (string, error) {
	parts := make([]string, 0, len(benchmark.Preparation)+1)
	for _, preparation := range benchmark.Preparation {
		rendered, err := renderTemplate(preparation, replacements)
		if err != nil {
			return "", errors.Wrap(err, "preparation step")
		}
		parts = append(parts, rendered)
	}
	rendered, err := renderTemplate(cmdTemplate, replacements)
	if err != nil {
		return "", errors.Wrap(err, "command")
	}
	parts = append(parts, rendered)

	cmd := strings.Join(parts, " && ")
	if strings.Contains(cmd, "'") {
		return "", errors.Errorf(
			"rendered command contains a single quote, which cannot be embedded in the launch command: %s", cmd)
	}
	return cmd, nil
}

// launchCommand assembles the full `docker run` invocation stored in the
// tracking table.
func (b *Builder) launchCommand(
	benchmark *config.Benchmark,
	benchmarkName, runName, capability string,
	deviceList, mounts string,
	hostTags []string,
	notes map[string]interface{},
	benchmarkCmd string,
) (string, error) {
	runMode := "d"
	if b.interactive {
		runMode = fmt.Sprintf("it -v $PWD/%s:%s",
			benchmark.Docker.Path, benchmark.Docker.Executable.Path)
	}

	parts := []string{fmt.Sprintf("docker run -%s --rm --ipc=host --name=%s", runMode, runName)}

	if b.cfg.WandB.Active {
		env, err := b.wandbEnv(runName, hostTags, notes)
		if err != nil {
			return "", err
		}
		parts = append(parts, env)
	}
	if mounts != "" {
		parts = append(parts, mounts)
	}
	parts = append(parts, fmt.Sprintf("--gpus 'device=%s' -w %s -e PRECISION=%s %s bash -c '%s'",
		deviceList, benchmark.Docker.Executable.Path, capability, benchmarkName, benchmarkCmd))

	return strings.Join(parts, " "), nil
}

// wandbEnv renders the tracking environment passed to the container: run
// name, host descriptor tags and the full parameter assignment as notes.
func (b *Builder) wandbEnv(runName string, hostTags []string, notes map[string]interface{}) (string, error) {
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return "", errors.Wrap(err, "cannot marshal run notes")
	}

	tags := append(append([]string{}, hostTags...), b.cfg.WandB.AdditionalTags...)
	date := b.now().Format(dateLayout)

	return fmt.Sprintf(
		"-e WANDB_API_KEY=%s -e WANDB_NAME='%s-%s' -e WANDB_TAGS='%s' -e WANDB_NOTES='%s' -e WANDB_ENTITY=%s -e WANDB_PROJECT=%s",
		b.cfg.WandB.Key, runName, date, strings.Join(tags, ","), notesJSON,
		b.cfg.WandB.User, b.cfg.WandB.Project), nil
}

// mountFlags renders the benchmark's data mounts, resolving each mount
// source through the data section.
func (b *Builder) mountFlags(benchmark *config.Benchmark) (string, error) {
	flags := make([]string, 0, len(benchmark.Docker.Mounts))
	for _, source := range sortedKeys(benchmark.Docker.Mounts) {
		hostPath, ok := b.cfg.Data[source]
		if !ok {
			return "", errors.Errorf("mount source %q is not declared in the data section", source)
		}
		flags = append(flags, fmt.Sprintf("-v %s:%s", hostPath, benchmark.Docker.Mounts[source]))
	}
	return strings.Join(flags, " "), nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
