// Package config loads and validates the benchmark matrix configuration:
// which systems exist, which benchmarks run on them, and how benchmark
// templates expand into concrete runs.
package config

import (
	"encoding/json"
	"os"
	"regexp"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/check"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/set"
)

// nameRE constrains every name that ends up inside a container name.
var nameRE = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// benchmarkNameRE is stricter: a benchmark's name doubles as its image tag,
// and docker image references must be lowercase.
var benchmarkNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// requiredParams are the parameter axes every benchmark must declare; their
// values are embedded in the container name.
var requiredParams = []string{"batch-size", "epochs", "learning-rate"}

// RawDoc is an undecoded configuration document. Benchmarks and their
// templates stay raw until they are merged, because a benchmark may override
// any subset of its template.
type RawDoc map[string]interface{}

// Config is the top-level benchmark matrix configuration.
type Config struct {
	Systems    map[string]System `json:"systems"`
	Templates  map[string]RawDoc `json:"benchmarks-template"`
	Benchmarks map[string]RawDoc `json:"benchmarks"`
	Data       map[string]string `json:"data"`
	WandB      WandBConfig       `json:"wandb"`
}

// System describes one machine under test and the device set benchmarks are
// pinned to on it.
type System struct {
	Active       bool            `json:"active"`
	DeviceIDs    []int           `json:"devices-ids"`
	Capabilities map[string]bool `json:"compute-capabilities"`
}

// Validate implements the check.Validatable interface.
func (s System) Validate() []error {
	if !s.Active {
		return nil
	}
	errs := []error{
		check.NotEmpty(s.DeviceIDs, "an active system must declare devices-ids"),
		check.NotEmpty(s.Capabilities, "an active system must declare compute-capabilities"),
	}
	seen := set.New[int]()
	for _, id := range s.DeviceIDs {
		errs = append(errs,
			check.True(id >= 0, "device index %d must be non-negative", id),
			check.True(!seen.Contains(id), "device index %d appears twice", id))
		seen.Insert(id)
	}
	for capability := range s.Capabilities {
		errs = append(errs, check.True(nameRE.MatchString(capability),
			"compute capability %q is not a valid name", capability))
	}
	return errs
}

// WandBConfig configures experiment tracking.
type WandBConfig struct {
	Active         bool     `json:"active"`
	Key            string   `json:"key"`
	User           string   `json:"user"`
	Project        string   `json:"project"`
	AdditionalTags []string `json:"additional-tags"`
}

// Validate implements the check.Validatable interface.
func (w WandBConfig) Validate() []error {
	if !w.Active {
		return nil
	}
	return []error{
		check.NotEmpty(w.Key, "wandb.key must be set when wandb is active"),
		check.NotEmpty(w.User, "wandb.user must be set when wandb is active"),
		check.NotEmpty(w.Project, "wandb.project must be set when wandb is active"),
	}
}

// Benchmark is a fully resolved benchmark: its template with the benchmark's
// own overrides merged on top.
type Benchmark struct {
	Template    string                   `json:"benchmark-template"`
	Active      bool                     `json:"active"`
	Docker      DockerConfig             `json:"docker"`
	Params      map[string][]interface{} `json:"params"`
	Preparation []string                 `json:"preparation,omitempty"`
}

// DockerConfig describes how a benchmark's image is built and run.
type DockerConfig struct {
	Path       string            `json:"path"`
	Dockerfile string            `json:"dockerfile"`
	Mounts     map[string]string `json:"mounts,omitempty"`
	Executable ExecutableConfig  `json:"executable"`
}

// ExecutableConfig holds the in-container working directory and the launch
// command per compute capability.
type ExecutableConfig struct {
	Path     string            `json:"path"`
	Commands map[string]string `json:"commands"`
}

// Validate implements the check.Validatable interface. Inactive benchmarks
// may be arbitrarily incomplete, so every check is gated on Active.
func (b Benchmark) Validate() []error {
	if !b.Active {
		return nil
	}
	errs := []error{
		check.NotEmpty(b.Docker.Path, "docker.path must be set"),
		check.NotEmpty(b.Docker.Dockerfile, "docker.dockerfile must be set"),
		check.NotEmpty(b.Docker.Executable.Path, "docker.executable.path must be set"),
		check.NotEmpty(b.Docker.Executable.Commands, "docker.executable.commands must be set"),
		check.NotEmpty(b.Params, "params must be set"),
	}
	for _, required := range requiredParams {
		vals, ok := b.Params[required]
		errs = append(errs,
			check.True(ok, "params must declare the %s axis", required),
			check.True(!ok || len(vals) > 0, "params.%s must be a non-empty list", required))
	}
	for axis, vals := range b.Params {
		errs = append(errs, check.NotEmpty(vals, "params.%s must be a non-empty list", axis))
	}
	return errs
}

// Load reads and validates the benchmark matrix configuration at path.
func Load(path string) (*Config, error) {
	bs, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file %s", path)
	}
	return Parse(bs)
}

// Parse decodes and validates a benchmark matrix configuration.
func Parse(bs []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(bs, cfg, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}
	if err := check.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration is invalid")
	}
	if err := cfg.checkNames(); err != nil {
		return nil, errors.Wrap(err, "configuration is invalid")
	}
	return cfg, nil
}

// checkNames validates the map keys, which the check walker cannot see.
func (c *Config) checkNames() error {
	for name := range c.Systems {
		if !nameRE.MatchString(name) {
			return errors.Errorf("system name %q is not a valid name", name)
		}
	}
	for name := range c.Benchmarks {
		if !benchmarkNameRE.MatchString(name) {
			return errors.Errorf("benchmark name %q is not a valid image tag", name)
		}
	}
	return nil
}

// ResolveBenchmark merges the named benchmark's overrides onto its template
// and decodes the result. The returned Benchmark is fully validated.
func (c *Config) ResolveBenchmark(name string) (*Benchmark, error) {
	raw, ok := c.Benchmarks[name]
	if !ok {
		return nil, errors.Errorf("unknown benchmark %s", name)
	}
	templateName, _ := raw["benchmark-template"].(string)
	if templateName == "" {
		return nil, errors.Errorf("benchmark %s does not name a benchmark-template", name)
	}
	template, ok := c.Templates[templateName]
	if !ok {
		return nil, errors.Errorf("benchmark %s references unknown template %s", name, templateName)
	}

	merged := MergeDocs(template, raw)
	bs, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot marshal merged benchmark %s", name)
	}
	benchmark := &Benchmark{}
	if err := yaml.Unmarshal(bs, benchmark, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal merged benchmark %s", name)
	}
	if err := check.Validate(benchmark); err != nil {
		return nil, errors.Wrapf(err, "benchmark %s is invalid", name)
	}
	return benchmark, nil
}
