// Package container defines the operations the benchmark pipeline needs from
// a container engine. The docker package provides the production
// implementation; tests substitute fakes.
package container

import "context"

// LaunchMode selects how a benchmark container is attached at launch.
type LaunchMode string

const (
	// Detached runs the launch command in the background and returns once it
	// has started cleanly.
	Detached LaunchMode = "detached"
	// Interactive runs the launch command attached to the terminal and blocks
	// until it exits.
	Interactive LaunchMode = "interactive"
)

// BuildSpec describes a single image build.
type BuildSpec struct {
	// ContextDir is the directory sent to the engine as the build context.
	ContextDir string
	// Dockerfile is the path of the Dockerfile, relative to ContextDir.
	Dockerfile string
	// Tag is the image tag the build is published under.
	Tag string
}

// Runtime abstracts the container engine operations used by benchmark
// generation and dispatch.
type Runtime interface {
	// BuildImage builds the image described by spec and returns an error if
	// the build does not complete successfully.
	BuildImage(ctx context.Context, spec BuildSpec) error
	// Launch executes a stored launch command. In detached mode an error is
	// returned only when the command fails to start; in interactive mode
	// Launch blocks until the command exits.
	Launch(ctx context.Context, cmd string, mode LaunchMode) error
	// ListRunning returns the names of all currently running containers.
	ListRunning(ctx context.Context) ([]string, error)
	// KillAll force-kills every running container and returns the number of
	// containers signaled.
	KillAll(ctx context.Context) (int, error)
}
