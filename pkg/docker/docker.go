// Package docker implements the container runtime on top of the Docker
// Engine API and the local shell.
package docker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/distribution/reference"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/container"
)

// defaultLaunchGrace bounds how long a detached launch is watched for an
// immediate non-zero exit before it is considered started.
const defaultLaunchGrace = 3 * time.Second

// apiClient is the subset of the Docker Engine API the runtime uses.
type apiClient interface {
	ImageBuild(ctx context.Context, buildContext io.Reader,
		options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
}

// Client implements container.Runtime against a local Docker daemon. Image
// builds, listing and killing go through the Engine API; launches execute the
// stored `docker run` command through the shell, since the command line is
// the tracked artifact.
type Client struct {
	// System dependencies. Set during initialization, never modified afterwards.
	cl  apiClient
	log *logrus.Entry

	launchGrace time.Duration
}

// NewClient returns a Client backed by the given Docker API client.
func NewClient(cl *client.Client) *Client {
	return newClient(cl)
}

func newClient(cl apiClient) *Client {
	return &Client{
		cl:          cl,
		log:         logrus.WithField("component", "docker-runtime"),
		launchGrace: defaultLaunchGrace,
	}
}

// BuildImage builds the image described by spec, streaming build output to
// the debug log. A build error reported anywhere in the stream fails the
// build.
func (d *Client) BuildImage(ctx context.Context, spec container.BuildSpec) error {
	if _, err := reference.ParseNormalizedNamed(spec.Tag); err != nil {
		return errors.Wrapf(err, "invalid image tag %s", spec.Tag)
	}

	buildContext, err := archive.TarWithOptions(spec.ContextDir, &archive.TarOptions{})
	if err != nil {
		return errors.Wrapf(err, "error archiving build context %s", spec.ContextDir)
	}
	defer func() {
		if cErr := buildContext.Close(); cErr != nil {
			d.log.WithError(cErr).Warn("error closing build context stream")
		}
	}()

	resp, err := d.cl.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{spec.Tag},
		Dockerfile: spec.Dockerfile,
		Remove:     true,
	})
	if err != nil {
		return errors.Wrapf(err, "error building image %s", spec.Tag)
	}
	defer func() {
		if cErr := resp.Body.Close(); cErr != nil {
			d.log.WithError(cErr).Warn("error closing build response stream")
		}
	}()

	return d.scanBuildLogs(resp.Body, spec.Tag)
}

func (d *Client) scanBuildLogs(r io.Reader, tag string) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		msg := jsonmessage.JSONMessage{}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return errors.Wrapf(err, "error parsing build message %q", scanner.Text())
		}
		if msg.Error != nil {
			return errors.Wrapf(msg.Error, "building image %s", tag)
		}
		if line := strings.TrimSpace(msg.Stream); line != "" {
			d.log.WithField("image", tag).Debug(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "error reading build log stream")
	}
	return nil
}

// Launch executes the given launch command with `/bin/sh -c`. In interactive
// mode the command inherits the terminal and Launch blocks until it exits.
// In detached mode `docker run -d` normally returns right away, so Launch
// waits up to the grace window for an immediate non-zero exit and otherwise
// reports the launch as started.
func (d *Client) Launch(ctx context.Context, cmd string, mode container.LaunchMode) error {
	// #nosec G204
	proc := exec.CommandContext(ctx, "/bin/sh", "-c", cmd)

	if mode == container.Interactive {
		proc.Stdin = os.Stdin
		proc.Stdout = os.Stdout
		proc.Stderr = os.Stderr
		if err := proc.Run(); err != nil {
			return errors.Wrap(err, "interactive launch exited")
		}
		return nil
	}

	var stderr bytes.Buffer
	proc.Stderr = &stderr
	if err := proc.Start(); err != nil {
		return errors.Wrap(err, "error starting launch command")
	}

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "launch command failed to start: %s",
				strings.TrimSpace(stderr.String()))
		}
		return nil
	case <-time.After(d.launchGrace):
		// Still running after the grace window. Reap it in the background so
		// slow launches do not hold up the dispatch cycle.
		go func() {
			if err := <-done; err != nil {
				d.log.WithError(err).Warnf("launch command exited late: %s",
					strings.TrimSpace(stderr.String()))
			}
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListRunning returns the names of all running containers, without the
// leading slash docker prepends.
func (d *Client) ListRunning(ctx context.Context) ([]string, error) {
	containers, err := d.cl.ContainerList(ctx, types.ContainerListOptions{All: false})
	if err != nil {
		return nil, errors.Wrap(err, "error listing running containers")
	}

	names := make([]string, 0, len(containers))
	for _, cont := range containers {
		if len(cont.Names) == 0 {
			d.log.Warnf("container %v has no name, skipping", cont.ID)
			continue
		}
		names = append(names, strings.TrimPrefix(cont.Names[0], "/"))
	}
	return names, nil
}

// KillAll sends SIGKILL to every running container and returns how many were
// signaled. Failures to kill individual containers are aggregated rather
// than aborting the sweep.
func (d *Client) KillAll(ctx context.Context) (int, error) {
	containers, err := d.cl.ContainerList(ctx, types.ContainerListOptions{All: false})
	if err != nil {
		return 0, errors.Wrap(err, "error listing running containers")
	}

	var merr *multierror.Error
	killed := 0
	for _, cont := range containers {
		if err := d.cl.ContainerKill(ctx, cont.ID, unix.SignalName(unix.SIGKILL)); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("killing container %s: %w", cont.ID, err))
			continue
		}
		killed++
	}
	return killed, merr.ErrorOrNil()
}
