package docker

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/container"
)

type fakeAPI struct {
	buildResp  types.ImageBuildResponse
	buildErr   error
	containers []types.Container
	listErr    error
	killErr    map[string]error
	killed     []string
}

func (f *fakeAPI) ImageBuild(_ context.Context, _ io.Reader,
	_ types.ImageBuildOptions,
) (types.ImageBuildResponse, error) {
	return f.buildResp, f.buildErr
}

func (f *fakeAPI) ContainerList(_ context.Context,
	_ types.ContainerListOptions,
) ([]types.Container, error) {
	return f.containers, f.listErr
}

func (f *fakeAPI) ContainerKill(_ context.Context, containerID, _ string) error {
	if err, ok := f.killErr[containerID]; ok {
		return err
	}
	f.killed = append(f.killed, containerID)
	return nil
}

func TestLaunchDetached(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		grace   time.Duration
		wantErr string
	}{
		{
			name:  "clean start",
			cmd:   "exit 0",
			grace: time.Second,
		},
		{
			name:    "immediate failure",
			cmd:     "echo boom >&2; exit 3",
			grace:   time.Second,
			wantErr: "failed to start: boom",
		},
		{
			name:  "still running after grace counts as started",
			cmd:   "sleep 1",
			grace: 50 * time.Millisecond,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl := newClient(&fakeAPI{})
			cl.launchGrace = tt.grace

			err := cl.Launch(context.Background(), tt.cmd, container.Detached)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLaunchInteractiveReportsExit(t *testing.T) {
	cl := newClient(&fakeAPI{})

	require.NoError(t, cl.Launch(context.Background(), "true", container.Interactive))
	require.ErrorContains(t,
		cl.Launch(context.Background(), "exit 7", container.Interactive),
		"interactive launch exited")
}

func TestListRunning(t *testing.T) {
	cl := newClient(&fakeAPI{containers: []types.Container{
		{ID: "aaa", Names: []string{"/resnet50-dgx1-fp16-B32xE10xLR0.01"}},
		{ID: "bbb", Names: []string{"/bert-dgx1-fp32-B8xE3xLR0.001"}},
		{ID: "ccc"},
	}})

	names, err := cl.ListRunning(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"resnet50-dgx1-fp16-B32xE10xLR0.01",
		"bert-dgx1-fp32-B8xE3xLR0.001",
	}, names)
}

func TestKillAll(t *testing.T) {
	api := &fakeAPI{
		containers: []types.Container{{ID: "aaa"}, {ID: "bbb"}, {ID: "ccc"}},
		killErr:    map[string]error{"bbb": errors.New("no such container")},
	}
	cl := newClient(api)

	killed, err := cl.KillAll(context.Background())
	require.Equal(t, 2, killed)
	require.Equal(t, []string{"aaa", "ccc"}, api.killed)
	require.ErrorContains(t, err, "killing container bbb")
}

func TestBuildImageStreamError(t *testing.T) {
	body := strings.Join([]string{
		`{"stream":"Step 1/3 : FROM nvcr.io/nvidia/pytorch:23.01-py3\n"}`,
		`{"errorDetail":{"message":"The command '/bin/sh -c make' returned a non-zero code: 2"},"error":"The command '/bin/sh -c make' returned a non-zero code: 2"}`,
	}, "\n")
	cl := newClient(&fakeAPI{
		buildResp: types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(body))},
	})

	err := cl.BuildImage(context.Background(), container.BuildSpec{
		ContextDir: t.TempDir(),
		Dockerfile: "Dockerfile",
		Tag:        "resnet50",
	})
	require.ErrorContains(t, err, "returned a non-zero code")
}

func TestBuildImageSuccess(t *testing.T) {
	body := `{"stream":"Successfully tagged resnet50:latest\n"}`
	cl := newClient(&fakeAPI{
		buildResp: types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(body))},
	})

	err := cl.BuildImage(context.Background(), container.BuildSpec{
		ContextDir: t.TempDir(),
		Dockerfile: "Dockerfile",
		Tag:        "resnet50",
	})
	require.NoError(t, err)
}

func TestBuildImageRejectsBadTag(t *testing.T) {
	cl := newClient(&fakeAPI{})
	err := cl.BuildImage(context.Background(), container.BuildSpec{
		ContextDir: t.TempDir(),
		Dockerfile: "Dockerfile",
		Tag:        "Not A Valid Tag",
	})
	require.ErrorContains(t, err, "invalid image tag")
}
