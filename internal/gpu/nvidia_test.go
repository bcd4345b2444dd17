package gpu

import (
	"context"
	"reflect"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/device"
)

func fakeSMI(gpuOut, appsOut string) *SMI {
	return &SMI{
		log: log.WithField("component", "nvidia-smi"),
		run: func(_ context.Context, args ...string) ([]byte, error) {
			for _, arg := range args {
				if strings.HasPrefix(arg, "--query-compute-apps") {
					return []byte(appsOut), nil
				}
			}
			return []byte(gpuOut), nil
		},
	}
}

func TestDevices(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    []device.Device
		wantErr bool
	}{
		{
			name: "two GPUs",
			out:  "0, NVIDIA A100-SXM4-40GB, GPU-aaa\n1, NVIDIA A100-SXM4-40GB, GPU-bbb\n",
			want: []device.Device{
				{ID: 0, Brand: "NVIDIA A100-SXM4-40GB", UUID: "GPU-aaa"},
				{ID: 1, Brand: "NVIDIA A100-SXM4-40GB", UUID: "GPU-bbb"},
			},
		},
		{
			name: "no GPUs",
			out:  "",
			want: []device.Device{},
		},
		{
			name:    "bad index",
			out:     "x, NVIDIA T4, GPU-aaa\n",
			wantErr: true,
		},
		{
			name:    "wrong field count",
			out:     "0, NVIDIA T4\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fakeSMI(tt.out, "").Devices(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Devices() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Devices() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOccupancy(t *testing.T) {
	gpuOut := "0, NVIDIA A100-SXM4-40GB, GPU-aaa\n1, NVIDIA A100-SXM4-40GB, GPU-bbb\n"

	tests := []struct {
		name    string
		appsOut string
		want    Occupancy
	}{
		{
			name:    "all idle",
			appsOut: "",
			want:    Occupancy{0: 0, 1: 0},
		},
		{
			name:    "one busy",
			appsOut: "GPU-bbb, 4242\n",
			want:    Occupancy{0: 0, 1: 1},
		},
		{
			name:    "several processes on one GPU",
			appsOut: "GPU-aaa, 1\nGPU-aaa, 2\nGPU-bbb, 3\n",
			want:    Occupancy{0: 2, 1: 1},
		},
		{
			name:    "unknown GPU ignored",
			appsOut: "GPU-zzz, 7\n",
			want:    Occupancy{0: 0, 1: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fakeSMI(gpuOut, tt.appsOut).Occupancy(context.Background())
			if err != nil {
				t.Fatalf("Occupancy() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Occupancy() = %v, want %v", got, tt.want)
			}
		})
	}
}
