// Package gpu reports GPU inventory and per-device compute activity on the
// benchmark host, as seen by nvidia-smi.
package gpu

import (
	"context"
	"encoding/csv"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/device"
)

var (
	queryGPUsArgs = []string{
		"nvidia-smi", "--query-gpu=index,name,uuid", "--format=csv,noheader",
	}
	queryComputeAppsArgs = []string{
		"nvidia-smi", "--query-compute-apps=gpu_uuid,pid", "--format=csv,noheader",
	}
)

// Occupancy maps a GPU index to the number of compute processes currently
// running on it.
type Occupancy map[int]int

// Provider reports the compute activity of the GPUs on the host. A device is
// free for dispatch only when its occupancy is zero.
type Provider interface {
	Occupancy(ctx context.Context) (Occupancy, error)
}

// SMI is a Provider backed by the nvidia-smi binary.
type SMI struct {
	log *log.Entry
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// New returns an SMI that shells out to nvidia-smi.
func New() *SMI {
	return &SMI{
		log: log.WithField("component", "nvidia-smi"),
		run: func(ctx context.Context, args ...string) ([]byte, error) {
			// #nosec G204
			return exec.CommandContext(ctx, args[0], args[1:]...).Output()
		},
	}
}

// Devices returns the GPUs visible to nvidia-smi.
func (s *SMI) Devices(ctx context.Context) ([]device.Device, error) {
	out, err := s.run(ctx, queryGPUsArgs...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing nvidia-smi to list GPUs")
	}

	devices := make([]device.Device, 0)
	r := csv.NewReader(strings.NewReader(string(out)))
	for {
		record, err := r.Read()
		switch {
		case err == io.EOF:
			return devices, nil
		case err != nil:
			return nil, errors.Wrap(err, "error parsing output of nvidia-smi as CSV")
		case len(record) != 3:
			return nil, errors.New(
				"error parsing output of nvidia-smi; GPU record should have exactly 3 fields")
		}

		index, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, errors.Wrap(
				err, "error parsing output of nvidia-smi; GPU index cannot be converted to int")
		}

		devices = append(devices, device.Device{
			ID:    index,
			Brand: strings.TrimSpace(record[1]),
			UUID:  strings.TrimSpace(record[2]),
		})
	}
}

// Occupancy returns the number of active compute processes per GPU index.
// Every visible GPU is present in the result, idle ones with a zero count.
func (s *SMI) Occupancy(ctx context.Context) (Occupancy, error) {
	devices, err := s.Devices(ctx)
	if err != nil {
		return nil, err
	}

	byUUID := make(map[string]int, len(devices))
	occupancy := make(Occupancy, len(devices))
	for _, d := range devices {
		byUUID[d.UUID] = d.ID
		occupancy[d.ID] = 0
	}

	out, err := s.run(ctx, queryComputeAppsArgs...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing nvidia-smi to list compute processes")
	}

	r := csv.NewReader(strings.NewReader(string(out)))
	for {
		record, err := r.Read()
		switch {
		case err == io.EOF:
			return occupancy, nil
		case err != nil:
			return nil, errors.Wrap(err, "error parsing output of nvidia-smi as CSV")
		case len(record) != 2:
			return nil, errors.New(
				"error parsing output of nvidia-smi; compute app record should have exactly 2 fields")
		}

		uuid := strings.TrimSpace(record[0])
		index, ok := byUUID[uuid]
		if !ok {
			s.log.Warnf("compute process on unknown GPU %s, ignoring", uuid)
			continue
		}
		occupancy[index]++
	}
}
