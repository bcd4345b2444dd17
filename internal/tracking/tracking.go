// Package tracking persists the benchmark job table. The table is a CSV file
// so operators can inspect and hand-edit the run queue with ordinary tools;
// every mutation rewrites it in place.
package tracking

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Status is the lifecycle state of a benchmark job.
type Status string

const (
	// Pending marks a job that is waiting for its devices to become idle.
	Pending Status = "PENDING"
	// Running marks a job whose container has been observed live.
	Running Status = "RUNNING"
	// Stopped marks a job whose container is no longer live. Terminal.
	Stopped Status = "STOPPED"
	// BuildFailed marks a job whose image build failed. Terminal, the job is
	// never eligible for launch.
	BuildFailed Status = "BUILD_FAILED"
)

// ParseStatus converts a tracking table cell into a Status.
func ParseStatus(s string) (Status, error) {
	switch status := Status(strings.TrimSpace(s)); status {
	case Pending, Running, Stopped, BuildFailed:
		return status, nil
	default:
		return "", errors.Errorf("unknown job status %q", s)
	}
}

// Terminal reports whether a job in this status can never run again.
func (s Status) Terminal() bool {
	return s == Stopped || s == BuildFailed
}

// header is the column layout of the tracking table.
var header = []string{"benchmark_name", "system_name", "devices", "docker_name", "status", "cmd"}

// JobRecord is one row of the tracking table: a single containerized
// benchmark run pinned to a fixed device set.
type JobRecord struct {
	BenchmarkName string
	SystemName    string
	Devices       []int
	DockerName    string
	Status        Status
	Cmd           string
}

func (r JobRecord) row() []string {
	return []string{
		r.BenchmarkName,
		r.SystemName,
		FormatDevices(r.Devices),
		r.DockerName,
		string(r.Status),
		r.Cmd,
	}
}

// FormatDevices renders a device set as the comma-joined tracking table cell,
// which is also the value handed to `--gpus 'device=...'`.
func FormatDevices(devices []int) string {
	parts := make([]string, 0, len(devices))
	for _, d := range devices {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

// ParseDevices parses a comma-joined device cell back into device indices.
func ParseDevices(cell string) ([]int, error) {
	if strings.TrimSpace(cell) == "" {
		return nil, errors.New("empty device list")
	}
	parts := strings.Split(cell, ",")
	devices := make([]int, 0, len(parts))
	for _, part := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "bad device index %q", part)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Store reads and writes the tracking table at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for the tracking table at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the tracking table.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the tracking table is already present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Init prepares the tracking table for a generation run. When appendExisting
// is set and the table already exists its contents are kept, otherwise a
// fresh table containing only the header is written.
func (s *Store) Init(appendExisting bool) error {
	if appendExisting && s.Exists() {
		return nil
	}
	f, err := os.Create(s.path)
	if err != nil {
		return errors.Wrapf(err, "error creating tracking file %s", s.path)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "error writing tracking header")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "error flushing tracking header")
	}
	return f.Close()
}

// Append adds records to the end of the tracking table.
func (s *Store) Append(records []JobRecord) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "error opening tracking file %s", s.path)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	for _, r := range records {
		if err := w.Write(r.row()); err != nil {
			return errors.Wrapf(err, "error writing tracking row for %s", r.DockerName)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "error flushing tracking rows")
	}
	return f.Close()
}

// Load reads the full tracking table, in file order.
func (s *Store) Load() ([]JobRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening tracking file %s", s.path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing tracking file %s", s.path)
	}
	if len(rows) == 0 {
		return nil, errors.Errorf("tracking file %s is missing its header", s.path)
	}
	if got := rows[0]; !equalHeader(got) {
		return nil, errors.Errorf("tracking file %s has unexpected header %v", s.path, got)
	}

	records := make([]JobRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		record, err := parseRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "tracking file %s row %d", s.path, i+2)
		}
		records = append(records, record)
	}
	return records, nil
}

// Save atomically replaces the tracking table with the given records.
func (s *Store) Save(records []JobRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "error creating temporary tracking file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "error writing tracking header")
	}
	for _, r := range records {
		if err := w.Write(r.row()); err != nil {
			return errors.Wrapf(err, "error writing tracking row for %s", r.DockerName)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "error flushing tracking rows")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "error closing temporary tracking file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "error replacing tracking file %s", s.path)
	}
	return nil
}

func equalHeader(got []string) bool {
	if len(got) != len(header) {
		return false
	}
	for i := range header {
		if strings.TrimSpace(got[i]) != header[i] {
			return false
		}
	}
	return true
}

func parseRow(row []string) (JobRecord, error) {
	if len(row) != len(header) {
		return JobRecord{}, errors.Errorf("expected %d fields, got %d", len(header), len(row))
	}

	devices, err := ParseDevices(row[2])
	if err != nil {
		return JobRecord{}, err
	}
	status, err := ParseStatus(row[4])
	if err != nil {
		return JobRecord{}, err
	}

	record := JobRecord{
		BenchmarkName: row[0],
		SystemName:    row[1],
		Devices:       devices,
		DockerName:    row[3],
		Status:        status,
		Cmd:           row[5],
	}
	if record.DockerName == "" {
		return JobRecord{}, errors.New("empty docker_name")
	}
	return record, nil
}

// String summarizes a record for logs.
func (r JobRecord) String() string {
	return fmt.Sprintf("%s [%s] devices=%s", r.DockerName, r.Status, FormatDevices(r.Devices))
}
