package tracking

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	return NewStore(filepath.Join(t.TempDir(), "tracking.csv"))
}

func sampleRecords() []JobRecord {
	return []JobRecord{
		{
			BenchmarkName: "resnet50",
			SystemName:    "dgx1",
			Devices:       []int{0, 1},
			DockerName:    "resnet50-dgx1-fp16-B32xE10xLR0.01",
			Status:        Pending,
			Cmd:           `docker run -d --rm --ipc=host --name=resnet50-dgx1-fp16-B32xE10xLR0.01 --gpus 'device=0,1' -w /workspace -e PRECISION=fp16 resnet50 bash -c 'python train.py --batch 32'`,
		},
		{
			BenchmarkName: "bert",
			SystemName:    "dgx1",
			Devices:       []int{2},
			DockerName:    "bert-dgx1-fp32-B8xE3xLR0.001",
			Status:        Running,
			Cmd:           `docker run -d --rm --name=bert-dgx1-fp32-B8xE3xLR0.001 bert bash -c 'true'`,
		},
	}
}

func TestRoundTrip(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Init(false))
	require.NoError(t, store.Append(sampleRecords()))

	records, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, sampleRecords(), records)
}

func TestInitAppendKeepsExistingRows(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Init(false))
	require.NoError(t, store.Append(sampleRecords()[:1]))

	require.NoError(t, store.Init(true))
	records, err := store.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, store.Init(false))
	records, err = store.Load()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSaveOverwrites(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Init(false))
	require.NoError(t, store.Append(sampleRecords()))

	records, err := store.Load()
	require.NoError(t, err)
	records[0].Status = Running
	records[1].Status = Stopped
	require.NoError(t, store.Save(records))

	reloaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, Running, reloaded[0].Status)
	require.Equal(t, Stopped, reloaded[1].Status)
	require.Len(t, reloaded, 2)
}

func TestLoadRejectsCorruptTables(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty file",
			content: "",
			wantErr: "missing its header",
		},
		{
			name:    "wrong header",
			content: "a,b,c\n",
			wantErr: "unexpected header",
		},
		{
			name:    "unknown status",
			content: "benchmark_name,system_name,devices,docker_name,status,cmd\nresnet50,dgx1,\"0,1\",resnet50-dgx1,LAUNCHING,cmd\n",
			wantErr: "unknown job status",
		},
		{
			name:    "bad device index",
			content: "benchmark_name,system_name,devices,docker_name,status,cmd\nresnet50,dgx1,zero,resnet50-dgx1,PENDING,cmd\n",
			wantErr: "bad device index",
		},
		{
			name:    "empty docker name",
			content: "benchmark_name,system_name,devices,docker_name,status,cmd\nresnet50,dgx1,0,,PENDING,cmd\n",
			wantErr: "empty docker_name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tracking.csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := NewStore(path).Load()
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestStatus(t *testing.T) {
	for _, s := range []Status{Pending, Running, Stopped, BuildFailed} {
		parsed, err := ParseStatus(string(s))
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
	_, err := ParseStatus("DONE")
	require.ErrorContains(t, err, "unknown job status")

	require.False(t, Pending.Terminal())
	require.False(t, Running.Terminal())
	require.True(t, Stopped.Terminal())
	require.True(t, BuildFailed.Terminal())
}

func TestDeviceCells(t *testing.T) {
	require.Equal(t, "0,1,3", FormatDevices([]int{0, 1, 3}))
	require.Equal(t, "2", FormatDevices([]int{2}))

	devices, err := ParseDevices(" 0, 1 ,3")
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 3}, devices)

	_, err = ParseDevices("")
	require.ErrorContains(t, err, "empty device list")
}
