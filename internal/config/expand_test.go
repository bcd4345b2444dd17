package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/set"
)

func TestAssignmentsOrder(t *testing.T) {
	params := map[string][]interface{}{
		"batch-size":    {32, 64},
		"learning-rate": {0.01},
		"epochs":        {1, 5},
	}

	got := Assignments(params)
	want := []map[string]interface{}{
		{"batch-size": 32, "epochs": 1, "learning-rate": 0.01},
		{"batch-size": 32, "epochs": 5, "learning-rate": 0.01},
		{"batch-size": 64, "epochs": 1, "learning-rate": 0.01},
		{"batch-size": 64, "epochs": 5, "learning-rate": 0.01},
	}
	require.Equal(t, want, got)

	// The expansion must be reproducible across runs.
	require.Equal(t, got, Assignments(params))
}

func TestAssignmentsCardinality(t *testing.T) {
	params := map[string][]interface{}{
		"batch-size":    {8, 16, 32},
		"epochs":        {1, 10},
		"learning-rate": {0.1, 0.01},
	}

	got := Assignments(params)
	require.Len(t, got, 12)

	seen := set.New[string]()
	for _, assignment := range got {
		key := fmt.Sprintf("%v|%v|%v",
			assignment["batch-size"], assignment["epochs"], assignment["learning-rate"])
		require.False(t, seen.Contains(key), "duplicate assignment %v", assignment)
		seen.Insert(key)
	}
}

func TestAssignmentsEdgeCases(t *testing.T) {
	require.Equal(t,
		[]map[string]interface{}{{}},
		Assignments(nil))

	require.Empty(t, Assignments(map[string][]interface{}{
		"batch-size": {},
		"epochs":     {1},
	}))
}
