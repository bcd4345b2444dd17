package config

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Assignments expands parameter axes into the full cartesian product of their
// values, one assignment per combination. Axes are walked in sorted order and
// the last axis varies fastest, so the output order is reproducible across
// runs regardless of map iteration order.
func Assignments(params map[string][]interface{}) []map[string]interface{} {
	if len(params) == 0 {
		return []map[string]interface{}{{}}
	}

	axes := maps.Keys(params)
	slices.Sort(axes)

	valueSets := make([][]interface{}, 0, len(axes))
	for _, axis := range axes {
		valueSets = append(valueSets, params[axis])
	}

	values := cartesianProduct(valueSets)
	assignments := make([]map[string]interface{}, 0, len(values))
	for _, combination := range values {
		assignment := make(map[string]interface{}, len(axes))
		for i, axis := range axes {
			assignment[axis] = combination[i]
		}
		assignments = append(assignments, assignment)
	}
	return assignments
}

func cartesianProduct(valueSets [][]interface{}) [][]interface{} {
	switch {
	case len(valueSets) == 0:
		return nil
	case len(valueSets) == 1:
		cross := make([][]interface{}, 0, len(valueSets[0]))
		for _, value := range valueSets[0] {
			cross = append(cross, []interface{}{value})
		}
		return cross
	default:
		right := cartesianProduct(valueSets[1:])
		left := valueSets[0]
		cross := make([][]interface{}, 0, len(left)*len(right))
		for _, lValue := range left {
			for _, rValue := range right {
				var combined []interface{}
				combined = append(combined, lValue)
				combined = append(combined, rValue...)
				cross = append(cross, combined)
			}
		}
		return cross
	}
}
