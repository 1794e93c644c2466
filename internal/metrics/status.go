package metrics

import (
	"sort"
	"strconv"
)

// StatusBucket represents the response count for a scenario/status pair.
type StatusBucket struct {
	Scenario string
	Code     string
	Count    int
}

// FlattenStatusBuckets converts a nested scenario->status map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by scenario/code for stability.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for scenario, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Scenario: scenario, Code: code, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Scenario == rows[j].Scenario {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Scenario < rows[j].Scenario
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// statusLabel renders a status code for bucketing; 0 means the request never got a response.
func statusLabel(code int) string {
	if code <= 0 {
		return "NO_RESPONSE"
	}
	return strconv.Itoa(code)
}
