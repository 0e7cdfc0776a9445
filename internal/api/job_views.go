package api

import (
	"sort"
	"time"
)

// SortJobsNewestFirst orders jobs by QueuedAt descending, breaking ties by ID descending.
func SortJobsNewestFirst(items []JobItem) []JobItem {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]JobItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti := parseTime(sorted[i].QueuedAt)
		tj := parseTime(sorted[j].QueuedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// ParseTime exposes API timestamp parsing for consumers that need display formatting.
func ParseTime(value string) time.Time {
	return parseTime(value)
}
