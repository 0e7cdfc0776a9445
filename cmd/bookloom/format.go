package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"bookloom/internal/api"
	"bookloom/internal/queue"
)

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// displayTime renders an API timestamp in local time.
func displayTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

// unitSummary counts units whose final step for the pipeline is recorded.
func unitSummary(item api.JobItem) string {
	step := string(queue.StepText)
	if item.Pipeline == string(queue.PipelineAudio) {
		step = string(queue.StepAudio)
	}
	done := 0
	for _, unit := range item.Progress.Units {
		if slices.Contains(unit.Steps, step) {
			done++
		}
	}
	if len(item.Progress.Milestones) == 0 && done == 0 {
		return "-"
	}
	return strconv.Itoa(done)
}

func formatLock(item api.JobItem) string {
	if item.LockedBy == "" {
		return "-"
	}
	locked := api.ParseTime(item.LockedAt)
	if locked.IsZero() {
		return item.LockedBy
	}
	return fmt.Sprintf("%s (%s ago)", item.LockedBy, time.Since(locked).Round(time.Second))
}
