package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Keys shown after the message, in order, when present.
var detailKeys = []string{"event_type", "unit", "step", "status", "outcome", "error", "error_hint"}

// FormatLine renders a JSON log record as "15:04:05 LEVEL message key=value".
// Lines that are not JSON objects are returned unchanged.
func FormatLine(raw string) string {
	var record map[string]any
	if err := json.Unmarshal([]byte(raw), &record); err != nil || record == nil {
		return raw
	}

	var b strings.Builder
	if parsed, ok := recordTime(record); ok {
		b.WriteString(parsed.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	if level, ok := record["level"].(string); ok {
		fmt.Fprintf(&b, "%-5s ", strings.ToUpper(level))
	}
	if msg, ok := record["msg"].(string); ok {
		b.WriteString(msg)
	}

	seen := map[string]bool{"ts": true, "time": true, "level": true, "msg": true, "source": true, "job_id": true, "subject_id": true}
	for _, key := range detailKeys {
		if value, ok := record[key]; ok {
			fmt.Fprintf(&b, " %s=%v", key, value)
			seen[key] = true
		}
	}
	var extra []string
	for key := range record {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		fmt.Fprintf(&b, " %s=%v", key, record[key])
	}
	return b.String()
}

// recordTime reads the record timestamp. bookloom writes "ts"; plain slog
// JSON output uses "time".
func recordTime(record map[string]any) (time.Time, bool) {
	for _, key := range []string{"ts", "time"} {
		if value, ok := record[key].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
