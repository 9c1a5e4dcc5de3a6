package util

import (
	"fmt"
	"time"
)

// humanTimeFormat is the display format for timestamps shown to operators.
const humanTimeFormat = "2006-01-02 15:04:05"

// TimestampUTC returns the current time as an RFC3339 UTC string.
func TimestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// FormatHumanTime converts an RFC3339 timestamp to local display format.
func FormatHumanTime(rfc3339 string) string {
	if rfc3339 == "" || rfc3339 == "unknown" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Local().Format(humanTimeFormat)
}

// FormatDuration formats milliseconds as a human-readable duration string.
// Examples: "45s", "2m 34s", "1h 23m"
func FormatDuration(ms int64) string {
	totalSeconds := ms / 1000
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes %= 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
