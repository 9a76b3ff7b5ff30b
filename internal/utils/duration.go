package utils

import "fmt"

// FormatDuration renders a second count as "1d 2h 30m". Zero and
// negative inputs render as "0m".
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0m"
	}

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	out := ""
	if days > 0 {
		out += fmt.Sprintf("%dd ", days)
	}
	if hours > 0 {
		out += fmt.Sprintf("%dh ", hours)
	}
	if minutes > 0 || out == "" {
		out += fmt.Sprintf("%dm ", minutes)
	}
	return out[:len(out)-1]
}
