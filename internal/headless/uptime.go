package headless

import (
	"fmt"
	"regexp"
	"strings"
)

// [d.]hh:mm:ss[.fffffff]; hours may exceed 24.
var uptimePattern = regexp.MustCompile(`^(?:(\d+)\.)?(\d+):(\d{1,2}):(\d{1,2})(?:\.\d+)?$`)

// FormatUptime turns a console duration into a short phrase such as
// "1 day 2 hours" or "45 minutes". Minutes are only shown for uptimes below a
// day. Input that is not a duration is returned unchanged.
func FormatUptime(raw string) string {
	m := uptimePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return raw
	}

	days := atoi(m[1])
	hours := atoi(m[2])
	minutes := atoi(m[3])

	days += hours / 24
	hours %= 24

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if days == 0 && minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 {
		return "just started"
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
