package resolver

import (
	"strings"
	"time"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
