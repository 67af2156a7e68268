package quota

import (
	"fmt"
	"strings"
)

// QueueNumber returns the human-facing queue number for the n-th event of the
// day (n counts the new event). For a capacitated tenant it counts down from
// the capacity and goes to zero or below once free mode admits past it. For
// an uncapped tenant it is n.
func QueueNumber(capacity, n int, capacitated bool) int {
	if !capacitated {
		return n
	}
	return capacity - n + 1
}

// Ticket formats "[PREFIX-]YYMMDD-NNN" for the n-th event on dayKey
// (YYYY-MM-DD).
func Ticket(prefix, dayKey string, n int) string {
	ymd := strings.ReplaceAll(dayKey, "-", "")
	if len(ymd) == 8 {
		ymd = ymd[2:]
	}
	t := fmt.Sprintf("%s-%03d", ymd, n)
	if p := strings.TrimSpace(prefix); p != "" {
		t = strings.ToUpper(p) + "-" + t
	}
	return t
}
