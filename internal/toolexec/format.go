package toolexec

import (
	"fmt"
	"strings"
	"time"
)

// summarizeAvailability renders the human-readable availability summary the
// LLM reads back to the caller, with busy intervals shown in the tenant's
// local time in 12-hour format.
func summarizeAvailability(busy []BusyInterval, loc *time.Location) string {
	if len(busy) == 0 {
		return "That entire time range is free."
	}

	spans := make([]string, 0, len(busy))
	for _, b := range busy {
		spans = append(spans, fmt.Sprintf("%s-%s", formatClock(b.Start, loc), formatClock(b.End, loc)))
	}
	return fmt.Sprintf("I have existing appointments at: %s. Times outside of these are available.", strings.Join(spans, ", "))
}

// formatClock renders t in loc using a 12-hour clock, e.g. "2:00 PM".
func formatClock(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("3:04 PM")
}
