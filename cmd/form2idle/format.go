package main

import (
	"fmt"
	"math"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// formatRemaining renders a countdown as H:MM:SS, or MM:SS under an hour.
// Fractions of a second are dropped.
func formatRemaining(seconds float64) string {
	hours := int(seconds / (60 * 60))
	minutes := int(math.Mod(seconds/60, 60))
	secs := int(math.Mod(seconds, 60))
	if hours != 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// formatProgress is the verbose status line: the current time followed by
// either the countdown or, with eta, the expected finish time.
func formatProgress(now time.Time, seconds float64, eta bool) string {
	if eta {
		finish := now.Add(time.Duration(seconds * float64(time.Second)))
		return now.Format(timestampLayout) + ", " + finish.Format(timestampLayout)
	}
	return now.Format(timestampLayout) + ", " + formatRemaining(seconds)
}
