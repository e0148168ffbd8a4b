// Package age decides whether a file has stopped being written to.
package age

import (
	"time"
)

// DefaultThreshold applies when a pattern does not set finished-secs.
// It is deliberately weak: almost any matched file counts as finished.
const DefaultThreshold = 5 * time.Second

// Filter defines the interface for the "finished file" heuristic.
type Filter interface {
	// IsFinished reports whether the file at path is old enough to be treated
	// as complete. The string return value is a human-readable reason.
	// An error is returned when the file cannot be inspected.
	IsFinished(path string, threshold time.Duration) (bool, string, error)
}

// Threshold converts a configured finished-secs value. Nil means DefaultThreshold.
func Threshold(secs *float64) time.Duration {
	if secs == nil {
		return DefaultThreshold
	}
	return time.Duration(*secs * float64(time.Second))
}
