package age

import (
	"fmt"
	"os"
	"time"
)

// ModTimeFilter implements Filter using the file's modification time.
type ModTimeFilter struct {
	now func() time.Time
}

// NewModTimeFilter creates a filter that uses the wall clock.
func NewModTimeFilter() *ModTimeFilter {
	return &ModTimeFilter{now: time.Now}
}

// WithClock returns a copy of the filter that reads the time from now.
func (f *ModTimeFilter) WithClock(now func() time.Time) *ModTimeFilter {
	return &ModTimeFilter{now: now}
}

// IsFinished implements Filter. A file is finished only when its age is
// strictly greater than threshold.
func (f *ModTimeFilter) IsFinished(path string, threshold time.Duration) (bool, string, error) {
	elapsed, err := FileAge(path, f.now())
	if err != nil {
		return false, "", err
	}

	if elapsed <= threshold {
		return false, fmt.Sprintf(
			"modified %s ago, finished after %s",
			formatDuration(elapsed),
			formatDuration(threshold),
		), nil
	}

	return true, fmt.Sprintf("modified %s ago", formatDuration(elapsed)), nil
}

// FileAge returns how long before now the file at path was last modified.
func FileAge(path string, now time.Time) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return now.Sub(info.ModTime()), nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0f minutes", d.Minutes())
	}
	return fmt.Sprintf("%.1f hours", d.Hours())
}
