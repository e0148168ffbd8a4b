package utils

import (
	"fmt"
	"io"
	"time"
)

// DefaultProgressInterval is how many bytes pass between progress callbacks.
const DefaultProgressInterval int64 = 10 * 1024 * 1024

// ProgressFunc receives the running byte total and elapsed time.
type ProgressFunc func(total int64, elapsed time.Duration)

// ProgressReader wraps an io.Reader, counts bytes read and reports progress
// every interval bytes.
type ProgressReader struct {
	reader   io.Reader
	total    int64
	start    time.Time
	interval int64
	onUpdate ProgressFunc
}

// NewProgressReader creates a counting reader. onUpdate may be nil.
func NewProgressReader(reader io.Reader, onUpdate ProgressFunc) *ProgressReader {
	return &ProgressReader{
		reader:   reader,
		start:    time.Now(),
		interval: DefaultProgressInterval,
		onUpdate: onUpdate,
	}
}

// Read implements io.Reader.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.total += int64(n)
		if pr.onUpdate != nil && crossed(pr.total, int64(n), pr.interval) {
			pr.onUpdate(pr.total, time.Since(pr.start))
		}
	}
	return n, err
}

// BytesRead returns the total number of bytes read.
func (pr *ProgressReader) BytesRead() int64 {
	return pr.total
}

// CountingWriter wraps an io.Writer and counts bytes written.
type CountingWriter struct {
	writer io.Writer
	total  int64
}

// NewCountingWriter creates a counting writer.
func NewCountingWriter(writer io.Writer) *CountingWriter {
	return &CountingWriter{writer: writer}
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.writer.Write(p)
	cw.total += int64(n)
	return n, err
}

// BytesWritten returns the total number of bytes written.
func (cw *CountingWriter) BytesWritten() int64 {
	return cw.total
}

// crossed reports whether adding n bytes moved total past a multiple of interval.
func crossed(total, n, interval int64) bool {
	return interval > 0 && total/interval != (total-n)/interval
}

// FormatBytes formats bytes in human-readable format.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatRate formats a transfer of bytes over d, e.g. "1.5 MB/s".
func FormatRate(bytes int64, d time.Duration) string {
	if d <= 0 {
		return FormatBytes(bytes) + "/s"
	}
	return FormatBytes(int64(float64(bytes)/d.Seconds())) + "/s"
}
