package utils

import (
	"io"
	"sync"
)

const copyBufferSize = 256 * 1024

type buffer struct {
	b []byte
}

var copyBuffers = sync.Pool{
	New: func() interface{} {
		return &buffer{b: make([]byte, copyBufferSize)}
	},
}

// Copy is io.Copy with a pooled buffer, used for file-sized copies through
// compressors and uploaders.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := copyBuffers.Get().(*buffer)
	defer copyBuffers.Put(buf)

	// Hide ReaderFrom/WriterTo so the pooled buffer is actually used.
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf.b)
}
