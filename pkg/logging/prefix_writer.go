package logging

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter prepends a fixed prefix to every complete line written to it.
// Incomplete trailing data is held back until its newline arrives.
type PrefixWriter struct {
	mu      sync.Mutex
	prefix  []byte
	writer  io.Writer
	pending []byte
}

// NewPrefixWriter creates a new PrefixWriter.
func NewPrefixWriter(prefix string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{
		prefix: []byte(prefix),
		writer: w,
	}
}

// Write implements io.Writer.
func (pw *PrefixWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.pending = append(pw.pending, p...)
	for {
		idx := bytes.IndexByte(pw.pending, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, 0, len(pw.prefix)+idx+1)
		line = append(line, pw.prefix...)
		line = append(line, pw.pending[:idx+1]...)
		if _, err := pw.writer.Write(line); err != nil {
			return 0, err
		}
		pw.pending = pw.pending[idx+1:]
	}

	return len(p), nil
}
