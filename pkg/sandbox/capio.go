package sandbox

import (
	"bytes"
	"sync"
)

// truncationMarker is appended once to any stream that exceeded its cap.
const truncationMarker = "\n... [output truncated]"

// cappedWriter collects stream output up to a fixed cap. Writes past the cap
// are discarded at write time, so a program printing gigabytes costs the
// executor at most the cap. Write never returns an error and always reports
// the full length, keeping the child process from seeing a broken pipe.
type cappedWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedWriter(limit int) *cappedWriter {
	return &cappedWriter{limit: limit}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.truncated {
		room := w.limit - w.buf.Len()
		if len(p) <= room {
			w.buf.Write(p)
		} else {
			w.buf.Write(p[:room])
			w.truncated = true
		}
	}
	return len(p), nil
}

// String returns the collected output with the truncation marker appended if
// the cap was hit.
func (w *cappedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.truncated {
		return w.buf.String() + truncationMarker
	}
	return w.buf.String()
}

// Truncated reports whether any output was discarded.
func (w *cappedWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}
