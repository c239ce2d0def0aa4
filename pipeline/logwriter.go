package pipeline

import (
	"bytes"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// logWriter sends each complete line written to it to the logger and
// keeps the last few lines for error messages.
type logWriter struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	level    zerolog.Level
	stream   string
	redact   *redactor
	buf      bytes.Buffer
	tail     []string
	tailSize int
}

func newLogWriter(logger zerolog.Logger, level zerolog.Level, stream string, redact *redactor, tailSize int) *logWriter {
	return &logWriter{
		logger:   logger,
		level:    level,
		stream:   stream,
		redact:   redact,
		tailSize: tailSize,
	}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush logs a trailing line without newline.
func (w *logWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(strings.TrimRight(w.buf.String(), "\r\n"))
		w.buf.Reset()
	}
}

// Tail returns the kept lines joined by newlines.
func (w *logWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return strings.Join(w.tail, "\n")
}

func (w *logWriter) emit(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	line = w.redact.String(line)
	w.logger.WithLevel(w.level).Str("stream", w.stream).Msg(line)
	if w.tailSize > 0 {
		w.tail = append(w.tail, line)
		if len(w.tail) > w.tailSize {
			w.tail = w.tail[len(w.tail)-w.tailSize:]
		}
	}
}
