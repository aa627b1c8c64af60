package program

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
)

const megabyte = 1024 * 1024

// openLog opens path for appending, creating parent directories. A positive
// maxBytes switches to a size-rotated writer. An empty path yields a nil
// writer, which exec connects to the null device.
func openLog(path string, maxBytes int64, backups int) (io.WriteCloser, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	if maxBytes <= 0 {
		return f, nil
	}
	// The rotating writer opens the file itself; the open above only
	// surfaces permission errors at spawn time.
	_ = f.Close()
	size := int((maxBytes + megabyte - 1) / megabyte)
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    size,
		MaxBackups: backups,
	}, nil
}

// logFiles holds the writers a running process owns.
type logFiles struct {
	stdout io.WriteCloser
	stderr io.WriteCloser
}

func (l *logFiles) Close() error {
	if l == nil {
		return nil
	}
	var first error
	for _, w := range []io.WriteCloser{l.stdout, l.stderr} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.stdout, l.stderr = nil, nil
	return first
}
