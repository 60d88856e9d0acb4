package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrorLog appends one line per pipeline failure in a stable, grep-friendly
// format:
//
//	[2026-08-29T10:30:00Z] stage=scan brand=Vitabox url=https://... error=...
type ErrorLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenErrorLog opens (or creates) the error log for appending.
func OpenErrorLog(path string) (*ErrorLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "batch: error log dir for %s", path)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open error log %s", path)
	}
	return &ErrorLog{f: f, path: path}, nil
}

// Append writes one failure line. Safe for concurrent use.
func (l *ErrorLog) Append(stage, brand, url string, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("[%s] stage=%s brand=%s url=%s error=%s\n",
		time.Now().UTC().Format(time.RFC3339), stage, brand, url, err.Error())
	if _, werr := l.f.WriteString(line); werr != nil {
		return eris.Wrapf(werr, "batch: append error log %s", l.path)
	}
	return nil
}

// Close flushes and closes the log file.
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
