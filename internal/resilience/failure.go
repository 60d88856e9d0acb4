package resilience

import (
	"sync"
	"time"
)

// Failure records a URL whose scan exhausted its retries. The orchestrator
// keeps these for the error log and the pending-URL list written at the end
// of a run.
type Failure struct {
	Brand     string    `json:"brand"`
	URL       string    `json:"url"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"` // "transient", "blocked", or "permanent"
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

// ClassifyError categorizes an error for failure records.
func ClassifyError(err error) string {
	switch {
	case IsBlocked(err):
		return "blocked"
	case IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}

// FailureLog is a concurrency-safe accumulator of scan failures.
type FailureLog struct {
	mu       sync.Mutex
	failures []Failure
}

// NewFailureLog creates an empty failure log.
func NewFailureLog() *FailureLog {
	return &FailureLog{}
}

// Record appends a failure.
func (l *FailureLog) Record(brand, url, stage string, attempts int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, Failure{
		Brand:     brand,
		URL:       url,
		Stage:     stage,
		Error:     err.Error(),
		ErrorType: ClassifyError(err),
		Attempts:  attempts,
		FailedAt:  time.Now(),
	})
}

// Failures returns a copy of the accumulated failures.
func (l *FailureLog) Failures() []Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Failure, len(l.failures))
	copy(out, l.failures)
	return out
}

// PendingURLs returns the failed URLs that are worth retrying in a later
// run: everything except permanent failures.
func (l *FailureLog) PendingURLs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var urls []string
	for _, f := range l.failures {
		if f.ErrorType != "permanent" {
			urls = append(urls, f.URL)
		}
	}
	return urls
}

// Len returns the number of recorded failures.
func (l *FailureLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}
