package ports

import (
	"context"
	"time"
)

// WebRequest describes one HTTP exchange.
type WebRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration // zero means the client default
}

// WebResponse is the terminal result of a request.
// Non-success statuses are returned as responses, not errors.
type WebResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *WebResponse) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// ProgressFunc receives download progress as a fraction in [0, 1].
type ProgressFunc func(fraction float64)

// WebClient executes HTTP requests with progress reporting.
//
// Do blocks until the request finishes, fails, or ctx is cancelled.
// onProgress may be nil; when set, it is called from the calling goroutine
// zero or more times before Do returns.
type WebClient interface {
	Do(ctx context.Context, req WebRequest, onProgress ProgressFunc) (*WebResponse, error)
}

// AudioInfo is what a probe could read from an audio file.
type AudioInfo struct {
	Format   string
	FileType string
	Title    string
	Artist   string
	Album    string
}

// AudioProbe reads tags from audio files.
type AudioProbe interface {
	Probe(path string) (*AudioInfo, error)
}
