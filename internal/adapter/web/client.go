// Package web implements ports.WebClient on top of go-resty.
package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

const (
	defaultTimeout = 30 * time.Second
	readChunkSize  = 32 * 1024
	userAgent      = "gojukebox"
)

// Client executes requests and streams response bodies so that download
// progress can be reported while bytes arrive.
type Client struct {
	logger  *slog.Logger
	http    *resty.Client
	timeout time.Duration
}

// NewClient creates a client. A zero timeout selects 30 seconds.
func NewClient(logger *slog.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc := resty.New().
		SetHeader("User-Agent", userAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	return &Client{
		logger:  logger,
		http:    rc,
		timeout: timeout,
	}
}

// Do executes req. Transport failures and request timeouts are returned as
// errors wrapping domain.ErrNetwork; cancellation of ctx by the caller
// returns ctx's own error. Any HTTP status, including failures, is returned
// as a response.
func (c *Client) Do(ctx context.Context, req ports.WebRequest, onProgress ports.ProgressFunc) (*ports.WebResponse, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := c.http.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true)
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	method := req.Method
	if method == "" {
		method = resty.MethodGet
	}

	c.logger.Debug("web request", slog.String("method", method), slog.String("url", req.URL))

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		if ctxErr := requestContextError(ctx, reqCtx, method, req.URL); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, req.URL, err)
	}

	body := resp.RawBody()
	defer body.Close()

	var total int64 = -1
	if resp.RawResponse != nil {
		total = resp.RawResponse.ContentLength
	}

	data, err := readWithProgress(reqCtx, body, total, onProgress)
	if err != nil {
		if ctxErr := requestContextError(ctx, reqCtx, method, req.URL); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrNetwork, req.URL, err)
	}

	return &ports.WebResponse{StatusCode: resp.StatusCode(), Body: data}, nil
}

// requestContextError tells a caller cancellation, returned as is, from the
// per-request deadline, which is a network failure. It returns nil while
// reqCtx is still live.
func requestContextError(parent, reqCtx context.Context, method, url string) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if reqCtx.Err() != nil {
		return fmt.Errorf("%w: %s %s: timed out", domain.ErrNetwork, method, url)
	}
	return nil
}

// readWithProgress drains r, reporting received/total after every chunk.
// When the length is unknown only the final 1.0 is reported.
func readWithProgress(ctx context.Context, r io.Reader, total int64, onProgress ports.ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	chunk := make([]byte, readChunkSize)
	var received int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			received += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(min(float64(received)/float64(total), 1))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if onProgress != nil {
		onProgress(1)
	}
	return buf.Bytes(), nil
}

var _ ports.WebClient = (*Client)(nil)
