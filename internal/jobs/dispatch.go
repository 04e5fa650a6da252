package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tablestack/tablestack-backend/pkg/actor"
)

// Dispatcher hands a job to the component that performs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// DispatchError is a failed dispatch. Retryable failures go back to the queue;
// the rest are dead-lettered at once.
type DispatchError struct {
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dispatch failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dispatch failed: %v", e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is worth another attempt. Errors that are not
// a DispatchError are treated as transient.
func IsRetryable(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}

// TokenSigner issues the bearer token the worker expects.
type TokenSigner interface {
	Sign(a *actor.Actor, ttl time.Duration) (string, error)
}

// HTTPDispatcher posts the job payload to the sync worker as the system actor.
type HTTPDispatcher struct {
	client  *http.Client
	url     string
	signer  TokenSigner
	timeout time.Duration
}

// NewHTTPDispatcher creates a dispatcher for url. timeout bounds each call.
func NewHTTPDispatcher(url string, signer TokenSigner, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		client:  &http.Client{},
		url:     url,
		signer:  signer,
		timeout: timeout,
	}
}

// Dispatch posts the job. Transport errors, timeouts, 408, 429 and 5xx are
// retryable.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	token, err := d.signer.Sign(actor.SystemActor(), d.timeout+time.Minute)
	if err != nil {
		return &DispatchError{Err: fmt.Errorf("failed to sign token: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(job.Payload))
	if err != nil {
		return &DispatchError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Job-ID", strconv.FormatInt(job.ID, 10))

	resp, err := d.client.Do(req)
	if err != nil {
		return &DispatchError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &DispatchError{
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout,
		Err:        errors.New(string(bytes.TrimSpace(body))),
	}
}
