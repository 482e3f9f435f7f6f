package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ErrorTypeSuccess},
		{context.Canceled, ErrorTypeFatal},
		{fmt.Errorf("dial tcp: connection refused"), ErrorTypeNetwork},
		{fmt.Errorf("net/http: TLS handshake timeout"), ErrorTypeNetwork},
		{fmt.Errorf("read: connection reset by peer"), ErrorTypeNetwork},
		{errors.New("unexpected EOF"), ErrorTypeNetwork},
		{errors.New("request throttled"), ErrorTypeRetryable},
		{errors.New("400 bad request"), ErrorTypeFatal},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := map[int]ErrorType{
		200: ErrorTypeSuccess,
		204: ErrorTypeSuccess,
		400: ErrorTypeFatal,
		404: ErrorTypeFatal,
		408: ErrorTypeRetryable,
		429: ErrorTypeRetryable,
		500: ErrorTypeRetryable,
		501: ErrorTypeFatal,
		503: ErrorTypeRetryable,
	}
	for code, want := range tests {
		if got := ClassifyStatus(code); got != want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestCheckRetry(t *testing.T) {
	ctx := context.Background()

	retry, _ := CheckRetry(ctx, &http.Response{StatusCode: 503}, nil)
	if !retry {
		t.Error("expected retry on 503")
	}
	retry, _ = CheckRetry(ctx, &http.Response{StatusCode: 404}, nil)
	if retry {
		t.Error("expected no retry on 404")
	}
	retry, err := CheckRetry(ctx, nil, errors.New("connection refused"))
	if !retry || err == nil {
		t.Error("expected retry on network error with error passed through")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	retry, err = CheckRetry(cancelled, &http.Response{StatusCode: 503}, nil)
	if retry || !errors.Is(err, context.Canceled) {
		t.Errorf("expected no retry after cancel, got retry=%v err=%v", retry, err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := CalculateBackoff(0, time.Second, time.Minute); d != 0 {
		t.Errorf("attempt 0 should not wait, got %v", d)
	}
	for attempt := 1; attempt <= 10; attempt++ {
		d := CalculateBackoff(attempt, 100*time.Millisecond, 2*time.Second)
		if d < 0 || d >= 2*time.Second {
			t.Errorf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

func TestBackoff_RetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: 429, Header: http.Header{}}
	resp.Header.Set("Retry-After", "2")
	if d := Backoff(time.Millisecond, 10*time.Second, 0, resp); d != 2*time.Second {
		t.Errorf("expected Retry-After to be honoured, got %v", d)
	}
	resp.Header.Set("Retry-After", "120")
	if d := Backoff(time.Millisecond, 10*time.Second, 0, resp); d >= 10*time.Second {
		t.Errorf("Retry-After beyond max should fall back to jittered backoff, got %v", d)
	}
}
