package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func okResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{}`)), Header: http.Header{}}
}

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"dial", dial, true},
		{"wrapped dial", &urlError{dial}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		if got := ShouldRetry(tt.err); got != tt.want {
			t.Fatalf("%s: ShouldRetry = %v, want %v", tt.name, got, tt.want)
		}
	}
}

type urlError struct{ err error }

func (e *urlError) Error() string { return "wrapped: " + e.err.Error() }
func (e *urlError) Unwrap() error { return e.err }

func TestRetryTransportRetriesDialErrors(t *testing.T) {
	var calls int32
	base := roundTripFunc(func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
		}
		return okResponse(), nil
	})
	client := BuildHTTPClient(Options{Name: "test", Base: base, Backoff: time.Millisecond})

	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid/x", strings.NewReader(`{"a":1}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	var calls int32
	base := roundTripFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("tls: bad certificate")
	})
	client := BuildHTTPClient(Options{Base: base, Backoff: time.Millisecond})

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/x", nil)
	if _, err := client.Do(req); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryTransportDisabled(t *testing.T) {
	var calls int32
	base := roundTripFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	})
	client := BuildHTTPClient(Options{Base: base, Retries: -1})

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/x", nil)
	if _, err := client.Do(req); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"forbidden"}`))
			return
		}
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"echo":"` + in["name"].(string) + `"}`))
	}))
	defer srv.Close()

	client := BuildHTTPClient(Options{Name: "test", Retries: -1})
	header := http.Header{"Authorization": []string{"Token secret"}}

	var out struct {
		Echo string `json:"echo"`
	}
	if err := DoJSON(context.Background(), client, http.MethodPost, srv.URL, header, map[string]string{"name": "x"}, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if out.Echo != "x" {
		t.Fatalf("echo = %q", out.Echo)
	}

	err := DoJSON(context.Background(), client, http.MethodPost, srv.URL+"?key=hidden", nil, map[string]string{"name": "x"}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusForbidden || string(se.Body) != `{"detail":"forbidden"}` {
		t.Fatalf("status error = %+v", se)
	}
	if strings.Contains(se.Error(), "hidden") {
		t.Fatalf("query string leaked into error: %s", se.Error())
	}
}

func TestDoJSONDecodeFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]any
	err := DoJSON(context.Background(), BuildHTTPClient(Options{Retries: -1}), http.MethodGet, srv.URL, nil, nil, &out)
	if err == nil || !strings.Contains(err.Error(), "failed to decode json") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
