package provider_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"ratehub/internal/infrastructure/httpx"

	"github.com/shopspring/decimal"
)

type rtFunc func(*http.Request) *http.Response

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r), nil }

// stub answers every request with body and code and records the last request.
type stub struct {
	calls atomic.Int32
	last  atomic.Pointer[http.Request]
}

func (s *stub) client(body string, code int) *httpx.Client {
	return &httpx.Client{
		HTTP: &http.Client{
			Timeout: 2 * time.Second,
			Transport: rtFunc(func(r *http.Request) *http.Response {
				s.calls.Add(1)
				s.last.Store(r)
				return &http.Response{
					StatusCode: code,
					Body:       io.NopCloser(strings.NewReader(body)),
					Header:     make(http.Header),
					Request:    r,
				}
			}),
		},
		MaxElapsed: time.Second,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var bg = context.Background()
