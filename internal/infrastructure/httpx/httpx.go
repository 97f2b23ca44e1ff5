package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// StatusError is returned for any non-200 response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Retryable reports whether a retry could help (5xx and 429).
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

type Client struct {
	HTTP  *http.Client
	Token string
	Log   *zap.Logger

	// MaxElapsed bounds the whole retry loop. Zero means 3s.
	MaxElapsed time.Duration
}

// DoJSON sends req with ctx, retrying transport errors, 5xx and 429 with
// exponential backoff, and decodes a 200 body into out.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 1 * time.Second
	exp.MaxElapsedTime = 3 * time.Second
	if c.MaxElapsed > 0 {
		exp.MaxElapsedTime = c.MaxElapsed
	}

	op := func() error {
		resp, err := hc.Do(req.Clone(ctx))
		if err != nil {
			err = stripURL(err)
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			se := &StatusError{Code: resp.StatusCode, Body: string(snippet)}
			if se.Retryable() {
				return se
			}
			return backoff.Permanent(se)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode: %w", err))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("httpx.retry",
			zap.String("method", req.Method),
			zap.String("host", req.URL.Host),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify)
}

// stripURL drops the request URL from transport errors. Some upstreams take
// credentials in the path, and error text ends up in logs and API responses.
func stripURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	host := ""
	if u, perr := url.Parse(ue.URL); perr == nil {
		host = u.Host
	}
	return fmt.Errorf("%s %s: %w", ue.Op, host, ue.Err)
}
