package provider

import (
	"encoding/json"
	"errors"
	"strings"

	"ratehub/internal/domain"
	"ratehub/internal/infrastructure/httpx"

	"github.com/shopspring/decimal"
)

// parsePrice accepts a JSON number or numeric string. Anything else, and any
// non-positive value, is rejected so the caller can omit the pair.
func parsePrice(raw json.RawMessage) (domain.Price, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, false
	}
	p, err := decimal.NewFromString(s)
	if err != nil || domain.ValidatePrice(p) != nil {
		return decimal.Zero, false
	}
	return p, true
}

// unavailable maps a transport error to the source's failure type. Every
// secret is masked in the wrapped error's text.
func unavailable(id domain.SourceID, err error, secrets ...string) error {
	err = redact(err, secrets...)
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return domain.SourceUnavailable(id, "bad status", err)
	}
	return domain.SourceUnavailable(id, "request failed", err)
}

type redactedError struct {
	err     error
	secrets []string
}

func (e *redactedError) Error() string {
	msg := e.err.Error()
	for _, s := range e.secrets {
		msg = strings.ReplaceAll(msg, s, "***")
	}
	return msg
}

func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secrets ...string) error {
	var keep []string
	for _, s := range secrets {
		if s != "" {
			keep = append(keep, s)
		}
	}
	if err == nil || len(keep) == 0 {
		return err
	}
	return &redactedError{err: err, secrets: keep}
}
