package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidPair         = errors.New("invalid pair")
	ErrNonPositivePrice    = errors.New("price must be positive")
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrRateUnavailable     = errors.New("rate unavailable")
	ErrStorage             = errors.New("storage failure")
)

// SourceUnavailableError is the only failure a source client reports.
type SourceUnavailableError struct {
	Source SourceID
	Reason string
	Err    error
}

func SourceUnavailable(src SourceID, reason string, err error) *SourceUnavailableError {
	return &SourceUnavailableError{Source: src, Reason: reason, Err: err}
}

func (e *SourceUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Reason)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func (e *SourceUnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

type RateUnavailableError struct {
	From string
	To   string
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("rate %s->%s unavailable", e.From, e.To)
}

func (e *RateUnavailableError) Is(target error) bool { return target == ErrRateUnavailable }

// StorageError wraps err so that errors.Is(err, ErrStorage) holds.
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
