package domain

import "time"

type SourceError struct {
	Source SourceID
	Reason string
}

// RefreshReport describes one aggregation run. It is never persisted.
type RefreshReport struct {
	PairsUpdated int
	SourcesOK    []SourceID
	Errors       []SourceError
	LastRefresh  time.Time
}
