package application

import "context"

// UnitOfWork groups a journal append and a snapshot replace. Stores that can
// share a transaction (pg) pick it up from ctx; file stores run with NoopUoW.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoopUoW executes the function without starting a transaction.
type NoopUoW struct{}

func (NoopUoW) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
