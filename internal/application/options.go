package application

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSourceTimeout bounds every upstream call made by this package.
const DefaultSourceTimeout = 10 * time.Second

type deps struct {
	clock   Clock
	log     *zap.Logger
	obs     Observer
	uow     UnitOfWork
	timeout time.Duration
	writeMu *sync.Mutex
}

type Option func(*deps)

func WithClock(c Clock) Option { return func(d *deps) { d.clock = c } }
func WithLogger(l *zap.Logger) Option { return func(d *deps) { d.log = l } }
func WithObserver(o Observer) Option { return func(d *deps) { d.obs = o } }
func WithUnitOfWork(u UnitOfWork) Option { return func(d *deps) { d.uow = u } }
func WithSourceTimeout(t time.Duration) Option { return func(d *deps) { d.timeout = t } }

// WithWriteLock shares one snapshot write lock between every service that
// writes to the same store. Without it each service guards only its own writes.
func WithWriteLock(mu *sync.Mutex) Option { return func(d *deps) { d.writeMu = mu } }

func newDeps(opts []Option) deps {
	var d deps
	for _, opt := range opts {
		opt(&d)
	}
	if d.clock == nil {
		d.clock = realClock{}
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.obs == nil {
		d.obs = nopObserver{}
	}
	if d.uow == nil {
		d.uow = NoopUoW{}
	}
	if d.writeMu == nil {
		d.writeMu = &sync.Mutex{}
	}
	if d.timeout <= 0 {
		d.timeout = DefaultSourceTimeout
	}
	return d
}
