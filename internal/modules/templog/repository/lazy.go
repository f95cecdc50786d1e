package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"templog-server/internal/modules/templog/types"
)

// ConnectFunc establishes the backing repository. It is called at most once.
type ConnectFunc func(ctx context.Context) (TemperatureRepository, error)

// LazyRepository establishes its backing connection on first use and shares
// it across all callers. Callers arriving while the connection is pending
// wait for the same attempt. A failed attempt is final: every later call
// fails with ErrConnectionUnavailable.
type LazyRepository struct {
	connect ConnectFunc
	logger  *slog.Logger

	startOnce sync.Once
	done      chan struct{}
	repo      TemperatureRepository
	err       error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewLazyRepository(connect ConnectFunc, logger *slog.Logger) *LazyRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &LazyRepository{
		connect: connect,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// start runs the connection attempt detached from any single caller's
// context, so one cancelled request cannot fail the attempt for everyone.
func (l *LazyRepository) start() {
	l.startOnce.Do(func() {
		go func() {
			defer close(l.done)
			repo, err := l.connect(context.Background())
			if err != nil {
				l.logger.Error("store connection failed", "error", err)
				l.err = err
				return
			}
			l.logger.Info("store connected")
			l.repo = repo
		}()
	})
}

func (l *LazyRepository) get(ctx context.Context) (TemperatureRepository, error) {
	if l.closed.Load() {
		return nil, ErrStoreClosed
	}
	l.start()
	select {
	case <-l.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionUnavailable, l.err)
	}
	if l.repo == nil {
		// Close won the race before any connection was started.
		return nil, ErrStoreClosed
	}
	return l.repo, nil
}

func (l *LazyRepository) Insert(ctx context.Context, record types.Record) (types.RecordID, error) {
	repo, err := l.get(ctx)
	if err != nil {
		return 0, err
	}
	return repo.Insert(ctx, record)
}

func (l *LazyRepository) QueryByTempRange(ctx context.Context, low int, high int) ([]types.Record, error) {
	repo, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return repo.QueryByTempRange(ctx, low, high)
}

func (l *LazyRepository) Ping(ctx context.Context) error {
	repo, err := l.get(ctx)
	if err != nil {
		return err
	}
	return repo.Ping(ctx)
}

// Close releases the backing connection if one was established. If the
// connection is still pending, Close waits for it first. Later calls return
// the first result.
func (l *LazyRepository) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		// Claim startOnce so no connection can begin after Close.
		started := true
		l.startOnce.Do(func() {
			started = false
			close(l.done)
		})
		if !started {
			return
		}
		<-l.done
		if l.repo != nil {
			l.closeErr = l.repo.Close()
		}
	})
	return l.closeErr
}
