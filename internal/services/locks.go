package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dermalens/dermalens-backend/internal/logger"
)

// UserLocker serializes plan writes per user. The redis client satisfies this
// interface for multi-instance deployments; single instances use the
// in-process locker below.
type UserLocker interface {
	Acquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (release func(), ok bool, err error)
}

type localUserLocker struct {
	log  *logger.Logger
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

func NewLocalUserLocker(log *logger.Logger) UserLocker {
	return &localUserLocker{
		log:  log.With("service", "LocalUserLocker"),
		held: make(map[uuid.UUID]bool),
	}
}

// Acquire is non-blocking. The ttl is ignored locally: a crashed process
// releases everything anyway.
func (l *localUserLocker) Acquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[userID] {
		return nil, false, nil
	}
	l.held[userID] = true

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, userID)
	}
	return release, true, nil
}
