package web

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when every upload slot is busy and the
// wait timeout expires. Clients should retry shortly.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

// uploadLimiter caps parallel file uploads with a semaphore so a burst of
// large imports cannot exhaust disk and database connections. Callers
// that cannot get a slot within maxWait are rejected.
type uploadLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.Mutex
	active int
}

func newUploadLimiter(maxConcurrent int, maxWait time.Duration) *uploadLimiter {
	return &uploadLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire blocks for a slot. Callers must Release exactly once per
// successful Acquire.
func (l *uploadLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyUploads
	}
}

func (l *uploadLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// ActiveCount returns how many uploads hold a slot right now.
func (l *uploadLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// WaitForDrain blocks until all active uploads finish or ctx expires.
// Used during graceful shutdown.
func (l *uploadLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
