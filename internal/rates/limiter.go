package rates

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const ActionCommand = "command"

type (
	key struct {
		subject int64
		action  string
	}

	bucket struct {
		count   int
		resetAt time.Time
	}

	// Limiter is a fixed-window counter keyed by (subject, action).
	Limiter struct {
		mu      sync.Mutex
		buckets map[key]*bucket
		now     func() time.Time

		sweepInterval time.Duration
		runCancel     context.CancelFunc
		wg            sync.WaitGroup
	}
)

func NewLimiter() *Limiter {
	return &Limiter{
		buckets:       make(map[key]*bucket),
		now:           time.Now,
		sweepInterval: time.Minute,
	}
}

// WithClock replaces the time source, used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow counts one call for the pair and reports whether it fits into limit
// for the current window. A denied call still counts.
func (l *Limiter) Allow(subject int64, action string, limit int, period time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key{subject: subject, action: action}
	b, ok := l.buckets[k]
	if !ok || !now.Before(b.resetAt) {
		l.buckets[k] = &bucket{count: 1, resetAt: now.Add(period)}
		return true
	}
	b.count++
	return b.count <= limit
}

// Sweep drops buckets whose window already ended and returns how many went.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	l.runCancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(runCtx)
	}()
	return nil
}

func (l *Limiter) Stop(ctx context.Context) error {
	if l.runCancel != nil {
		l.runCancel()
	}
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) run(ctx context.Context) {
	entry := l.getLogEntry()
	t := time.NewTicker(l.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(); n > 0 {
				entry.WithField("removed", n).Trace("swept rate buckets")
			}
		}
	}
}

func (l *Limiter) getLogEntry() *log.Entry {
	return log.WithField("object", "rates")
}
