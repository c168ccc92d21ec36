package rate

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter fixed window in-process sobre go-cache: cada key vive lo
// que dura su ventana.
type MemoryLimiter struct {
	max    int64
	window time.Duration
	now    func() time.Time

	mu sync.Mutex
	c  *gocache.Cache
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:    int64(max),
		window: window,
		now:    time.Now,
		c:      gocache.New(window, 2*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var hits int64 = 1
	if err := l.c.Add(key, hits, l.window); err != nil {
		// ya existe en la ventana vigente
		n, ierr := l.c.IncrementInt64(key, 1)
		if ierr != nil {
			// expiró entre Add e Increment: arranca ventana nueva
			l.c.Set(key, hits, l.window)
		} else {
			hits = n
		}
	}

	var ttl time.Duration
	if _, exp, ok := l.c.GetWithExpiration(key); ok && !exp.IsZero() {
		ttl = exp.Sub(l.now())
	}
	return result(hits, l.max, ttl, l.window), nil
}
