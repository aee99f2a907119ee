// Package locks serializes work per key: one buy per token, one sell per position.
package locks

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Locker blocks until key is held or ctx is done. The returned unlock is safe to call twice.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// New returns a Redis locker when a URL is configured, otherwise an in-process one.
func New(ctx context.Context, config Config, log *logrus.Entry) (Locker, func() error, error) {
	if config.RedisURL == "" {
		log.Info("Using in-process locks")
		return NewLocal(), func() error { return nil }, nil
	}
	r, err := NewRedis(ctx, config)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Using redis locks")
	return r, r.Close, nil
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// Local is a keyed mutex for a single process.
type Local struct {
	mu   sync.Mutex
	keys map[string]*localEntry
}

func NewLocal() *Local {
	return &Local{keys: map[string]*localEntry{}}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e := l.keys[key]
	if e == nil {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
}

func (l *Local) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// held is used by tests.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
