package handlers

import (
	"context"
	"fmt"
	"sync"

	"TradeCore/internal/models"
)

// Locker grants exclusive, non-reentrant access to a key. Acquire fails
// with models.ErrLockHeld instead of waiting when the key is taken.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// KeyedLocker is the in-process Locker.
type KeyedLocker struct {
	held sync.Map
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{}
}

func (l *KeyedLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, loaded := l.held.LoadOrStore(key, struct{}{}); loaded {
		return nil, fmt.Errorf("operation in progress for %s: %w", key, models.ErrLockHeld)
	}
	var once sync.Once
	return func() { once.Do(func() { l.held.Delete(key) }) }, nil
}
