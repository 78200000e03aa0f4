package remote

import (
	"context"
	"sync"
)

// LazyStore defers opening the Postgres pool until the remote is first
// needed. The server can boot with the remote down and attach to it once
// connectivity returns; every Ping doubles as a connection attempt.
type LazyStore struct {
	url string

	mu    sync.Mutex
	store *PGStore
}

func NewLazyStore(url string) *LazyStore {
	return &LazyStore{url: url}
}

func (l *LazyStore) get(ctx context.Context) (*PGStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store != nil {
		return l.store, nil
	}
	s, err := NewPGStore(ctx, l.url)
	if err != nil {
		return nil, err
	}
	l.store = s
	return s, nil
}

func (l *LazyStore) Ping(ctx context.Context) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

func (l *LazyStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.WithTx(ctx, fn)
}

func (l *LazyStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}
