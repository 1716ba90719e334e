package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// KeyedSiteLocker serializes ingestions per site within one process.
type KeyedSiteLocker struct {
	mu    sync.Mutex
	locks map[int64]*siteLock
}

type siteLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedSiteLocker creates an empty locker.
func NewKeyedSiteLocker() *KeyedSiteLocker {
	return &KeyedSiteLocker{locks: make(map[int64]*siteLock)}
}

// Lock waits for siteID to be free. The returned unlock func is safe to
// call more than once.
func (k *KeyedSiteLocker) Lock(ctx context.Context, siteID int64) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[siteID]
	if !ok {
		l = &siteLock{ch: make(chan struct{}, 1)}
		k.locks[siteID] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				k.release(siteID, l)
			})
		}, nil
	case <-ctx.Done():
		k.release(siteID, l)
		return nil, ctx.Err()
	}
}

func (k *KeyedSiteLocker) release(siteID int64, l *siteLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, siteID)
	}
}

// held reports how many callers hold or wait on siteID.
func (k *KeyedSiteLocker) held(siteID int64) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.locks[siteID]; ok {
		return l.refs
	}
	return 0
}

// FileSiteLocker serializes ingestions per site across processes sharing a
// directory, using one advisory lock file per site.
type FileSiteLocker struct {
	dir        string
	retryDelay time.Duration
}

// NewFileSiteLocker stores lock files under dir, creating it if needed.
func NewFileSiteLocker(dir string) (*FileSiteLocker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &FileSiteLocker{dir: dir, retryDelay: 50 * time.Millisecond}, nil
}

// Lock polls the site's lock file until it is acquired or ctx is done.
func (f *FileSiteLocker) Lock(ctx context.Context, siteID int64) (func(), error) {
	fl := flock.New(filepath.Join(f.dir, fmt.Sprintf("site-%d.lock", siteID)))

	locked, err := fl.TryLockContext(ctx, f.retryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock site %d: %w", siteID, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock site %d: not acquired", siteID)
	}

	var once sync.Once
	return func() {
		once.Do(func() { _ = fl.Unlock() })
	}, nil
}
