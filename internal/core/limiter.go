package core

// limiter.go bounds the work admitted into the ingestion pipeline.
//
// An ingestion holds its manifest and every uploaded image in memory until
// it finishes, and decoding multiplies that footprint. Admission is
// therefore gated twice: by a count of concurrent ingestions and by the
// total payload bytes those ingestions carry. A request waits up to maxWait
// for both before failing with ErrTooManyUploads.

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyUploads is returned when capacity does not free up within the
// wait time. Clients should retry after a short delay.
var ErrTooManyUploads = errors.New("too many uploads in progress, please try again later")

const (
	DefaultMaxConcurrentIngestions = 5
	DefaultMaxInFlightBytes        = 512 << 20
	DefaultMaxWaitTime             = 30 * time.Second
)

// IngestLimiter admits ingestions by count and by payload size.
type IngestLimiter struct {
	slots    *semaphore.Weighted
	bytes    *semaphore.Weighted
	maxSlots int
	maxBytes int64
	maxWait  time.Duration

	mu       sync.Mutex
	active   int
	inFlight int64
}

// NewIngestLimiter allows at most maxConcurrent ingestions carrying at most
// maxBytes of payload between them. Non-positive values take the defaults.
func NewIngestLimiter(maxConcurrent int, maxBytes int64, maxWait time.Duration) *IngestLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentIngestions
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxInFlightBytes
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &IngestLimiter{
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		bytes:    semaphore.NewWeighted(maxBytes),
		maxSlots: maxConcurrent,
		maxBytes: maxBytes,
		maxWait:  maxWait,
	}
}

// Acquire reserves one slot and size bytes. A request larger than the whole
// byte budget reserves all of it and so runs alone. The returned release
// func is safe to call more than once.
func (l *IngestLimiter) Acquire(ctx context.Context, size int64) (func(), error) {
	weight := min(max(size, 0), l.maxBytes)

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.slots.Acquire(waitCtx, 1); err != nil {
		return nil, waitError(ctx)
	}
	if err := l.bytes.Acquire(waitCtx, weight); err != nil {
		l.slots.Release(1)
		return nil, waitError(ctx)
	}

	l.mu.Lock()
	l.active++
	l.inFlight += weight
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.active--
			l.inFlight -= weight
			l.mu.Unlock()

			l.bytes.Release(weight)
			l.slots.Release(1)
		})
	}, nil
}

// waitError tells a caller cancellation apart from running out of wait time.
func waitError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrTooManyUploads
}

// WaitForDrain blocks until every admitted ingestion has released. Waiting
// claims all slots, so nothing new is admitted while it blocks.
func (l *IngestLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.slots.Acquire(ctx, int64(l.maxSlots)); err != nil {
		return err
	}
	l.slots.Release(int64(l.maxSlots))
	return nil
}

// LimiterStatus is a snapshot of the limiter's current state.
type LimiterStatus struct {
	Active        int   `json:"active"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"max_concurrent"`
	InFlightBytes int64 `json:"in_flight_bytes"`
	MaxBytes      int64 `json:"max_bytes"`
}

// Status returns the current limiter state for monitoring.
func (l *IngestLimiter) Status() LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStatus{
		Active:        l.active,
		Available:     l.maxSlots - l.active,
		MaxConcurrent: l.maxSlots,
		InFlightBytes: l.inFlight,
		MaxBytes:      l.maxBytes,
	}
}

// requestBytes is the payload an ingestion holds in memory.
func requestBytes(req Request) int64 {
	n := int64(len(req.Manifest))
	for _, f := range req.Images {
		n += int64(len(f.Data))
	}
	return n
}
