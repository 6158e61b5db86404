// Package cache is the get-or-compute layer in front of a transcript store.
//
// Cache-internal faults never fail a request: unreadable entries and store
// read errors count as misses, and failed writes are reported on the Result
// while the computed record is still returned. Only compute failures reach
// the caller as errors.
package cache

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/podscribe/internal/cachekey"
	"github.com/hpungsan/podscribe/internal/codec"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/logging"
	"github.com/hpungsan/podscribe/internal/store"
	"github.com/hpungsan/podscribe/internal/transcript"
)

// ComputeFunc produces a transcript on a cache miss.
type ComputeFunc func(ctx context.Context) (*transcript.Record, error)

// Result is the outcome of GetOrCompute.
type Result struct {
	Record *transcript.Record
	Key    cachekey.Key

	// Hit is true when Record came from the store and compute was not invoked.
	Hit bool

	// PersistErr is set when a freshly computed record could not be cached.
	// The record is still valid to use.
	PersistErr error
}

// Persisted reports whether the record is now in the store.
func (r *Result) Persisted() bool {
	return r.Hit || r.PersistErr == nil
}

// Stats is a snapshot of service counters.
type Stats struct {
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	DecodeFailures  int64 `json:"decode_failures"`
	LookupFailures  int64 `json:"lookup_failures"`
	Computes        int64 `json:"computes"`
	ComputeFailures int64 `json:"compute_failures"`
	PersistFailures int64 `json:"persist_failures"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for absorbed cache faults.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCollapse makes concurrent misses for the same URL share a single
// compute call. Off by default: without it two simultaneous misses may both
// compute and both write.
func WithCollapse(enabled bool) Option {
	return func(s *Service) {
		s.collapse = enabled
	}
}

// Service answers transcript requests from the store, computing and storing
// on a miss. It is safe for concurrent use.
type Service struct {
	store    store.Store
	log      *log.Logger
	collapse bool
	group    singleflight.Group

	hits            atomic.Int64
	misses          atomic.Int64
	decodeFailures  atomic.Int64
	lookupFailures  atomic.Int64
	computes        atomic.Int64
	computeFailures atomic.Int64
	persistFailures atomic.Int64
}

// New returns a Service over st.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup returns the cached record for url. The second result is false on a
// miss, including when the stored entry cannot be read back.
func (s *Service) Lookup(ctx context.Context, url string) (*transcript.Record, bool) {
	return s.lookupKey(ctx, cachekey.Derive(url))
}

// LookupKey is Lookup addressed by an already derived key.
func (s *Service) LookupKey(ctx context.Context, key cachekey.Key) (*transcript.Record, bool) {
	return s.lookupKey(ctx, key)
}

func (s *Service) lookupKey(ctx context.Context, key cachekey.Key) (*transcript.Record, bool) {
	blob, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			s.lookupFailures.Add(1)
			s.log.Warn("cache lookup failed, treating as miss", "key", key, "err", err)
		}
		return nil, false
	}

	rec, dropped, err := codec.DecodeWithReport(blob)
	if err != nil {
		s.decodeFailures.Add(1)
		s.log.Warn("cached transcript unreadable, treating as miss", "key", key, "err", err)
		return nil, false
	}
	if len(dropped) > 0 {
		s.log.Warn("cached transcript has malformed optional fields", "key", key, "dropped", dropped)
	}
	return rec, true
}

// Put encodes rec and stores it under url's key, replacing any existing entry.
// Returns INVALID_RECORD if rec breaks a record invariant and CACHE_PERSIST
// if the write fails.
func (s *Service) Put(ctx context.Context, url string, rec *transcript.Record) error {
	key := cachekey.Derive(url)
	blob, err := codec.Encode(rec)
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, key, url, blob); err != nil {
		s.persistFailures.Add(1)
		return errors.NewCachePersist(key.String(), err)
	}
	return nil
}

// GetOrCompute returns the cached record for url, or calls compute exactly
// once and stores its result. A compute error is returned unchanged.
func (s *Service) GetOrCompute(ctx context.Context, url string, compute ComputeFunc) (*Result, error) {
	if compute == nil {
		return nil, errors.NewInvalidRequest("compute function is required")
	}

	key := cachekey.Derive(url)
	if rec, ok := s.lookupKey(ctx, key); ok {
		s.hits.Add(1)
		return &Result{Record: rec, Key: key, Hit: true}, nil
	}
	s.misses.Add(1)

	if !s.collapse {
		return s.computeAndStore(ctx, url, key, compute)
	}

	// The shared call outlives any single caller: one caller giving up must
	// not fail the others waiting on the same key.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key.String(), func() (any, error) {
		return s.computeAndStore(shared, url, key, compute)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		res.Record = res.Record.Clone()
		return &res, nil
	}
}

func (s *Service) computeAndStore(ctx context.Context, url string, key cachekey.Key, compute ComputeFunc) (*Result, error) {
	s.computes.Add(1)
	rec, err := compute(ctx)
	if err != nil {
		s.computeFailures.Add(1)
		return nil, err
	}
	if rec == nil {
		s.computeFailures.Add(1)
		return nil, errors.NewComputeFailed("compute", stderrors.New("no transcript returned"))
	}

	res := &Result{Record: rec, Key: key}

	blob, err := codec.Encode(rec)
	if err != nil {
		// Not cacheable; hand it back untouched.
		s.log.Warn("computed transcript is invalid, not caching", "key", key, "err", err)
		res.PersistErr = err
		return res, nil
	}

	// Shape the fresh record exactly as a later hit would return it.
	if shaped, err := codec.Decode(blob); err == nil {
		res.Record = shaped
	}

	if err := s.store.Upsert(ctx, key, url, blob); err != nil {
		s.persistFailures.Add(1)
		s.log.Warn("failed to cache transcript", "key", key, "url", url, "err", err)
		res.PersistErr = errors.NewCachePersist(key.String(), err)
	}
	return res, nil
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	return Stats{
		Hits:            s.hits.Load(),
		Misses:          s.misses.Load(),
		DecodeFailures:  s.decodeFailures.Load(),
		LookupFailures:  s.lookupFailures.Load(),
		Computes:        s.computes.Load(),
		ComputeFailures: s.computeFailures.Load(),
		PersistFailures: s.persistFailures.Load(),
	}
}
