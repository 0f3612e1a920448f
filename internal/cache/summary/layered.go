package summary

import (
	"context"
	"sync/atomic"
)

type MetricsSnapshot struct {
	Hits           uint64
	Misses         uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type metrics struct {
	hits           atomic.Uint64
	misses         atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

func (m *metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:           m.hits.Load(),
		Misses:         m.misses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

// Layered fronts a slower origin store (postgres, s3, disk) with a fast
// local store. Reads fill the front on origin hits; writes go to the origin
// first and reach the front only when the origin accepted them.
type Layered struct {
	front   Store
	origin  Store
	metrics metrics
}

func NewLayered(front, origin Store) *Layered {
	return &Layered{front: front, origin: origin}
}

func (s *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if raw, ok, err := s.front.Get(ctx, key); err == nil && ok {
		s.metrics.hits.Add(1)
		return raw, true, nil
	}
	s.metrics.misses.Add(1)
	s.metrics.originReads.Add(1)

	raw, ok, err := s.origin.Get(ctx, key)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	_ = s.front.Set(ctx, key, raw)
	return raw, true, nil
}

func (s *Layered) Set(ctx context.Context, key string, value []byte) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Set(ctx, key, value); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	return s.front.Set(ctx, key, value)
}

func (s *Layered) DeletePrefix(ctx context.Context, prefix string) error {
	if err := s.origin.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	return s.front.DeletePrefix(ctx, prefix)
}

func (s *Layered) Metrics() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.snapshot()
}
