package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/remiblancher/crl-engine/internal/crl"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	crls    map[string]*crl.CRL
	active  map[string]string
	numbers map[string]int64
	points  map[string]*crl.DistributionPoint
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		crls:    make(map[string]*crl.CRL),
		active:  make(map[string]string),
		numbers: make(map[string]int64),
		points:  make(map[string]*crl.DistributionPoint),
	}
}

func (s *MemoryStore) Close() error { return nil }

func copyCRL(c *crl.CRL) *crl.CRL {
	dup := *c
	return &dup
}

func copyPoint(p *crl.DistributionPoint) *crl.DistributionPoint {
	dup := *p
	return &dup
}

func (s *MemoryStore) SaveCRL(ctx context.Context, c *crl.CRL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevID, ok := s.active[c.CAID]; ok && prevID != c.ID {
		if prev, ok := s.crls[prevID]; ok {
			prev.Status = crl.StatusSuperseded
		}
	}
	saved := copyCRL(c)
	saved.Status = crl.StatusActive
	s.crls[c.ID] = saved
	s.active[c.CAID] = c.ID
	s.numbers[c.CAID] = c.Number
	c.Status = crl.StatusActive
	return nil
}

func (s *MemoryStore) GetCRL(ctx context.Context, id string) (*crl.CRL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.crls[id]
	if !ok {
		return nil, fmt.Errorf("CRL %s: %w", id, ErrNotFound)
	}
	return copyCRL(c), nil
}

func (s *MemoryStore) ActiveCRL(ctx context.Context, caID string) (*crl.CRL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[caID]
	if !ok {
		return nil, nil
	}
	return copyCRL(s.crls[id]), nil
}

func (s *MemoryStore) ListCRLs(ctx context.Context, caID string, status crl.Status, limit int) ([]*crl.CRL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*crl.CRL
	for _, c := range s.crls {
		if c.CAID != caID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, copyCRL(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) LastCRLNumber(ctx context.Context, caID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.numbers[caID], nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, c := range s.crls {
		if c.Status == crl.StatusExpired || !c.Expired(now) {
			continue
		}
		if c.Status == crl.StatusActive && s.active[c.CAID] == c.ID {
			delete(s.active, c.CAID)
		}
		c.Status = crl.StatusExpired
		count++
	}
	return count, nil
}

func (s *MemoryStore) DeleteExpiredBefore(ctx context.Context, caID string, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	activeID := s.active[caID]
	count := 0
	for id, c := range s.crls {
		if c.CAID != caID || id == activeID || c.Status == crl.StatusActive {
			continue
		}
		if c.NextUpdate.Before(cutoff) {
			delete(s.crls, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SavePoint(ctx context.Context, p *crl.DistributionPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[p.ID] = copyPoint(p)
	return nil
}

func (s *MemoryStore) GetPoint(ctx context.Context, id string) (*crl.DistributionPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	if !ok {
		return nil, fmt.Errorf("point %s: %w", id, ErrNotFound)
	}
	return copyPoint(p), nil
}

func (s *MemoryStore) ListPoints(ctx context.Context, caID string) ([]*crl.DistributionPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*crl.DistributionPoint
	for _, p := range s.points {
		if p.CAID == caID {
			out = append(out, copyPoint(p))
		}
	}
	sortPoints(out)
	return out, nil
}

func (s *MemoryStore) RecordPointOutcome(ctx context.Context, pointID, crlID string, ok bool, at time.Time, maxRetries int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, found := s.points[pointID]
	if !found {
		return fmt.Errorf("point %s: %w", pointID, ErrNotFound)
	}
	applyOutcome(p, crlID, ok, at, maxRetries)
	return nil
}
