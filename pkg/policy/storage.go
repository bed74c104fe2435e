// Package policy enforces per-principal spend limits: a per-pull ceiling,
// a rolling daily limit with lazy day rollover, and an enabled flag.
// Checks are fail-closed; a principal with no policy cannot transact.
package policy

import (
	"context"
	"math/big"
	"sync"

	"github.com/veilcash/pullauth/pkg/contracts"
)

// Storage persists policies and daily usage counters. Not-found is
// signalled with a nil value, not an error.
type Storage interface {
	GetPolicy(ctx context.Context, principal contracts.Address) (*contracts.Policy, error)
	SetPolicy(ctx context.Context, p *contracts.Policy) error
	GetUsage(ctx context.Context, principal contracts.Address) (*contracts.Usage, error)
	SetUsage(ctx context.Context, u *contracts.Usage) error
}

// MemoryStorage implements Storage in memory. Thread-safe via RWMutex.
type MemoryStorage struct {
	mu       sync.RWMutex
	policies map[contracts.Address]*contracts.Policy
	usage    map[contracts.Address]*contracts.Usage
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		policies: make(map[contracts.Address]*contracts.Policy),
		usage:    make(map[contracts.Address]*contracts.Usage),
	}
}

func (s *MemoryStorage) GetPolicy(ctx context.Context, principal contracts.Address) (*contracts.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.policies[principal]; ok {
		return copyPolicy(p), nil
	}
	return nil, nil
}

func (s *MemoryStorage) SetPolicy(ctx context.Context, p *contracts.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.Principal] = copyPolicy(p)
	return nil
}

func (s *MemoryStorage) GetUsage(ctx context.Context, principal contracts.Address) (*contracts.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.usage[principal]; ok {
		return copyUsage(u), nil
	}
	return nil, nil
}

func (s *MemoryStorage) SetUsage(ctx context.Context, u *contracts.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[u.Principal] = copyUsage(u)
	return nil
}

// copies keep callers from mutating stored state outside the lock

func copyPolicy(p *contracts.Policy) *contracts.Policy {
	val := *p
	val.MaxPerTx = new(big.Int).Set(p.MaxPerTx)
	val.DailyLimit = new(big.Int).Set(p.DailyLimit)
	return &val
}

func copyUsage(u *contracts.Usage) *contracts.Usage {
	val := *u
	val.Spent = new(big.Int).Set(u.Spent)
	return &val
}
