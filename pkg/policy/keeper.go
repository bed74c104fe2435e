package policy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/veilcash/pullauth/pkg/contracts"
)

// ErrNotSelf is returned when a caller tries to modify another
// principal's policy. Policies are strictly self-service.
var ErrNotSelf = errors.New("policy: only the principal may modify its own policy")

// Keeper mediates all policy reads and writes. Check is pure and may be
// called speculatively; Reserve is the atomic check-then-consume used by
// the authorizer. Per-principal serialization lives here so no caller
// can race past a check before a conflicting consume lands.
type Keeper struct {
	storage Storage
	clock   func() time.Time

	mu    sync.Mutex
	locks map[contracts.Address]*sync.Mutex
}

// NewKeeper creates a keeper over the given storage.
func NewKeeper(storage Storage) *Keeper {
	return &Keeper{
		storage: storage,
		clock:   time.Now,
		locks:   make(map[contracts.Address]*sync.Mutex),
	}
}

// WithClock overrides the clock for testing.
func (k *Keeper) WithClock(clock func() time.Time) *Keeper {
	k.clock = clock
	return k
}

// SetPolicy replaces the caller's policy wholesale. Only the principal
// itself may set its policy; zero limits are a valid block-everything
// configuration.
func (k *Keeper) SetPolicy(ctx context.Context, caller contracts.Address, p contracts.Policy) error {
	if caller != p.Principal {
		return ErrNotSelf
	}
	if p.MaxPerTx == nil || p.MaxPerTx.Sign() < 0 {
		return fmt.Errorf("policy: max per tx must be >= 0")
	}
	if p.DailyLimit == nil || p.DailyLimit.Sign() < 0 {
		return fmt.Errorf("policy: daily limit must be >= 0")
	}
	p.UpdatedAt = k.clock().UTC()
	return k.storage.SetPolicy(ctx, &p)
}

// GetPolicy returns the stored policy, or nil if none exists.
func (k *Keeper) GetPolicy(ctx context.Context, principal contracts.Address) (*contracts.Policy, error) {
	return k.storage.GetPolicy(ctx, principal)
}

// Check verifies that a pull of amount is within policy. It never
// mutates state, so it is safe for speculative use (previews).
// A nil error with an empty reason means the pull would pass.
func (k *Keeper) Check(ctx context.Context, principal contracts.Address, amount *big.Int) error {
	_, err := k.evaluate(ctx, principal, amount)
	return err
}

// Reserve performs check-then-consume as one operation under the
// principal's lock. On success the amount is added to today's usage.
//
// The lock is in-process, so atomicity holds for a single instance
// only. Running replicas against one shared Postgres store requires
// serializing the usage read-modify-write in the database instead.
func (k *Keeper) Reserve(ctx context.Context, principal contracts.Address, amount *big.Int) error {
	lock := k.lockFor(principal)
	lock.Lock()
	defer lock.Unlock()

	usage, err := k.evaluate(ctx, principal, amount)
	if err != nil {
		return err
	}
	usage.Spent.Add(usage.Spent, amount)
	if err := k.storage.SetUsage(ctx, usage); err != nil {
		return fmt.Errorf("policy: persist usage: %w", err)
	}
	return nil
}

// evaluate runs the limit checks and returns the current-day usage
// record (rolled over if the stored day differs from today).
func (k *Keeper) evaluate(ctx context.Context, principal contracts.Address, amount *big.Int) (*contracts.Usage, error) {
	pol, err := k.storage.GetPolicy(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("policy: load policy: %w", err)
	}
	if pol == nil || !pol.Enabled {
		return nil, contracts.Reject(contracts.ReasonPolicyDisabled,
			"principal %s is not enabled for pulls", principal.Hex())
	}
	if amount.Cmp(pol.MaxPerTx) > 0 {
		return nil, contracts.Reject(contracts.ReasonMaxTxExceeded,
			"amount %s exceeds per-tx ceiling %s", amount, pol.MaxPerTx)
	}

	usage, err := k.storage.GetUsage(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("policy: load usage: %w", err)
	}
	today := dayOf(k.clock())
	if usage == nil || usage.Day != today {
		// Lazy rollover: a stale day resets usage to zero before any check.
		usage = &contracts.Usage{Principal: principal, Day: today, Spent: new(big.Int)}
	}

	projected := new(big.Int).Add(usage.Spent, amount)
	if projected.Cmp(pol.DailyLimit) > 0 {
		return nil, contracts.Reject(contracts.ReasonDailyLimitExceeded,
			"daily usage %s + %s exceeds limit %s", usage.Spent, amount, pol.DailyLimit)
	}
	return usage, nil
}

func (k *Keeper) lockFor(principal contracts.Address) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock, ok := k.locks[principal]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[principal] = lock
	}
	return lock
}

// dayOf returns the UTC calendar-day identifier usage accrues under.
func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
