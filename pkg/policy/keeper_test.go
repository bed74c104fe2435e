package policy_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilcash/pullauth/pkg/contracts"
	"github.com/veilcash/pullauth/pkg/policy"
)

var (
	merchantA = contracts.Address{0xA1}
	merchantB = contracts.Address{0xB2}
)

func newKeeper(t *testing.T, now time.Time) (*policy.Keeper, *time.Time) {
	t.Helper()
	clock := now
	k := policy.NewKeeper(policy.NewMemoryStorage()).WithClock(func() time.Time { return clock })
	return k, &clock
}

func enable(t *testing.T, k *policy.Keeper, principal contracts.Address, maxPerTx, dailyLimit int64) {
	t.Helper()
	err := k.SetPolicy(context.Background(), principal, contracts.Policy{
		Principal:  principal,
		MaxPerTx:   big.NewInt(maxPerTx),
		DailyLimit: big.NewInt(dailyLimit),
		Enabled:    true,
	})
	require.NoError(t, err)
}

func TestReserveScenario(t *testing.T) {
	// maxPerTx 100, dailyLimit 250:
	// 50 ok; 150 over per-tx; 100+100 ok, then 60 breaks the daily limit.
	ctx := context.Background()
	k, _ := newKeeper(t, time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC))
	enable(t, k, merchantA, 100, 250)

	require.NoError(t, k.Reserve(ctx, merchantA, big.NewInt(50)))

	err := k.Reserve(ctx, merchantA, big.NewInt(150))
	require.Error(t, err)
	assert.Equal(t, contracts.ReasonMaxTxExceeded, contracts.CodeOf(err))

	require.NoError(t, k.Reserve(ctx, merchantA, big.NewInt(100)))
	require.NoError(t, k.Reserve(ctx, merchantA, big.NewInt(100)))

	err = k.Reserve(ctx, merchantA, big.NewInt(60))
	require.Error(t, err)
	assert.Equal(t, contracts.ReasonDailyLimitExceeded, contracts.CodeOf(err))
}

func TestNoPolicyIsDisabled(t *testing.T) {
	ctx := context.Background()
	k, _ := newKeeper(t, time.Now())

	err := k.Check(ctx, merchantA, big.NewInt(1))
	require.Error(t, err)
	assert.Equal(t, contracts.ReasonPolicyDisabled, contracts.CodeOf(err))
}

func TestDisabledPolicy(t *testing.T) {
	ctx := context.Background()
	k, _ := newKeeper(t, time.Now())
	err := k.SetPolicy(ctx, merchantA, contracts.Policy{
		Principal:  merchantA,
		MaxPerTx:   big.NewInt(100),
		DailyLimit: big.NewInt(100),
		Enabled:    false,
	})
	require.NoError(t, err)

	err = k.Check(ctx, merchantA, big.NewInt(1))
	assert.Equal(t, contracts.ReasonPolicyDisabled, contracts.CodeOf(err))
}

func TestZeroLimitsBlockEverything(t *testing.T) {
	ctx := context.Background()
	k, _ := newKeeper(t, time.Now())
	enable(t, k, merchantA, 0, 0)

	err := k.Check(ctx, merchantA, big.NewInt(1))
	require.Error(t, err)
	assert.Equal(t, contracts.ReasonMaxTxExceeded, contracts.CodeOf(err))
}

func TestDailyRollover(t *testing.T) {
	ctx := context.Background()
	k, clock := newKeeper(t, time.Date(2026, 8, 26, 23, 0, 0, 0, time.UTC))
	enable(t, k, merchantA, 250, 250)

	require.NoError(t, k.Reserve(ctx, merchantA, big.NewInt(250)))
	err := k.Reserve(ctx, merchantA, big.NewInt(1))
	assert.Equal(t, contracts.ReasonDailyLimitExceeded, contracts.CodeOf(err))

	// Next UTC day: full limit available again, no background job needed.
	*clock = clock.Add(2 * time.Hour)
	require.NoError(t, k.Reserve(ctx, merchantA, big.NewInt(250)))
}

func TestSetPolicySelfServiceOnly(t *testing.T) {
	ctx := context.Background()
	k, _ := newKeeper(t, time.Now())
	enable(t, k, merchantB, 100, 100)

	err := k.SetPolicy(ctx, merchantA, contracts.Policy{
		Principal:  merchantB,
		MaxPerTx:   big.NewInt(0),
		DailyLimit: big.NewInt(0),
		Enabled:    false,
	})
	require.ErrorIs(t, err, policy.ErrNotSelf)

	// B's policy is unchanged.
	p, err := k.GetPolicy(ctx, merchantB)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Enabled)
	assert.Equal(t, int64(100), p.MaxPerTx.Int64())
}

func TestCheckIsIdempotent(t *testing.T) {
	ctx := context.Background()
	k, _ := newKeeper(t, time.Now())
	enable(t, k, merchantA, 100, 250)

	for i := 0; i < 5; i++ {
		require.NoError(t, k.Check(ctx, merchantA, big.NewInt(100)))
	}
	// No usage was consumed by the speculative checks.
	require.NoError(t, k.Reserve(ctx, merchantA, big.NewInt(100)))
	require.NoError(t, k.Reserve(ctx, merchantA, big.NewInt(100)))
}

func TestReserveConcurrentHonorsDailyLimit(t *testing.T) {
	ctx := context.Background()
	k, _ := newKeeper(t, time.Now())
	enable(t, k, merchantA, 10, 100)

	const racers = 20 // 20 x 10 = 200 requested, only 100 allowed
	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := k.Reserve(ctx, merchantA, big.NewInt(10)); err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, approved)
}
