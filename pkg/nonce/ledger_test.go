package nonce_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilcash/pullauth/pkg/contracts"
	"github.com/veilcash/pullauth/pkg/nonce"
)

func TestMemoryLedgerConsumeOnce(t *testing.T) {
	l := nonce.NewMemoryLedger()
	ctx := context.Background()
	note := contracts.NoteID{0xAA}

	require.NoError(t, l.Consume(ctx, note, 7))

	err := l.Consume(ctx, note, 7)
	require.Error(t, err)
	assert.Equal(t, contracts.ReasonNonceAlreadyUsed, contracts.CodeOf(err))
}

func TestMemoryLedgerDistinctKeys(t *testing.T) {
	l := nonce.NewMemoryLedger()
	ctx := context.Background()

	noteA := contracts.NoteID{0xAA}
	noteB := contracts.NoteID{0xBB}

	require.NoError(t, l.Consume(ctx, noteA, 7))
	require.NoError(t, l.Consume(ctx, noteA, 8))
	require.NoError(t, l.Consume(ctx, noteB, 7))
}

func TestKeyIsPositional(t *testing.T) {
	// The key must separate note bytes from nonce bytes; a note whose
	// tail looks like a nonce must not alias a different pair.
	var noteA, noteB contracts.NoteID
	noteA[31] = 0x01
	assert.NotEqual(t, nonce.Key(noteA, 0), nonce.Key(noteB, 1))
	assert.NotEqual(t, nonce.Key(noteA, 7), nonce.Key(noteA, 8))
}

func TestMemoryLedgerConcurrentSingleWinner(t *testing.T) {
	l := nonce.NewMemoryLedger()
	ctx := context.Background()
	note := contracts.NoteID{0xCC}

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Consume(ctx, note, 42); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count, "exactly one concurrent submission may win")
}

func TestSQLiteLedgerConsumeOnce(t *testing.T) {
	l, err := nonce.OpenSQLiteLedger(":memory:")
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	note := contracts.NoteID{0xDD}

	require.NoError(t, l.Consume(ctx, note, 1))
	require.NoError(t, l.Consume(ctx, note, 2))

	err = l.Consume(ctx, note, 1)
	require.Error(t, err)
	assert.Equal(t, contracts.ReasonNonceAlreadyUsed, contracts.CodeOf(err))
}
