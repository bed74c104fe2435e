package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilcash/pullauth/pkg/audit"
	"github.com/veilcash/pullauth/pkg/contracts"
)

func event(id string, amount int64) contracts.AuthorizationEvent {
	return contracts.AuthorizationEvent{
		ID:        id,
		Kind:      contracts.KindTake,
		Principal: contracts.Address{0xA1},
		Recipient: contracts.Address{0xB2},
		NoteID:    contracts.NoteID{0xAA},
		Amount:    big.NewInt(amount),
		Timestamp: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriterEmitterWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	e := audit.NewWriterEmitterTo(&buf)

	require.NoError(t, e.Emit(context.Background(), event("ev-1", 50)))

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "AUTH: "))

	var got contracts.AuthorizationEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "AUTH: ")), &got))
	assert.Equal(t, "ev-1", got.ID)
	assert.Equal(t, contracts.KindTake, got.Kind)
	assert.Equal(t, int64(50), got.Amount.Int64())
}

func TestChainAppendAndVerify(t *testing.T) {
	c := audit.NewChain()
	ctx := context.Background()

	require.NoError(t, c.Emit(ctx, event("ev-1", 50)))
	require.NoError(t, c.Emit(ctx, event("ev-2", 75)))
	require.NoError(t, c.Emit(ctx, event("ev-3", 100)))

	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "genesis", entries[0].PrevHash)
	assert.Equal(t, entries[0].ContentHash, entries[1].PrevHash)
	assert.Equal(t, entries[1].ContentHash, entries[2].PrevHash)

	assert.NoError(t, c.Verify())
}

func TestChainHashBindsEventContent(t *testing.T) {
	ctx := context.Background()

	a := audit.NewChain()
	require.NoError(t, a.Emit(ctx, event("ev-1", 50)))

	b := audit.NewChain()
	require.NoError(t, b.Emit(ctx, event("ev-1", 9999)))

	assert.NotEqual(t, a.Entries()[0].ContentHash, b.Entries()[0].ContentHash)
}

func TestMultiEmitterFansOut(t *testing.T) {
	a := audit.NewMemoryEmitter()
	b := audit.NewMemoryEmitter()
	m := audit.MultiEmitter{a, b}

	require.NoError(t, m.Emit(context.Background(), event("ev-1", 10)))
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}
