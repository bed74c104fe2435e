package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilcash/pullauth/pkg/contracts"
	"github.com/veilcash/pullauth/pkg/observability"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	ctx := context.Background()
	p, err := observability.New(ctx, &observability.Config{Enabled: false})
	require.NoError(t, err)

	// None of these may panic on a disabled provider.
	sctx, span := p.StartSpan(ctx, "authorize")
	assert.NotNil(t, sctx)
	span.End()
	p.RecordDecision(ctx, contracts.KindTake, "")
	p.RecordDecision(ctx, contracts.KindRedeem, contracts.ReasonInvalidProof)
	assert.NoError(t, p.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	cfg := observability.DefaultConfig()
	assert.Equal(t, "pullauth", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
}
