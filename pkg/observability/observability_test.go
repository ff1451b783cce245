package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProviderIsInert(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	// Record calls on a disabled provider must not panic.
	ctx := context.Background()
	p.RecordAuthorized(ctx)
	p.RecordDenied(ctx)
	p.RecordCompletion(ctx, 10*time.Millisecond)
	assert.NoError(t, p.Shutdown(ctx))
}

func TestNilConfigUsesDefaults(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "spendgate", p.config.ServiceName)
	assert.False(t, p.config.Enabled)
}

func TestStartSpanWithoutProviders(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "complete_spend_request")
	assert.NotNil(t, ctx)
	span.End()
}
