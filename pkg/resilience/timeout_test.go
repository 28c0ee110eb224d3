package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTimeoutConfig_Hierarchy(t *testing.T) {
	tc := DefaultTimeoutConfig()

	assert.Less(t, tc.WebhookProcessing, tc.HTTPHandler)
	assert.Less(t, tc.ExternalAPI, tc.HTTPHandler)
	assert.Greater(t, tc.PayoutRun, tc.HTTPHandler)
}

func TestContextCreators(t *testing.T) {
	tc := TestTimeoutConfig()

	tests := []struct {
		name   string
		create func(context.Context) (context.Context, context.CancelFunc)
		want   time.Duration
	}{
		{"handler", tc.HandlerContext, tc.HTTPHandler},
		{"payout_run", tc.PayoutRunContext, tc.PayoutRun},
		{"webhook", tc.WebhookContext, tc.WebhookProcessing},
		{"external_api", tc.ExternalAPIContext, tc.ExternalAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			ctx, cancel := tt.create(context.Background())
			defer cancel()

			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, start.Add(tt.want), deadline, 100*time.Millisecond)
		})
	}
}

func TestWebhookContext_IgnoresParentCancellation(t *testing.T) {
	tc := TestTimeoutConfig()
	parent, cancelParent := context.WithCancel(context.Background())

	ctx, cancel := tc.WebhookContext(parent)
	defer cancel()
	cancelParent()

	select {
	case <-ctx.Done():
		t.Fatal("webhook context cancelled with its request")
	case <-time.After(20 * time.Millisecond):
	}
	assert.NoError(t, ctx.Err())
}

func TestExternalAPIContext_ParentCancellationPropagates(t *testing.T) {
	tc := TestTimeoutConfig()
	parent, cancelParent := context.WithCancel(context.Background())

	ctx, cancel := tc.ExternalAPIContext(parent)
	defer cancel()
	cancelParent()

	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
