package security

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kevin07696/bikeshare-payments/internal/adapters/ports"
)

func TestZapLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewZapLogger(zap.New(core))

	adapter.Warn("Payout API request failed",
		ports.String("operation", "create_payout"),
		ports.Int("status", 503),
		ports.Bool("retriable", true),
		ports.Err(errors.New("upstream unavailable")),
		ports.Duration("elapsed", 250*time.Millisecond),
	)
	adapter.Debug("Payout API request sent")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "adapter", entry.LoggerName)

	fields := entry.ContextMap()
	assert.Equal(t, "create_payout", fields["operation"])
	assert.Equal(t, int64(503), fields["status"])
	assert.Equal(t, true, fields["retriable"])
	assert.Equal(t, "upstream unavailable", fields["error"])
	assert.Equal(t, 250*time.Millisecond, fields["elapsed"])
}
