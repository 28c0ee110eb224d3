package shutdown_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/bikeshare-payments/pkg/shutdown"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestManager_ShutdownOrder(t *testing.T) {
	m := shutdown.NewManager(zap.NewNop(), time.Second)

	var order []string
	m.RegisterNoErr("database", func() { order = append(order, "database") })
	m.Register("webhooks", func(context.Context) error {
		order = append(order, "webhooks")
		return errors.New("timed out")
	})
	m.RegisterNoErr("http", func() { order = append(order, "http") })

	errs := m.Shutdown()

	assert.Equal(t, []string{"http", "webhooks", "database"}, order)
	assert.Len(t, errs, 1)
	assert.EqualError(t, errs["webhooks"], "timed out")
}
