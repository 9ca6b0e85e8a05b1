package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/config"
)

func TestNewInMemory(t *testing.T) {
	cfg := config.Config{
		StoreDriver:  config.StoreMemory,
		LockDriver:   config.LockLocal,
		SeedDemoData: true,
	}

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Empty(t, a.Checks)

	doctors, err := a.Service.SearchDoctors(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, doctors, 10)
}
