package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_LoadServer(t *testing.T) {
	cfg, err := LoadServer()
	require.NoError(t, err)
	require.Equal(t, 2412, cfg.RPCPort)
	require.Equal(t, "userslist", cfg.Topic)
	require.Equal(t, "overwrite", cfg.MovePolicy)
	require.Equal(t, 5*time.Second, cfg.OpTimeout)

	t.Setenv("SHARED_LIST_STORE_DSN", "memory://")
	t.Setenv("SHARED_LIST_OP_TIMEOUT", "250ms")
	cfg, err = LoadServer()
	require.NoError(t, err)
	require.Equal(t, "memory://", cfg.StoreDSN)
	require.Equal(t, 250*time.Millisecond, cfg.OpTimeout)

	t.Setenv("SHARED_LIST_QUEUE_SIZE", "many")
	_, err = LoadServer()
	require.Error(t, err)
}

func Test_LoadClient(t *testing.T) {
	cfg, err := LoadClient()
	require.NoError(t, err)
	_, err = uuid.Parse(cfg.DeviceId)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.PollPeriod)

	t.Setenv("SHARED_LIST_DEVICE_ID", "phone-1")
	cfg, err = LoadClient()
	require.NoError(t, err)
	require.Equal(t, "phone-1", cfg.DeviceId)
}
