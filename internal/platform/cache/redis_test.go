package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), mr.Addr(), time.Second)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestConnectUnreachable(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1:0", 100*time.Millisecond)
	require.Error(t, err)
}
