package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talento-local/internal/common/config"
)

type fakeConn struct {
	pingErr error
	closed  bool
}

func (c *fakeConn) Ping(ctx context.Context) error { return c.pingErr }
func (c *fakeConn) Close() error                   { c.closed = true; return nil }

// ==========================
// Connect
// ==========================

func TestConnect_ClosesClientThatFailsPing(t *testing.T) {
	var opened []*fakeConn
	open := func() (*fakeConn, error) {
		c := &fakeConn{pingErr: fmt.Errorf("connection refused")}
		opened = append(opened, c)
		return c, nil
	}

	for i := 0; i < 3; i++ {
		c, err := Connect(context.Background(), open)
		assert.Error(t, err)
		assert.Nil(t, c)
	}

	require.Len(t, opened, 3)
	for _, c := range opened {
		assert.True(t, c.closed)
	}
}

func TestConnect_KeepsHealthyClientOpen(t *testing.T) {
	conn := &fakeConn{}
	c, err := Connect(context.Background(), func() (*fakeConn, error) { return conn, nil })

	require.NoError(t, err)
	assert.Same(t, conn, c)
	assert.False(t, conn.closed)
}

func TestConnect_OpenError(t *testing.T) {
	_, err := Connect(context.Background(), func() (*fakeConn, error) { return nil, fmt.Errorf("bad dsn") })
	assert.EqualError(t, err, "bad dsn")
}

func TestConnect_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := Connect(context.Background(), func() (*RedisClient, error) {
		return NewRedis(config.RedisConfig{Address: mr.Addr()})
	})
	require.NoError(t, err)
	defer rdb.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = Connect(context.Background(), func() (*RedisClient, error) {
		return NewRedis(config.RedisConfig{Address: addr})
	})
	assert.Error(t, err)
}
