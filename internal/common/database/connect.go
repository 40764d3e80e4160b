package database

import "context"

// Conn is a client that owns a connection pool.
type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// Connect opens a client and pings it. A client that fails the ping is closed
// before the error is returned, so retry loops don't pile up pools.
func Connect[T Conn](ctx context.Context, open func() (T, error)) (T, error) {
	c, err := open()
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		var zero T
		return zero, err
	}
	return c, nil
}
