package remote

import (
	"context"
	"fmt"

	"github.com/floatnote/floatnote/internal/logging"
	"github.com/jackc/pgx/v5"
)

// Listener is a dedicated change-feed subscription over a single pgx
// connection. It LISTENs on NotifyChannel and blocks until the next
// mutation event arrives; the sync notifier drives it from a background
// goroutine.
//
// The connection is dialed lazily on the first wait so constructing a
// listener never blocks. Once the underlying feed fails, the error is
// returned and the listener must be Closed; reconnection policy belongs to
// the session layer.
type Listener struct {
	dsn    string
	conn   *pgx.Conn
	logger logging.Logger
}

// NewListener prepares a change-feed subscription against the store's
// endpoint.
func NewListener(dsn string, logger logging.Logger) *Listener {
	return &Listener{dsn: dsn, logger: logger.With("component", "changefeed")}
}

// WaitForChange blocks until a collection mutation is observed, the context
// is cancelled, or the feed breaks. The notification payload (the mutated
// collection id) is deliberately not returned: receivers always do a full
// re-fetch so visibility filtering and merging stay on one code path.
func (l *Listener) WaitForChange(ctx context.Context) error {
	if l.conn == nil {
		conn, err := pgx.Connect(ctx, l.dsn)
		if err != nil {
			return fmt.Errorf("connect change feed: %w", err)
		}
		if _, err := conn.Exec(ctx, "listen "+NotifyChannel); err != nil {
			_ = conn.Close(ctx)
			return fmt.Errorf("listen %s: %w", NotifyChannel, err)
		}
		l.conn = conn
		l.logger.Debug(ctx, "change feed subscribed", "channel", NotifyChannel)
	}

	n, err := l.conn.WaitForNotification(ctx)
	if err != nil {
		return fmt.Errorf("change feed wait: %w", err)
	}
	l.logger.Debug(ctx, "remote change observed", "collection", n.Payload)
	return nil
}

// Close tears down the feed connection. Safe to call when the connection
// was never established or already died.
func (l *Listener) Close(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close(ctx)
	l.conn = nil
	return err
}
