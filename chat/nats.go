package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS is a Broker over a NATS connection.
type NATS struct {
	conn *nats.Conn
}

// DialNATS connects to the NATS server at url. The connection reconnects forever.
func DialNATS(url string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("reliefboard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("chat: connect to NATS: %w", err)
	}

	return &NATS{conn: conn}, nil
}

// Publish publishes data to subject. NATS publishing does not block, so ctx is only
// checked before the call.
func (n *NATS) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.conn.Publish(subject, data)
}

// Subscribe delivers every message on subject to handler.
func (n *NATS) Subscribe(subject string, handler func([]byte)) (func() error, error) {
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("chat: subscribe %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
