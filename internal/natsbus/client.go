package natsbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Client publishes and subscribes to run events. It reconnects forever, so a
// restarted bus only costs the events sent while it was down.
type Client struct {
	conn *nats.Conn
}

// NewClient connects to an embedded bus.
func NewClient(bus *Bus) (*Client, error) {
	return Connect(bus.ClientURL())
}

// Connect dials the bus at url.
func Connect(url string) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name("quorum"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "url", url, "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return c.conn.Publish(topic, data)
}

// Subscribe calls fn with the subject and body of every message matching
// topic. The returned func unsubscribes.
func (c *Client) Subscribe(topic string, fn func(subject string, data []byte)) (func() error, error) {
	sub, err := c.conn.Subscribe(topic, func(msg *nats.Msg) {
		fn(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return sub.Unsubscribe, nil
}

func (c *Client) Flush() error {
	return c.conn.Flush()
}

func (c *Client) Close() {
	c.conn.Close()
}
