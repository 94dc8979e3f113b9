package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSEmitter publishes events to a JetStream stream under
// "<prefix>.<kind>". Publishing is asynchronous; failures are logged.
type NATSEmitter struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
	logger *slog.Logger
}

// NewNATSEmitter connects to url and ensures the stream exists.
func NewNATSEmitter(ctx context.Context, url, prefix, stream string, logger *slog.Logger) (*NATSEmitter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url, nats.Name("packd"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:        stream,
		Description: "packd build lifecycle events",
		Subjects:    []string{prefix + ".>"},
		MaxAge:      7 * 24 * time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", stream, err)
	}

	logger.Info("NATS event publisher initialized",
		slog.String("url", url),
		slog.String("stream", stream),
		slog.String("subject_prefix", prefix))

	return &NATSEmitter{conn: conn, js: js, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject an event of kind k is published on.
func (n *NATSEmitter) Subject(k Kind) string { return n.prefix + "." + string(k) }

func (n *NATSEmitter) Emit(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	ack, err := n.js.PublishAsync(n.Subject(e.Kind), data)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	go func() {
		select {
		case <-ack.Ok():
		case err := <-ack.Err():
			n.logger.Warn("Event publish not acknowledged",
				slog.String("subject", n.Subject(e.Kind)),
				slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Close waits briefly for pending acknowledgements and drains the connection.
func (n *NATSEmitter) Close() error {
	select {
	case <-n.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		n.logger.Warn("Timed out waiting for event acknowledgements",
			slog.Int("pending", n.js.PublishAsyncPending()))
	}
	return n.conn.Drain()
}
