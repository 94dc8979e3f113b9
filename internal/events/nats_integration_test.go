//go:build integration

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// checkTestcontainersAvailable reports whether a container provider can be
// reached. Provider detection can panic when no engine is installed.
func checkTestcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

func startNATS(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkTestcontainersAvailable() {
		t.Skip("skipping NATS integration test: testcontainers provider not available")
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	endpoint, err := c.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)
	return endpoint
}

func TestNATSEmitter_PublishesToStream(t *testing.T) {
	url := startNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	em, err := NewNATSEmitter(ctx, url, "packd.test", "PACKD_TEST", slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.NoError(t, em.Emit(ctx, Event{ID: "b1", Kind: KindStarted, Hash: "abc", Name: "react"}))
	require.NoError(t, em.Emit(ctx, Event{ID: "b1", Kind: KindFinished, Hash: "abc", Name: "react", Outcome: "success"}))
	require.NoError(t, em.Close())

	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()
	js, err := jetstream.New(conn)
	require.NoError(t, err)

	cons, err := js.CreateOrUpdateConsumer(ctx, "PACKD_TEST", jetstream.ConsumerConfig{
		FilterSubject: "packd.test.>",
		AckPolicy:     jetstream.AckNonePolicy,
	})
	require.NoError(t, err)

	batch, err := cons.Fetch(2, jetstream.FetchMaxWait(5*time.Second))
	require.NoError(t, err)

	var kinds []Kind
	for msg := range batch.Messages() {
		var e Event
		require.NoError(t, json.Unmarshal(msg.Data(), &e))
		assert.Equal(t, "packd.test."+string(e.Kind), msg.Subject())
		kinds = append(kinds, e.Kind)
	}
	require.NoError(t, batch.Error())
	assert.Equal(t, []Kind{KindStarted, KindFinished}, kinds)
}
