package events

import (
	"bytes"
	"context"
	stdErrors "errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	em := NewLogEmitter(logger)

	ctx := context.Background()
	require.NoError(t, em.Emit(ctx, Event{ID: "b1", Kind: KindStarted, Hash: "abc", Name: "react"}))
	require.NoError(t, em.Emit(ctx, Event{ID: "b1", Kind: KindProgress, Name: "react", Info: "[react] installing"}))
	require.NoError(t, em.Emit(ctx, Event{ID: "b1", Kind: KindFinished, Name: "react", Outcome: "failed", Error: "install failed"}))

	out := buf.String()
	assert.Contains(t, out, `"msg":"Build started"`)
	assert.Contains(t, out, `"msg":"[react] installing"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"outcome":"failed"`)
	assert.Contains(t, out, `"build_id":"b1"`)
}

type failingEmitter struct{ calls int }

func (f *failingEmitter) Emit(context.Context, Event) error {
	f.calls++
	return stdErrors.New("unreachable")
}

type countingEmitter struct{ events []Event }

func (c *countingEmitter) Emit(_ context.Context, e Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestMulti_CallsEveryEmitter(t *testing.T) {
	bad := &failingEmitter{}
	good := &countingEmitter{}
	m := Multi{bad, good, Discard{}}

	err := m.Emit(context.Background(), Event{Kind: KindStarted})
	require.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, good.events, 1)
}
