package control

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker(t *testing.T) {
	t.Run("fan out", func(t *testing.T) {
		b := NewBroker()
		ch1 := make(chan Command, 1)
		ch2 := make(chan Command, 1)
		require.NoError(t, b.Subscribe("run1", ch1))
		require.NoError(t, b.Subscribe("run2", ch2))

		b.Publish(Stop)
		assert.True(t, Stopped(ch1))
		assert.True(t, Stopped(ch2))
		assert.False(t, Stopped(ch1))
	})

	t.Run("full channel does not block", func(t *testing.T) {
		b := NewBroker()
		ch := make(chan Command, 1)
		require.NoError(t, b.Subscribe("run", ch))
		b.Publish(Stop)
		b.Publish(Stop)
		assert.Len(t, ch, 1)
	})

	t.Run("subscriptions", func(t *testing.T) {
		b := NewBroker()
		ch := make(chan Command, 1)
		require.NoError(t, b.Subscribe("run", ch))
		assert.Error(t, b.Subscribe("run", ch))
		require.NoError(t, b.Unsubscribe("run"))
		assert.Error(t, b.Unsubscribe("run"))

		b.Publish(Stop)
		assert.False(t, Stopped(ch))
	})

	assert.Equal(t, "stop", Stop.String())
}

func TestListen(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	t.Run("q stops", func(t *testing.T) {
		b := NewBroker()
		ch := make(chan Command, 1)
		require.NoError(t, b.Subscribe("run", ch))

		require.NoError(t, Listen(context.Background(), strings.NewReader("x\n\nQ\n"), b, logger))
		assert.True(t, Stopped(ch))
		assert.Contains(t, logs.String(), "invalid key")
		assert.Contains(t, logs.String(), "key=x")
	})

	t.Run("other keys do not stop", func(t *testing.T) {
		b := NewBroker()
		ch := make(chan Command, 1)
		require.NoError(t, b.Subscribe("run", ch))

		require.NoError(t, Listen(context.Background(), strings.NewReader("a\nquit\n"), b, logger))
		assert.False(t, Stopped(ch))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Listen(ctx, strings.NewReader("q\n"), NewBroker(), slog.New(slog.NewTextHandler(io.Discard, nil)))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
