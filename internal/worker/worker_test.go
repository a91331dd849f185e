package worker_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dnothi/dnothi/internal/mail"
	"github.com/dnothi/dnothi/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
	boom bool
}

func (r *recordingSender) Send(_ context.Context, msg mail.Message) error {
	if r.boom {
		panic("smtp client exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func nullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestNew_SQLiteUsesInlineQueue(t *testing.T) {
	q, err := worker.New(nil, "sqlite", 2, &recordingSender{}, nullLogger())
	require.NoError(t, err)
	_, ok := q.(*worker.InlineQueue)
	assert.True(t, ok)
}

func TestInlineQueue_SendsEmail(t *testing.T) {
	sender := &recordingSender{}
	q := worker.NewInlineQueue(sender, 2, nullLogger())
	require.NoError(t, q.Start(context.Background()))

	require.NoError(t, q.EnqueueEmail(context.Background(), mail.Message{To: "a@example.com", Subject: "one"}))
	require.NoError(t, q.EnqueueEmail(context.Background(), mail.Message{To: "b@example.com", Subject: "two"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.sent, 2)
}

func TestInlineQueue_FailuresAndPanicsAreContained(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	failing := worker.NewInlineQueue(&recordingSender{err: errors.New("relay down")}, 1, log)
	require.NoError(t, failing.EnqueueEmail(context.Background(), mail.Message{To: "a@example.com"}))
	require.NoError(t, failing.Stop(context.Background()))

	panicking := worker.NewInlineQueue(&recordingSender{boom: true}, 1, log)
	require.NoError(t, panicking.EnqueueEmail(context.Background(), mail.Message{To: "a@example.com"}))
	require.NoError(t, panicking.Stop(context.Background()))

	assert.Contains(t, logs.String(), "relay down")
	assert.Contains(t, logs.String(), "smtp client exploded")
}

func TestSendEmailArgs_Kind(t *testing.T) {
	assert.Equal(t, "send_email", worker.SendEmailArgs{}.Kind())
}
