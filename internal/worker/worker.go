// Package worker runs background jobs. With PostgreSQL it uses the River job
// queue; with SQLite, jobs run in-process on a bounded goroutine pool.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dnothi/dnothi/internal/mail"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// SendEmailArgs is the job payload for outbound email.
type SendEmailArgs struct {
	Message mail.Message `json:"message"`
}

// Kind returns the unique job type identifier for email jobs.
func (SendEmailArgs) Kind() string { return "send_email" }

// InsertOpts retries delivery a few times before giving up.
func (SendEmailArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

type sendEmailWorker struct {
	river.WorkerDefaults[SendEmailArgs]
	sender mail.Sender
	log    *slog.Logger
}

func (w *sendEmailWorker) Work(ctx context.Context, job *river.Job[SendEmailArgs]) error {
	if err := w.sender.Send(ctx, job.Args.Message); err != nil {
		w.log.WarnContext(ctx, "email job failed", "to", job.Args.Message.To, "attempt", job.Attempt, "err", err)
		return err
	}
	w.log.DebugContext(ctx, "email sent", "to", job.Args.Message.To, "subject", job.Args.Message.Subject)
	return nil
}

// Queue is implemented by both the River client and the in-process queue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// EnqueueEmail schedules msg for delivery. It never blocks on SMTP.
	EnqueueEmail(ctx context.Context, msg mail.Message) error
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// EnqueueEmail inserts a send_email job.
func (c *Client) EnqueueEmail(ctx context.Context, msg mail.Message) error {
	if _, err := c.client.Insert(ctx, SendEmailArgs{Message: msg}, nil); err != nil {
		return fmt.Errorf("insert email job: %w", err)
	}
	return nil
}

// InlineQueue runs jobs on goroutines in this process. Used when River is
// unavailable (DB_DRIVER=sqlite). Jobs are lost on restart.
type InlineQueue struct {
	sender  mail.Sender
	log     *slog.Logger
	sem     chan struct{}
	wg      sync.WaitGroup
	timeout time.Duration
}

// NewInlineQueue creates an InlineQueue running at most concurrency jobs.
func NewInlineQueue(sender mail.Sender, concurrency int, log *slog.Logger) *InlineQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	return &InlineQueue{sender: sender, log: log, sem: make(chan struct{}, concurrency), timeout: time.Minute}
}

// Start logs a startup notice.
func (q *InlineQueue) Start(_ context.Context) error {
	q.log.Info("worker queue running in-process (sqlite driver, River requires postgres)")
	return nil
}

// Stop waits for running jobs or ctx, whichever is first.
func (q *InlineQueue) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueEmail sends msg on a background goroutine.
func (q *InlineQueue) EnqueueEmail(_ context.Context, msg mail.Message) error {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				q.log.Error("email job panic", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			}
		}()
		q.sem <- struct{}{}
		defer func() { <-q.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		defer cancel()
		if err := q.sender.Send(ctx, msg); err != nil {
			q.log.Warn("email job failed", "to", msg.To, "err", err)
		}
	}()
	return nil
}

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a River client backed by pool.
//   - anything else: returns an InlineQueue.
//
// pool may be nil when driver != "postgres".
func New(pool *pgxpool.Pool, driver string, concurrency int, sender mail.Sender, log *slog.Logger) (Queue, error) {
	if driver != "postgres" {
		return NewInlineQueue(sender, concurrency, log), nil
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &sendEmailWorker{sender: sender, log: log})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: concurrency},
		},
		Workers: workers,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
