package jobs

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/infra/config"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// RedisOpt builds the asynq connection options from the shared Redis settings.
func RedisOpt(cfg config.RedisSettings) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opt
}

// Client submits email deliveries to the asynq queue. It implements port.MailQueue.
type Client struct {
	client   enqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
}

// NewClient constructs an asynq-backed mail queue.
func NewClient(redisOpt asynq.RedisClientOpt, cfg config.JobsSettings) *Client {
	return newClient(asynq.NewClient(redisOpt), cfg)
}

func newClient(e enqueuer, cfg config.JobsSettings) *Client {
	queue := cfg.Queue
	if queue == "" {
		queue = QueueDefault
	}
	return &Client{client: e, queue: queue, maxRetry: cfg.MaxRetry, timeout: cfg.Timeout}
}

// EnqueueEmailCode schedules delivery of a code email.
func (c *Client) EnqueueEmailCode(ctx context.Context, msg port.EmailCodeMessage) error {
	task, err := NewSendEmailCodeTask(msg)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(c.queue), asynq.MaxRetry(c.maxRetry)}
	if c.timeout > 0 {
		opts = append(opts, asynq.Timeout(c.timeout))
	}
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue email code: %w", err)
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// InlineQueue delivers immediately on the caller's goroutine. It is used when the worker is disabled.
type InlineQueue struct {
	handler *EmailCodeHandler
}

// NewInlineQueue wraps handler as a port.MailQueue.
func NewInlineQueue(handler *EmailCodeHandler) *InlineQueue {
	return &InlineQueue{handler: handler}
}

// EnqueueEmailCode renders and sends msg before returning.
func (q *InlineQueue) EnqueueEmailCode(ctx context.Context, msg port.EmailCodeMessage) error {
	return q.handler.deliver(ctx, SendEmailCodePayload{To: msg.To, Username: msg.Username, Code: msg.Code})
}

var (
	_ port.MailQueue = (*Client)(nil)
	_ port.MailQueue = (*InlineQueue)(nil)
)
