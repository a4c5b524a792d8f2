package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/infra/config"
)

// Worker wraps the asynq server processing mail tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewWorker constructs a Worker consuming cfg.Queue.
func NewWorker(redisOpt asynq.RedisClientOpt, cfg config.JobsSettings, handler *EmailCodeHandler, logger *zap.Logger) *Worker {
	queue := cfg.Queue
	if queue == "" {
		queue = QueueDefault
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("job failed", zap.String("type", task.Type()), zap.Error(err))
		}),
		Logger: newAsynqLogger(logger),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeSendEmailCode, handler)

	return &Worker{server: srv, mux: mux, logger: logger}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.logger.Info("job worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("job worker stopped")
	return nil
}

// asynqLogger adapts zap to asynq.Logger.
type asynqLogger struct {
	s *zap.SugaredLogger
}

func newAsynqLogger(l *zap.Logger) asynqLogger {
	return asynqLogger{s: l.Named("asynq").Sugar()}
}

func (l asynqLogger) Debug(args ...any) { l.s.Debug(args...) }
func (l asynqLogger) Info(args ...any)  { l.s.Info(args...) }
func (l asynqLogger) Warn(args ...any)  { l.s.Warn(args...) }
func (l asynqLogger) Error(args ...any) { l.s.Error(args...) }
func (l asynqLogger) Fatal(args ...any) { l.s.Fatal(args...) }
