package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"loadline_backend/platform/config"
	"loadline_backend/platform/logger"
)

// CallProcessor runs the completion pipeline for one stored event.
// Satisfied by *intake.Service.
type CallProcessor interface {
	ProcessCompletion(ctx context.Context, conversationID string) error
}

// Worker consumes call-processing tasks from asynq.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor CallProcessor
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor CallProcessor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		log:       log,
	}

	mux.HandleFunc(TaskCallProcess, w.handleCallProcess)

	return w, nil
}

func (w *Worker) handleCallProcess(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCallProcessPayload(task)
	if err != nil {
		return err
	}
	if payload.ConversationID == "" {
		return fmt.Errorf("call process task without conversation id")
	}
	return w.processor.ProcessCompletion(ctx, payload.ConversationID)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
