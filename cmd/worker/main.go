package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"sciencenova/internal/app"
	"sciencenova/internal/domain"
	"sciencenova/internal/infra"
	"sciencenova/internal/jobs"
	"sciencenova/internal/queue/rabbitmq"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build stack")
	}
	defer stack.Close()

	consumer := rabbitmq.NewConsumer(rabbitmq.ConsumerOptions{
		URL:         cfg.RabbitURL,
		Queue:       cfg.RabbitQueue,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      &logger,
	})

	handle := jobHandler(stack.Store, stack.Runner)
	if err := consumer.Run(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// jobHandler loads a queued job and runs it. Unknown jobs are dead-lettered;
// a cancelled run during shutdown leaves the job failed like any other.
func jobHandler(store domain.JobStore, runner jobs.JobRunner) rabbitmq.HandlerFunc {
	return func(ctx context.Context, jobID string) (err error) {
		job, err := store.GetJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("load job %s: %w", jobID, err)
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("runner panic: %v", r)
				runner.MarkFailed(jobID, err)
			}
		}()
		return runner.Run(ctx, job)
	}
}
