package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"sciencenova/internal/infra"
)

// maxConcurrency caps WORKER_CONCURRENCY.
const maxConcurrency = 50

// HandlerFunc runs one queued job. A nil error acks the delivery; anything
// else dead-letters it.
type HandlerFunc func(ctx context.Context, jobID string) error

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	URL         string
	Queue       string
	Concurrency int
	Logger      *infra.Logger
}

// Consumer pulls job messages with prefetch equal to its concurrency.
type Consumer struct {
	url         string
	queue       string
	concurrency int
	logger      zerolog.Logger
}

func NewConsumer(opts ConsumerOptions) *Consumer {
	return &Consumer{
		url:         opts.URL,
		queue:       opts.Queue,
		concurrency: clampConcurrency(opts.Concurrency),
		logger:      infra.LoggerOrNop(opts.Logger),
	}
}

func clampConcurrency(n int) int {
	if n <= 0 {
		return 2
	}
	if n > maxConcurrency {
		return maxConcurrency
	}
	return n
}

// Run consumes until ctx is done or the broker closes the channel. In-flight
// handlers finish before Run returns.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: channel: %w", err)
	}
	defer ch.Close()

	if err := DeclareTopology(ch, c.queue); err != nil {
		return err
	}
	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: qos: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume: %w", err)
	}

	c.logger.Info().Str("queue", c.queue).Int("concurrency", c.concurrency).Msg("rabbitmq: consumer started")
	return c.dispatch(ctx, msgs, handle)
}

func (c *Consumer) dispatch(ctx context.Context, msgs <-chan amqp.Delivery, handle HandlerFunc) error {
	work := make(chan amqp.Delivery, c.concurrency)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range work {
				c.process(ctx, workerID, d, handle)
			}
		}(i)
	}
	defer func() {
		close(work)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("rabbitmq: consumer shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq: delivery channel closed")
			}
			work <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID int, d amqp.Delivery, handle HandlerFunc) {
	jobID, err := DecodeJobMessage(d.Body)
	if err != nil {
		c.logger.Warn().Err(err).Int("worker", workerID).Msg("rabbitmq: bad message")
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := handle(ctx, jobID); err != nil {
		c.logger.Error().Err(err).Int("worker", workerID).Str("job_id", jobID).Dur("cost", time.Since(start)).Msg("rabbitmq: job failed")
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		c.logger.Warn().Err(err).Int("worker", workerID).Str("job_id", jobID).Msg("rabbitmq: ack failed")
	}
}
