package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sciencenova/internal/domain"
)

const publishTimeout = 5 * time.Second

// JobMessage is the body of every queued job.
type JobMessage struct {
	JobID string `json:"job_id"`
}

// Publisher queues created jobs for cmd/worker. It satisfies jobs.Launcher.
type Publisher struct {
	conn  *amqp.Connection
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel: %w", err)
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// DeclareTopology declares the job queue and its dead-letter queue. Nacked
// deliveries land in "<queue>.dlq".
func DeclareTopology(ch *amqp.Channel, queue string) error {
	dlq := DeadLetterQueue(queue)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare %s: %w", dlq, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		return fmt.Errorf("rabbitmq: declare %s: %w", queue, err)
	}
	return nil
}

func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// Launch publishes job for a worker process.
func (p *Publisher) Launch(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("rabbitmq: %w: missing id", domain.ErrInvalidJob)
	}
	return p.PublishJob(ctx, job.ID)
}

func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	body, err := EncodeJobMessage(jobID)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(cctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    jobID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", jobID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func EncodeJobMessage(jobID string) ([]byte, error) {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: encode message: %w", err)
	}
	return body, nil
}

func DecodeJobMessage(body []byte) (string, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Errorf("rabbitmq: decode message: %w", err)
	}
	if m.JobID == "" {
		return "", fmt.Errorf("rabbitmq: message without job_id")
	}
	return m.JobID, nil
}
