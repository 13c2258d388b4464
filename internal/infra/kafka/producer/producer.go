package producer

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/thumbnailer/internal/config"
	"github.com/aliskhannn/thumbnailer/internal/model"
)

// Producer sends render tasks to Kafka.
type Producer struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a new Producer for the configured topic.
func New(cfg *config.Kafka, s retry.Strategy) *Producer {
	return &Producer{
		Client:   wbfkafka.NewProducer(cfg.Brokers, cfg.Topic),
		cfg:      cfg,
		strategy: s,
	}
}

// Produce serializes the task to JSON and sends it with retries.
// The source path is the message key, so every task of one source lands on
// the same partition and is processed in order.
func (p *Producer) Produce(ctx context.Context, task model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err = p.Client.SendWithRetry(ctx, p.strategy, []byte(task.Source), data); err != nil {
		return fmt.Errorf("failed to send task %s: %w", task.ID, err)
	}

	return nil
}
