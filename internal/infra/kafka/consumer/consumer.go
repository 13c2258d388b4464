package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/config"
)

const (
	// fetchBackoff is the pause after a fetch that failed all its retries.
	fetchBackoff = 500 * time.Millisecond

	// handleBackoff is the pause before a message that failed all its
	// handler retries is tried again.
	handleBackoff = 5 * time.Second
)

// messageHandler defines the interface for handling render task messages.
type messageHandler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// Consumer reads render tasks from Kafka and hands them to the handler.
type Consumer struct {
	Client   *wbfkafka.Consumer
	handler  messageHandler
	cfg      *config.Kafka
	strategy retry.Strategy
	backoff  time.Duration
}

// New creates a new Consumer for the configured topic and group.
func New(cfg *config.Kafka, s retry.Strategy, h messageHandler) *Consumer {
	c := wbfkafka.NewConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID)

	return &Consumer{
		Client:   c,
		handler:  h,
		cfg:      cfg,
		strategy: s,
		backoff:  handleBackoff,
	}
}

// Consume fetches messages until ctx is cancelled. A message is committed
// only after the handler succeeded; a failing message is retried and the
// consumer does not move past it.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("topic", c.cfg.Topic).
		Msg("starting consumer")

	for {
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.Client.Fetch(ctx)
			return fetchErr
		}, c.strategy)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			zlog.Logger.Err(err).Msg("failed to fetch message")
			time.Sleep(fetchBackoff)
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			// Only cancellation gets here; the message stays uncommitted.
			continue
		}

		err = retry.Do(func() error {
			return c.Client.Commit(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to commit message after retries")
			continue
		}

		zlog.Logger.Info().
			Int64("offset", msg.Offset).
			Msg("render task handled")
	}
}

// handle runs the handler with the retry strategy and keeps retrying the
// same message after a backoff until it succeeds or ctx is cancelled.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	for {
		err := retry.Do(func() error {
			return c.handler.Handle(ctx, msg)
		}, c.strategy)
		if err == nil {
			return nil
		}

		zlog.Logger.Err(err).
			Int64("offset", msg.Offset).
			Msg("failed to process render task, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
}
