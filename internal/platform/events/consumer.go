// Package events consumes appointment status changes published by scheduling.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ClinicHeader names the Kafka header carrying the clinic the event belongs to.
const ClinicHeader = "clinic_id"

// HandlerFunc processes one message payload. A returned error is retried.
type HandlerFunc func(ctx context.Context, payload []byte) error

// ScopeFunc runs fn against one clinic's data. See db.WithClinic.
type ScopeFunc func(ctx context.Context, clinicID string, fn func(ctx context.Context) error) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	DefaultClinic string
	MaxAttempts   int
	RetryBackoff  time.Duration
}

type Consumer struct {
	reader reader
	handle HandlerFunc
	scope  ScopeFunc
	cfg    ConsumerConfig
	logger zerolog.Logger
}

func NewConsumer(cfg ConsumerConfig, handle HandlerFunc, scope ScopeFunc, logger zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  time.Second,
	})
	return newConsumer(r, cfg, handle, scope, logger)
}

func newConsumer(r reader, cfg ConsumerConfig, handle HandlerFunc, scope ScopeFunc, logger zerolog.Logger) *Consumer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Consumer{
		reader: r,
		handle: handle,
		scope:  scope,
		cfg:    cfg,
		logger: logger.With().Str("component", "events").Str("topic", cfg.Topic).Logger(),
	}
}

// Run consumes until ctx is cancelled. Offsets are committed once a message
// is handled or has exhausted its attempts, so one bad event cannot stall
// the partition.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("dropping appointment event after retries")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	clinicID := clinicOf(msg, c.cfg.DefaultClinic)
	var err error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		err = c.scope(ctx, clinicID, func(ctx context.Context) error {
			return c.handle(ctx, msg.Value)
		})
		if err == nil {
			return nil
		}
		c.logger.Warn().Err(err).Int("attempt", attempt).Str("clinic_id", clinicID).Msg("appointment event failed")
		if attempt == c.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func clinicOf(msg kafka.Message, fallback string) string {
	for _, h := range msg.Headers {
		if h.Key == ClinicHeader && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return fallback
}
