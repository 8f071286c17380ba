package relay

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/store"
)

// Handler receives decoded changes. It must not block for long.
type Handler func(store.Change)

// Consumer follows the change stream with a durable pull consumer.
type Consumer struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   JetStreamConfig
	handled  atomic.Uint64
	running  atomic.Bool
}

func NewConsumer(cfg JetStreamConfig) (*Consumer, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	c := &Consumer{nc: nc, js: js, config: cfg}
	if err := c.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "Turn clock gateway change follower",
		FilterSubject: fmt.Sprintf("%s.>", c.config.SubjectPrefix),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("JetStream consumer ready")

	c.consumer = consumer
	return nil
}

// Start consumes until ctx is done. Undecodable messages are terminated, not redelivered.
func (c *Consumer) Start(ctx context.Context, handle Handler) error {
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Msg("starting change consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	c.running.Store(true)
	defer c.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("change consumer shutting down")
			return nil
		case msg := <-messageCh:
			change, err := decode(msg.Data())
			if err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode change")
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			handle(change)
			c.handled.Add(1)
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (c *Consumer) Handled() uint64 { return c.handled.Load() }

// Active reports whether Start is consuming.
func (c *Consumer) Active() bool { return c.running.Load() }

func (c *Consumer) Conn() *nats.Conn { return c.nc }

func (c *Consumer) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
