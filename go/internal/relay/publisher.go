package relay

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/store"
)

type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewPublisher(cfg JetStreamConfig) (*Publisher, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	p := &Publisher{nc: nc, js: js, config: cfg}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *Publisher) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Turn clock room changes",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		// Only the latest notice per room matters to a late subscriber.
		MaxMsgsPerSubject: 16,
		Storage:           jetstream.MemoryStorage,
		Replicas:          p.config.Replicas,
		Duplicates:        p.config.DuplicateWindow,
	}
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	sc := p.streamConfig()

	stream, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = p.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Publish sends one change on its room subject.
func (p *Publisher) Publish(ctx context.Context, change store.Change) error {
	subject := Subject(p.config.SubjectPrefix, change.RoomID)
	data, err := encode(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	opts := []jetstream.PublishOpt{jetstream.WithExpectStream(p.config.StreamName)}
	if id := MsgID(change); id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Change-Table": []string{string(change.Table)},
			"Room-ID":      []string{change.RoomID.String()},
		},
	}, opts...)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published change")

	return nil
}

func (p *Publisher) Conn() *nats.Conn { return p.nc }

func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgsPerSubject == b.MaxMsgsPerSubject &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
