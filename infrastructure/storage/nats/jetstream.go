package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StreamConfig describes the JetStream stream backing the event store.
type StreamConfig struct {
	// URL is the NATS server URL.
	URL string

	// Stream is the JetStream stream name.
	Stream string

	// SubjectPrefix must match the EventStore prefix; the stream captures
	// every subject below it.
	SubjectPrefix string

	// MaxAge discards events older than this. Zero keeps them forever.
	MaxAge time.Duration

	// FetchBatch is how many messages a replay fetches per round trip.
	FetchBatch int
}

// DefaultStreamConfig returns a local development configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:           nats.DefaultURL,
		Stream:        "ROUTER_EVENTS",
		SubjectPrefix: "router.events",
		MaxAge:        7 * 24 * time.Hour,
		FetchBatch:    256,
	}
}

// JetStreamClient implements Client on a live NATS connection. Publishing
// goes through JetStream for persistence; live subscriptions use core NATS
// since every stored message is also delivered on its subject.
type JetStreamClient struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	batch  int
}

// Connect dials NATS and creates or updates the event stream.
func Connect(ctx context.Context, cfg StreamConfig) (*JetStreamClient, error) {
	if cfg.FetchBatch <= 0 {
		cfg.FetchBatch = DefaultStreamConfig().FetchBatch
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("agent-router"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   cfg.MaxAge,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	return &JetStreamClient{conn: conn, js: js, stream: stream, batch: cfg.FetchBatch}, nil
}

// Publish stores a message and waits for the stream acknowledgement.
func (c *JetStreamClient) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(ctx, subject, data)
	return err
}

// Subscribe delivers messages published after the call.
func (c *JetStreamClient) Subscribe(_ context.Context, subject string, handler func([]byte) error) (Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		_ = handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetMessages replays every stored message on the subject.
func (c *JetStreamClient) GetMessages(ctx context.Context, subject string) ([][]byte, error) {
	return c.replay(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
}

// GetMessagesFrom replays from a stream sequence. Stream sequences are
// global, so callers still filter by event sequence.
func (c *JetStreamClient) GetMessagesFrom(ctx context.Context, subject string, fromSeq uint64) ([][]byte, error) {
	if fromSeq == 0 {
		return c.GetMessages(ctx, subject)
	}
	return c.replay(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:    fromSeq,
	})
}

func (c *JetStreamClient) replay(ctx context.Context, cfg jetstream.OrderedConsumerConfig) ([][]byte, error) {
	consumer, err := c.stream.OrderedConsumer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	out := [][]byte{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := consumer.FetchNoWait(c.batch)
		if err != nil {
			return nil, err
		}
		n := 0
		for msg := range batch.Messages() {
			out = append(out, msg.Data())
			n++
		}
		if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
			return nil, err
		}
		if n < c.batch {
			return out, nil
		}
	}
}

// Close drains the connection.
func (c *JetStreamClient) Close() error {
	return c.conn.Drain()
}

var _ Client = (*JetStreamClient)(nil)
