// Package events publishes catalog events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/JonMunkholm/sitecatalog/internal/core"
)

// jetStream is the subset of nats.JetStreamContext the publisher uses.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher is a core.EventPublisher backed by JetStream.
type Publisher struct {
	conn    *nats.Conn
	js      jetStream
	subject string
}

// Connect dials url and ensures stream captures subject.
func Connect(url, stream, subject string, opts ...nats.Option) (*Publisher, error) {
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}

	opts = append([]nats.Option{
		nats.Name("sitecatalog"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
	}, opts...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if stream != "" {
		if err := ensureStream(js, stream, subject); err != nil {
			nc.Close()
			return nil, err
		}
	}

	return &Publisher{conn: nc, js: js, subject: subject}, nil
}

func ensureStream(js nats.JetStreamContext, stream, subject string) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", stream, err)
	}
	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{subject},
	}); err != nil {
		return fmt.Errorf("add stream %s: %w", stream, err)
	}
	return nil
}

// Publish sends evt as JSON. The ingestion id is used as the message id so
// JetStream drops duplicates.
func (p *Publisher) Publish(ctx context.Context, evt core.CatalogReplaced) error {
	if p == nil {
		return errors.New("nil publisher")
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := p.js.Publish(p.subject, data, nats.Context(ctx), nats.MsgId(evt.IngestionID)); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
