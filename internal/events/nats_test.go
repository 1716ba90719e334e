package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/JonMunkholm/sitecatalog/internal/core"
)

type fakeJetStream struct {
	subject string
	data    []byte
	opts    int
	err     error
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	f.subject = subj
	f.data = data
	f.opts = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return &nats.PubAck{Stream: "CATALOG", Sequence: 1}, nil
}

func TestPublisher_Publish(t *testing.T) {
	js := &fakeJetStream{}
	p := &Publisher{js: js, subject: "catalog.replaced"}

	evt := core.CatalogReplaced{
		IngestionID:   "abc",
		SiteID:        3,
		UploadID:      42,
		ProductsCount: 2,
		OccurredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if js.subject != "catalog.replaced" {
		t.Errorf("subject = %q", js.subject)
	}
	if js.opts != 2 {
		t.Errorf("publish opts = %d, want context and msg id", js.opts)
	}

	var got core.CatalogReplaced
	if err := json.Unmarshal(js.data, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.IngestionID != "abc" || got.UploadID != 42 || !got.OccurredAt.Equal(evt.OccurredAt) {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	js := &fakeJetStream{err: nats.ErrNoResponders}
	p := &Publisher{js: js, subject: "catalog.replaced"}

	err := p.Publish(context.Background(), core.CatalogReplaced{IngestionID: "x"})
	if !errors.Is(err, nats.ErrNoResponders) {
		t.Errorf("error = %v, want ErrNoResponders", err)
	}
}

func TestPublisher_Nil(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), core.CatalogReplaced{}); err == nil {
		t.Error("nil publisher accepted an event")
	}
	p.Close()
}
