// Package events broadcasts brain decisions over NATS for external consumers
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/db"
)

// Publisher pushes decision events to a NATS subject. The engine treats it as
// optional: publish failures are logged by the caller, never fatal.
type Publisher struct {
	conn  *nats.Conn
	topic string
	log   zerolog.Logger
}

// Connect dials NATS and returns a publisher
func Connect(url, topic string, log zerolog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("quantbrain-engine"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{
		conn:  conn,
		topic: topic,
		log:   log.With().Str("component", "event_publisher").Logger(),
	}, nil
}

// PublishDecision serializes and publishes one decision row
func (p *Publisher) PublishDecision(_ context.Context, d *db.BrainDecision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode decision event: %w", err)
	}

	if err := p.conn.Publish(p.topic, payload); err != nil {
		return fmt.Errorf("failed to publish decision event: %w", err)
	}

	p.log.Debug().
		Str("decision_id", d.ID.String()).
		Str("action", d.Action).
		Msg("Decision event published")
	return nil
}

// Close drains and closes the connection
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to drain NATS connection")
	}
}
