package redisclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"medlink/m/internal/sos"
)

// Publisher broadcasts SOS events on a Redis pub/sub channel.
type Publisher struct {
	client  *Client
	channel string
}

func NewPublisher(client *Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, event sos.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Client().Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	log.Debug().Str("channel", p.channel).Str("event", event.Type).Int64("signal_id", event.Signal.ID).Msg("published sos event")
	return nil
}
