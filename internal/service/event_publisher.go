package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-import-api/internal/dto"
	"github.com/noah-isme/campus-import-api/internal/models"
)

// Channels consumed by the rest of the platform.
const (
	ChannelImportCompleted = "bulk.import.completed"
	ChannelImportFailed    = "bulk.import.failed"
	ChannelWelcomeMessages = "welcome-messages"
)

// EventPublisher pushes job lifecycle and notification events onto the
// platform message bus.
type EventPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewEventPublisher constructs the publisher.
func NewEventPublisher(client *redis.Client, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{client: client, logger: logger}
}

// PublishResult announces a terminal job state on the matching channel.
func (p *EventPublisher) PublishResult(ctx context.Context, event dto.JobResultEvent) error {
	channel := ChannelImportCompleted
	if event.Status == models.ImportStatusFailed {
		channel = ChannelImportFailed
	}
	return p.publish(ctx, channel, event)
}

// PublishWelcomeEmails hands created-account notifications to the
// notification layer, one message per account.
func (p *EventPublisher) PublishWelcomeEmails(ctx context.Context, events []dto.WelcomeEmailEvent) error {
	for _, event := range events {
		if err := p.publish(ctx, ChannelWelcomeMessages, event); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventPublisher) publish(ctx context.Context, channel string, payload interface{}) error {
	if p == nil || p.client == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", channel, err)
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}
