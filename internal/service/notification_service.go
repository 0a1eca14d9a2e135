package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-engine/internal/config"
	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/events"
)

// NotificationService surfaces conflict activity to the host application.
// The reject-and-notify strategy relies on these hooks.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotifyConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotifyConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventConflictDetected, n.handleConflictDetected)
	n.dispatcher.Subscribe(events.EventConflictResolved, n.handleConflictResolved)
	n.dispatcher.Subscribe(events.EventBulkCompleted, n.handleBulkCompleted)
}

func (n *NotificationService) handleConflictDetected(ctx context.Context, event events.Event) error {
	n.logger.Info("ConflictDetected",
		zap.String("entity_id", event.EntityID),
		zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleConflictResolved(ctx context.Context, event events.Event) error {
	n.logger.Info("ConflictResolved",
		zap.String("entity_id", event.EntityID),
		zap.Any("payload", event.Payload))
	payload, ok := event.Payload.(events.ConflictResolvedPayload)
	if ok && payload.Strategy != nil && *payload.Strategy == domain.StrategyRejectAndNotify {
		n.sendWebhookNotificationStub(ctx, event)
	}
	return nil
}

func (n *NotificationService) handleBulkCompleted(ctx context.Context, event events.Event) error {
	n.logger.Info("BulkCompleted", zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("entity_id", event.EntityID),
		zap.String("event_type", string(event.Type)))
}
