package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/training-auth/internal/events"
)

// EventRecorder counts audit events. observability.Metrics implements it.
type EventRecorder interface {
	RecordAuthEvent(event string)
}

// AuditService writes token lifecycle events to the audit log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	recorder   EventRecorder
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, recorder EventRecorder) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
		recorder:   recorder,
	}
}

// RegisterHandlers subscribes to every auth event.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		a.dispatcher.Subscribe(eventType, a.handle)
	}
}

func (a *AuditService) handle(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event", string(event.Type)),
		zap.Time("at", event.Timestamp),
	}
	if !event.Subject.IsZero() {
		fields = append(fields, zap.String("user_id", event.Subject.ID))
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}

	switch event.Type {
	case events.EventLoginFailed, events.EventRefreshReplayRejected, events.EventPasswordResetRejected:
		a.logger.Warn("auth event", fields...)
	default:
		a.logger.Info("auth event", fields...)
	}

	if a.recorder != nil {
		a.recorder.RecordAuthEvent(string(event.Type))
	}
	return nil
}
