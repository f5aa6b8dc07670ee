package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/models"
)

// outboxStore is the slice of the notification repository the emitter needs
type outboxStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Emitter records state transitions as notification outbox rows. Delivery
// to the external sink happens asynchronously in the Dispatcher, so a slow
// or dead sink never blocks an approval or rejection.
type Emitter struct {
	store  outboxStore
	logger *zap.Logger
}

// NewEmitter creates a new notification emitter
func NewEmitter(store outboxStore, logger *zap.Logger) *Emitter {
	return &Emitter{
		store:  store,
		logger: logger,
	}
}

// Notify records one notification for one recipient. The store drops rows
// that duplicate an already recorded transition, so calling this twice for
// the same logical transition is harmless.
func (e *Emitter) Notify(ctx context.Context, userID string, kind models.NotificationKind, title, message, relatedRequestID, actorID string) error {
	n := &models.Notification{
		ID:               uuid.NewString(),
		UserID:           userID,
		Kind:             kind,
		Title:            title,
		Message:          message,
		RelatedRequestID: relatedRequestID,
		ActorID:          actorID,
		Status:           models.NotificationStatusPending,
	}
	if err := e.store.Create(ctx, n); err != nil {
		return err
	}

	e.logger.Debug("Notification queued",
		zap.String("user_id", userID),
		zap.String("kind", string(kind)),
		zap.String("request_id", relatedRequestID))
	return nil
}
