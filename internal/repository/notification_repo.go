package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/models"
	"github.com/pocketpal/approvalflow/pkg/database"
)

// NotificationRepository handles notification outbox rows
type NotificationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new outbox row. A row that duplicates an already
// recorded transition (same request, kind, recipient and actor) is dropped
// silently; this is what keeps fan-out exactly-once across retries.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = models.NotificationStatusPending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notifications (
			id, user_id, kind, title, message, related_request_id,
			actor_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID,
		n.UserID,
		string(n.Kind),
		n.Title,
		n.Message,
		n.RelatedRequestID,
		n.ActorID,
		n.Status,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("user_id", n.UserID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListPending retrieves outbox rows awaiting dispatch, oldest first
func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, kind, title, message, related_request_id,
			actor_id, status, sent_at, error_message, created_at, updated_at
		FROM notifications
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, models.NotificationStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to list pending notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// ListByUser retrieves a user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, kind, title, message, related_request_id,
			actor_id, status, sent_at, error_message, created_at, updated_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		r.logger.Error("Failed to list notifications",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// MarkSent flags a row as delivered to the sink
func (r *NotificationRepository) MarkSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, sent_at = ?, error_message = '', updated_at = ?
		WHERE id = ?
	`, models.NotificationStatusSent, now, now, id)
	if err != nil {
		r.logger.Error("Failed to mark notification sent", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure. The row stays FAILED; a later
// migration to a retry policy would flip it back to PENDING.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, deliveryErr string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, models.NotificationStatusFailed, deliveryErr, now, id)
	if err != nil {
		r.logger.Error("Failed to mark notification failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

func scanNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		var kind string
		var sentAt sql.NullTime

		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&kind,
			&n.Title,
			&n.Message,
			&n.RelatedRequestID,
			&n.ActorID,
			&n.Status,
			&sentAt,
			&n.ErrorMessage,
			&n.CreatedAt,
			&n.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		n.Kind = models.NotificationKind(kind)
		if sentAt.Valid {
			t := sentAt.Time
			n.SentAt = &t
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}
