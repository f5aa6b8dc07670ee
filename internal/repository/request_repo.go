package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/approval"
	"github.com/pocketpal/approvalflow/internal/models"
	"github.com/pocketpal/approvalflow/pkg/database"
)

// RequestRepository is the sqlite-backed request store. The database
// connection opens transactions with an immediate write lock, so
// ApplyDecision serializes concurrent decisions on the same request.
type RequestRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *database.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRequest persists a new request and its approver rows
func (r *RequestRepository) CreateRequest(ctx context.Context, req *models.PaymentRequest) error {
	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO payment_requests (
				id, sender_id, amount, description, category, image_ref,
				status, notes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			req.ID,
			req.SenderID,
			req.Amount.String(),
			req.Description,
			req.Category,
			req.ImageRef,
			string(req.Status),
			req.Notes,
			req.CreatedAt,
			req.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert request: %w", err)
		}

		for i, a := range req.Approvers {
			_, err := tx.Exec(`
				INSERT INTO request_approvers (request_id, approver_id, position, status)
				VALUES (?, ?, ?, ?)
			`, req.ID, a.ApproverID, i, string(a.Status))
			if err != nil {
				return fmt.Errorf("failed to insert approver %s: %w", a.ApproverID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create payment request",
			zap.String("request_id", req.ID),
			zap.Error(err))
		return err
	}
	return nil
}

// GetRequest retrieves a request aggregate by id
func (r *RequestRepository) GetRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	req, err := r.loadRequest(ctx, r.db.DB, id)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ApplyDecision executes fn against the current aggregate inside a write
// transaction and persists the mutated aggregate on success.
func (r *RequestRepository) ApplyDecision(ctx context.Context, id string, fn approval.DecisionFunc) (*models.PaymentRequest, error) {
	var updated *models.PaymentRequest
	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		req, err := r.loadRequest(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := fn(req); err != nil {
			return err
		}

		var rejectedBy interface{}
		var rejectedAt interface{}
		if req.RejectedBy != nil {
			rejectedBy = req.RejectedBy.ApproverID
			rejectedAt = req.RejectedBy.RejectedAt
		}
		var approvedAt interface{}
		if req.ApprovedAt != nil {
			approvedAt = *req.ApprovedAt
		}

		_, err = tx.Exec(`
			UPDATE payment_requests
			SET status = ?, notes = ?, rejected_by = ?, rejected_at = ?,
				approved_at = ?, updated_at = ?
			WHERE id = ?
		`,
			string(req.Status),
			req.Notes,
			rejectedBy,
			rejectedAt,
			approvedAt,
			req.UpdatedAt,
			req.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}

		for _, a := range req.Approvers {
			var entryApprovedAt interface{}
			if a.ApprovedAt != nil {
				entryApprovedAt = *a.ApprovedAt
			}
			_, err := tx.Exec(`
				UPDATE request_approvers
				SET status = ?, approved_at = ?
				WHERE request_id = ? AND approver_id = ?
			`, string(a.Status), entryApprovedAt, req.ID, a.ApproverID)
			if err != nil {
				return fmt.Errorf("failed to update approver %s: %w", a.ApproverID, err)
			}
		}

		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordFundingOutcome stores the funding result after the approval
// transition has committed
func (r *RequestRepository) RecordFundingOutcome(ctx context.Context, id, transactionRef, fundingErr string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_requests
		SET funding_result = ?, funding_error = ?, updated_at = ?
		WHERE id = ?
	`, transactionRef, fundingErr, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to record funding outcome",
			zap.String("request_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to record funding outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return approval.ErrNotFound
	}
	return nil
}

// ListRequests retrieves requests for a user under the given filter
func (r *RequestRepository) ListRequests(ctx context.Context, filter models.RequestFilter, userID string) ([]*models.PaymentRequest, error) {
	var query string
	var args []interface{}

	switch filter {
	case models.FilterMine:
		query = `SELECT id FROM payment_requests WHERE sender_id = ? ORDER BY created_at DESC`
		args = []interface{}{userID}
	case models.FilterToApprove:
		query = `
			SELECT pr.id FROM payment_requests pr
			JOIN request_approvers ra ON ra.request_id = pr.id
			WHERE ra.approver_id = ? AND ra.status = ? AND pr.status = ?
			ORDER BY pr.created_at DESC
		`
		args = []interface{}{userID, string(models.ApproverStatusPending), string(models.RequestStatusPending)}
	case models.FilterAll:
		query = `SELECT id FROM payment_requests ORDER BY created_at DESC`
	default:
		return nil, fmt.Errorf("%w: unknown filter %q", approval.ErrValidation, filter)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.String("filter", string(filter)), zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan request id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	requests := make([]*models.PaymentRequest, 0, len(ids))
	for _, id := range ids {
		req, err := r.loadRequest(ctx, r.db.DB, id)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// loadRequest reads the full aggregate: request row plus approver rows in
// their creation order
func (r *RequestRepository) loadRequest(ctx context.Context, q querier, id string) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	var status string
	var amount string
	var rejectedBy sql.NullString
	var rejectedAt sql.NullTime
	var approvedAt sql.NullTime

	err := q.QueryRowContext(ctx, `
		SELECT id, sender_id, amount, description, category, image_ref,
			status, notes, rejected_by, rejected_at, funding_result,
			funding_error, approved_at, created_at, updated_at
		FROM payment_requests
		WHERE id = ?
	`, id).Scan(
		&req.ID,
		&req.SenderID,
		&amount,
		&req.Description,
		&req.Category,
		&req.ImageRef,
		&status,
		&req.Notes,
		&rejectedBy,
		&rejectedAt,
		&req.FundingResult,
		&req.FundingError,
		&approvedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	req.Status = models.RequestStatus(status)
	req.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q on request %s: %w", amount, id, err)
	}
	if rejectedBy.Valid {
		req.RejectedBy = &models.Rejection{ApproverID: rejectedBy.String}
		if rejectedAt.Valid {
			req.RejectedBy.RejectedAt = rejectedAt.Time
		}
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		req.ApprovedAt = &t
	}

	rows, err := q.QueryContext(ctx, `
		SELECT approver_id, status, approved_at
		FROM request_approvers
		WHERE request_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.ApproverEntry
		var entryStatus string
		var entryApprovedAt sql.NullTime
		if err := rows.Scan(&entry.ApproverID, &entryStatus, &entryApprovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approver: %w", err)
		}
		entry.Status = models.ApproverStatus(entryStatus)
		if entryApprovedAt.Valid {
			t := entryApprovedAt.Time
			entry.ApprovedAt = &t
		}
		req.Approvers = append(req.Approvers, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &req, nil
}
