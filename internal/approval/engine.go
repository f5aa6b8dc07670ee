package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/models"
)

// memoMaxLen caps the memo passed to the funding provider
const memoMaxLen = 140

// CreateRequestInput carries the creation parameters for a payment request
type CreateRequestInput struct {
	SenderID    string
	Amount      decimal.Decimal
	Description string
	Category    string
	ImageRef    string
	ApproverIDs []string
}

// Engine enforces the request state machine and quorum rule. It is the only
// component that mutates request status.
type Engine struct {
	store    RequestStore
	partners PartnerDirectory
	gateway  FundingGateway
	emitter  NotificationEmitter
	logger   *zap.Logger
}

// NewEngine creates a new approval engine
func NewEngine(
	store RequestStore,
	partners PartnerDirectory,
	gateway FundingGateway,
	emitter NotificationEmitter,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		store:    store,
		partners: partners,
		gateway:  gateway,
		emitter:  emitter,
		logger:   logger,
	}
}

// CreateRequest validates and persists a new pending request and notifies
// each designated approver.
func (e *Engine) CreateRequest(ctx context.Context, in CreateRequestInput) (*models.PaymentRequest, error) {
	if in.SenderID == "" {
		return nil, fmt.Errorf("%w: sender id is required", ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if len(in.ApproverIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one approver is required", ErrValidation)
	}

	seen := make(map[string]bool, len(in.ApproverIDs))
	for _, id := range in.ApproverIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: approver id must not be empty", ErrValidation)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate approver %s", ErrValidation, id)
		}
		if id == in.SenderID {
			return nil, fmt.Errorf("%w: sender cannot approve their own request", ErrValidation)
		}
		seen[id] = true
	}

	for _, id := range in.ApproverIDs {
		ok, err := e.partners.IsAuthorizedApprover(ctx, in.SenderID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check approver authorization: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorizedApprover, id)
		}
	}

	now := time.Now().UTC()
	req := &models.PaymentRequest{
		ID:          uuid.NewString(),
		SenderID:    in.SenderID,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		ImageRef:    in.ImageRef,
		Status:      models.RequestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, id := range in.ApproverIDs {
		req.Approvers = append(req.Approvers, models.ApproverEntry{
			ApproverID: id,
			Status:     models.ApproverStatusPending,
		})
	}

	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to persist request: %w", err)
	}

	e.logger.Info("Payment request created",
		zap.String("request_id", req.ID),
		zap.String("sender_id", req.SenderID),
		zap.String("amount", req.Amount.String()),
		zap.Int("approvers", len(req.Approvers)))

	title := "New payment request"
	message := fmt.Sprintf("%s requested %s for %q", req.SenderID, req.Amount.StringFixed(2), req.Description)
	for _, a := range req.Approvers {
		e.notify(ctx, a.ApproverID, models.NotificationRequestCreated, title, message, req.ID, req.SenderID)
	}

	return req, nil
}

// Approve records one approver's approval. When the approval completes the
// quorum the request transitions to approved and funding is attempted
// exactly once; a funding failure is recorded on the request but never
// rolls the approval back.
func (e *Engine) Approve(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error) {
	if approverID == "" {
		return nil, fmt.Errorf("%w: approver id is required", ErrValidation)
	}

	var completed bool
	updated, err := e.store.ApplyDecision(ctx, requestID, func(req *models.PaymentRequest) error {
		if req.Status.IsTerminal() {
			return ErrAlreadyTerminal
		}
		entry := req.Entry(approverID)
		if entry == nil {
			return ErrUnauthorized
		}
		if entry.Status != models.ApproverStatusPending {
			return ErrAlreadyActed
		}

		now := time.Now().UTC()
		entry.Status = models.ApproverStatusApproved
		entry.ApprovedAt = &now
		if strings.TrimSpace(notes) != "" {
			req.Notes = notes
		}
		req.UpdatedAt = now

		if req.QuorumComplete() {
			req.Status = models.RequestStatusApproved
			req.ApprovedAt = &now
			completed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Approval recorded",
		zap.String("request_id", requestID),
		zap.String("approver_id", approverID),
		zap.Bool("quorum_complete", completed))

	if !completed {
		message := fmt.Sprintf("%s approved your request for %q", approverID, updated.Description)
		e.notify(ctx, updated.SenderID, models.NotificationRequestProgress, "Request approval progress", message, updated.ID, approverID)
		return updated, nil
	}

	// This caller owns the pending->approved transition, so the funding
	// call below happens at most once per request. The approval stands
	// even if funding fails; the outcome lands on the record for
	// out-of-band reconciliation.
	updated = e.fund(ctx, updated)

	message := fmt.Sprintf("Your request for %q was approved", updated.Description)
	e.notify(ctx, updated.SenderID, models.NotificationRequestReviewed, "Request approved", message, updated.ID, approverID)

	return updated, nil
}

// Reject finalizes the request as rejected regardless of other approvers'
// states. A reason is required.
func (e *Engine) Reject(ctx context.Context, requestID, approverID, notes string) (*models.PaymentRequest, error) {
	if approverID == "" {
		return nil, fmt.Errorf("%w: approver id is required", ErrValidation)
	}
	if strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("%w: a rejection reason is required", ErrValidation)
	}

	updated, err := e.store.ApplyDecision(ctx, requestID, func(req *models.PaymentRequest) error {
		if req.Status.IsTerminal() {
			return ErrAlreadyTerminal
		}
		entry := req.Entry(approverID)
		if entry == nil {
			return ErrUnauthorized
		}
		if entry.Status != models.ApproverStatusPending {
			return ErrAlreadyActed
		}

		now := time.Now().UTC()
		req.Status = models.RequestStatusRejected
		req.RejectedBy = &models.Rejection{ApproverID: approverID, RejectedAt: now}
		req.Notes = notes
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Request rejected",
		zap.String("request_id", requestID),
		zap.String("approver_id", approverID))

	message := fmt.Sprintf("Your request for %q was rejected: %s", updated.Description, notes)
	e.notify(ctx, updated.SenderID, models.NotificationRequestReviewed, "Request rejected", message, updated.ID, approverID)

	// Other approvers, including any who already approved, learn the
	// request is dead so they do not act on it again.
	peerMsg := fmt.Sprintf("%s rejected %s's request for %q", approverID, updated.SenderID, updated.Description)
	for _, a := range updated.Approvers {
		if a.ApproverID == approverID {
			continue
		}
		e.notify(ctx, a.ApproverID, models.NotificationRequestRejectedPeer, "Request rejected", peerMsg, updated.ID, approverID)
	}

	return updated, nil
}

// GetRequest retrieves a request by id
func (e *Engine) GetRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	return e.store.GetRequest(ctx, id)
}

// ListRequests retrieves requests visible to a user under the given filter
func (e *Engine) ListRequests(ctx context.Context, filter models.RequestFilter, userID string) ([]*models.PaymentRequest, error) {
	if !filter.IsValid() {
		return nil, fmt.Errorf("%w: unknown filter %q", ErrValidation, filter)
	}
	if filter != models.FilterAll && userID == "" {
		return nil, fmt.Errorf("%w: user id is required for filter %q", ErrValidation, filter)
	}
	return e.store.ListRequests(ctx, filter, userID)
}

// fund invokes the funding gateway once and records the outcome on the
// request. The returned aggregate reflects the recorded outcome.
func (e *Engine) fund(ctx context.Context, req *models.PaymentRequest) *models.PaymentRequest {
	memo := req.Description
	if len(memo) > memoMaxLen {
		memo = memo[:memoMaxLen]
	}

	txRef, err := e.gateway.Fund(ctx, req.SenderID, req.Amount, memo)
	if err != nil {
		e.logger.Error("Funding call failed",
			zap.String("request_id", req.ID),
			zap.Error(err))
		req.FundingError = err.Error()
	} else {
		e.logger.Info("Wallet funded",
			zap.String("request_id", req.ID),
			zap.String("transaction_ref", txRef))
		req.FundingResult = txRef
	}

	if recErr := e.store.RecordFundingOutcome(ctx, req.ID, req.FundingResult, req.FundingError); recErr != nil {
		e.logger.Error("Failed to record funding outcome",
			zap.String("request_id", req.ID),
			zap.Error(recErr))
	}
	return req
}

// notify is best-effort: emitter failures are logged, never propagated
func (e *Engine) notify(ctx context.Context, userID string, kind models.NotificationKind, title, message, requestID, actorID string) {
	if err := e.emitter.Notify(ctx, userID, kind, title, message, requestID, actorID); err != nil {
		e.logger.Warn("Failed to emit notification",
			zap.String("request_id", requestID),
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
