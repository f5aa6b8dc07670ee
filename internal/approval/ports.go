package approval

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pocketpal/approvalflow/internal/models"
)

// DecisionFunc mutates a request aggregate inside a decision transaction.
// It returns one of the taxonomy errors to abort without writing.
type DecisionFunc func(req *models.PaymentRequest) error

// RequestStore is the durable source of truth for payment requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, req *models.PaymentRequest) error
	GetRequest(ctx context.Context, id string) (*models.PaymentRequest, error)
	ListRequests(ctx context.Context, filter models.RequestFilter, userID string) ([]*models.PaymentRequest, error)

	// ApplyDecision executes fn against the current aggregate as one atomic
	// read-validate-write. Implementations must serialize concurrent calls
	// for the same request id: at most one caller can observe the request
	// leave the pending state. Returns ErrNotFound for unknown ids and the
	// updated aggregate on success.
	ApplyDecision(ctx context.Context, id string, fn DecisionFunc) (*models.PaymentRequest, error)

	// RecordFundingOutcome stores the funding result (or error) after the
	// quorum-completing transition has committed.
	RecordFundingOutcome(ctx context.Context, id, transactionRef, fundingErr string) error
}

// FundingGateway is the external provider that moves money into the
// requester's wallet. Called at most once per request.
type FundingGateway interface {
	Fund(ctx context.Context, accountRef string, amount decimal.Decimal, memo string) (transactionRef string, err error)
}

// NotificationEmitter records a notification for later fan-out. Best
// effort: failures must never fail the transition that triggered them.
type NotificationEmitter interface {
	Notify(ctx context.Context, userID string, kind models.NotificationKind, title, message, relatedRequestID, actorID string) error
}

// PartnerDirectory answers whether a candidate may approve requests for a
// requester. Consulted only at creation time; the approver set is frozen
// afterwards.
type PartnerDirectory interface {
	IsAuthorizedApprover(ctx context.Context, requesterID, candidateID string) (bool, error)
}
