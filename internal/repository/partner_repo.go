package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/pkg/database"
)

// partnerStatusAccepted is the only relationship state that authorizes an
// approver. The accept/reject lifecycle itself belongs to the relationship
// subsystem; this repository only reads the resulting rows.
const partnerStatusAccepted = "ACCEPTED"

// PartnerRepository answers accountability-partner authorization queries
type PartnerRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewPartnerRepository creates a new partner repository
func NewPartnerRepository(db *database.DB, logger *zap.Logger) *PartnerRepository {
	return &PartnerRepository{
		db:     db,
		logger: logger,
	}
}

// IsAuthorizedApprover reports whether candidate is an accepted
// accountability partner of the requester
func (r *PartnerRepository) IsAuthorizedApprover(ctx context.Context, requesterID, candidateID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM accountability_partners
		WHERE user_id = ? AND partner_id = ? AND status = ?
	`, requesterID, candidateID, partnerStatusAccepted).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to check partner authorization",
			zap.String("requester_id", requesterID),
			zap.String("candidate_id", candidateID),
			zap.Error(err))
		return false, fmt.Errorf("failed to check partner authorization: %w", err)
	}
	return count > 0, nil
}
