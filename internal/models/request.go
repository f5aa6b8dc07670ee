package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the aggregate state of a payment request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

var validRequestStatuses = map[RequestStatus]bool{
	RequestStatusPending:  true,
	RequestStatusApproved: true,
	RequestStatusRejected: true,
}

var terminalRequestStatuses = map[RequestStatus]bool{
	RequestStatusApproved: true,
	RequestStatusRejected: true,
}

// IsTerminal returns true if no further transitions are allowed
func (s RequestStatus) IsTerminal() bool {
	return terminalRequestStatuses[s]
}

// IsValid returns true if the status is a known request status
func (s RequestStatus) IsValid() bool {
	return validRequestStatuses[s]
}

// String returns the string representation of the status
func (s RequestStatus) String() string {
	return string(s)
}

// ApproverStatus is the per-approver sub-state
type ApproverStatus string

const (
	ApproverStatusPending  ApproverStatus = "PENDING"
	ApproverStatusApproved ApproverStatus = "APPROVED"
)

// ApproverEntry is one designated approver on a request. The set of
// entries is fixed at creation time.
type ApproverEntry struct {
	ApproverID string         `json:"approver_id"`
	Status     ApproverStatus `json:"status"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty"`
}

// Approval is one entry in the approval trail
type Approval struct {
	ApproverID string    `json:"approver_id"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Rejection records the single approver whose rejection finalized the request
type Rejection struct {
	ApproverID string    `json:"approver_id"`
	RejectedAt time.Time `json:"rejected_at"`
}

// PaymentRequest is a spending request awaiting accountability-partner
// approval before the sender's wallet is funded.
type PaymentRequest struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"sender_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	ImageRef    string          `json:"image_ref,omitempty"`

	Approvers []ApproverEntry `json:"approvers"`
	Status    RequestStatus   `json:"status"`

	RejectedBy *Rejection `json:"rejected_by,omitempty"`
	Notes      string     `json:"notes,omitempty"`

	FundingResult string `json:"funding_result,omitempty"`
	FundingError  string `json:"funding_error,omitempty"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Entry returns the approver entry for the given user, or nil if the user
// is not a designated approver.
func (r *PaymentRequest) Entry(approverID string) *ApproverEntry {
	for i := range r.Approvers {
		if r.Approvers[i].ApproverID == approverID {
			return &r.Approvers[i]
		}
	}
	return nil
}

// QuorumComplete reports whether every designated approver has approved
func (r *PaymentRequest) QuorumComplete() bool {
	for i := range r.Approvers {
		if r.Approvers[i].Status != ApproverStatusApproved {
			return false
		}
	}
	return len(r.Approvers) > 0
}

// ApprovedBy returns the approval trail, ordered by approval time
func (r *PaymentRequest) ApprovedBy() []Approval {
	var trail []Approval
	for i := range r.Approvers {
		e := &r.Approvers[i]
		if e.Status == ApproverStatusApproved && e.ApprovedAt != nil {
			trail = append(trail, Approval{ApproverID: e.ApproverID, ApprovedAt: *e.ApprovedAt})
		}
	}
	sort.Slice(trail, func(i, j int) bool {
		return trail[i].ApprovedAt.Before(trail[j].ApprovedAt)
	})
	return trail
}

// Clone returns a deep copy of the request. Stores hand out copies so
// callers can never mutate shared state outside a decision transaction.
func (r *PaymentRequest) Clone() *PaymentRequest {
	cp := *r
	cp.Approvers = make([]ApproverEntry, len(r.Approvers))
	copy(cp.Approvers, r.Approvers)
	if r.RejectedBy != nil {
		rb := *r.RejectedBy
		cp.RejectedBy = &rb
	}
	if r.ApprovedAt != nil {
		at := *r.ApprovedAt
		cp.ApprovedAt = &at
	}
	for i := range cp.Approvers {
		if cp.Approvers[i].ApprovedAt != nil {
			at := *cp.Approvers[i].ApprovedAt
			cp.Approvers[i].ApprovedAt = &at
		}
	}
	return &cp
}

// RequestFilter selects which requests a list operation returns
type RequestFilter string

const (
	FilterMine      RequestFilter = "mine"       // requests the user created
	FilterToApprove RequestFilter = "to_approve" // requests with a pending entry for the user
	FilterAll       RequestFilter = "all"
)

// IsValid returns true if the filter is a known list filter
func (f RequestFilter) IsValid() bool {
	switch f {
	case FilterMine, FilterToApprove, FilterAll:
		return true
	}
	return false
}
