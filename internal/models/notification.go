package models

import "time"

// NotificationKind classifies the transition that produced a notification
type NotificationKind string

const (
	// NotificationRequestCreated is sent to each approver when a request is created
	NotificationRequestCreated NotificationKind = "request_created"
	// NotificationRequestProgress is sent to the requester when an approval
	// lands but quorum is not yet complete
	NotificationRequestProgress NotificationKind = "request_progress"
	// NotificationRequestReviewed is sent to the requester when the request
	// reaches a terminal state
	NotificationRequestReviewed NotificationKind = "request_reviewed"
	// NotificationRequestRejectedPeer is sent to the non-rejecting approvers
	// when a request is rejected
	NotificationRequestRejectedPeer NotificationKind = "request_rejected_peer"
)

// Notification dispatch status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Notification is an outbox row awaiting delivery to the notification sink.
// The (related_request_id, kind, user_id, actor_id) tuple identifies one
// logical transition for one recipient; the store enforces uniqueness on it
// so retries never fan out twice.
type Notification struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Kind             NotificationKind `json:"kind"`
	Title            string           `json:"title"`
	Message          string           `json:"message"`
	RelatedRequestID string           `json:"related_request_id,omitempty"`
	ActorID          string           `json:"actor_id,omitempty"`
	Status           string           `json:"status"`
	SentAt           *time.Time       `json:"sent_at,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
