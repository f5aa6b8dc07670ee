package approval

import "errors"

var (
	// ErrValidation is returned when an operation's input is rejected
	// before any write happens
	ErrValidation = errors.New("invalid input")

	// ErrNotFound is returned when the request id is unknown
	ErrNotFound = errors.New("payment request not found")

	// ErrUnauthorized is returned when the caller is not a designated
	// approver of the request
	ErrUnauthorized = errors.New("not a designated approver")

	// ErrUnauthorizedApprover is returned at creation time when a supplied
	// approver is not an accountability partner of the sender
	ErrUnauthorizedApprover = errors.New("approver is not an accountability partner of the sender")

	// ErrAlreadyTerminal is returned when the request is no longer pending
	ErrAlreadyTerminal = errors.New("payment request already finalized")

	// ErrAlreadyActed is returned when this approver has already recorded
	// a decision on the request
	ErrAlreadyActed = errors.New("approver already recorded a decision")
)
