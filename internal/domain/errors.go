package domain

import "errors"

// Rejection taxonomy for treasury operations. All rejections are synchronous;
// the engine never retries or queues a failed call on behalf of the caller.
var (
	ErrInvalidCategory         = errors.New("invalid category")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidRecipient        = errors.New("invalid recipient")
	ErrInsufficientFunds       = errors.New("insufficient available funds")
	ErrInsufficientReservation = errors.New("insufficient reserved funds")
	ErrPolicyPercentages       = errors.New("allocation percentages must sum to 10000 basis points")
	ErrProposalNotFound        = errors.New("withdrawal proposal not found")
	ErrProposalNotPending      = errors.New("withdrawal proposal is not pending")
	ErrAlreadyApproved         = errors.New("approver has already approved this proposal")
	ErrInsufficientApprovals   = errors.New("approval quorum not reached")
	ErrTimelockNotExpired      = errors.New("timelock has not expired")
	ErrArrayLengthMismatch     = errors.New("recipients and amounts must have the same non-zero length")
	ErrDisbursementFailed      = errors.New("disbursement failed")
	ErrUnauthorized            = errors.New("principal is not authorized for this operation")
	ErrPaused                  = errors.New("treasury is paused")
	ErrBatchNotFound           = errors.New("batch distribution not found")
	ErrBatchExecuted           = errors.New("batch distribution already executed")
	ErrUnknownPool             = errors.New("unknown funding pool")
)
