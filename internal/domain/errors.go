package domain

import "errors"

// Auction outcome errors. Every rejected operation returns one of these
// (possibly wrapped) and leaves all auction state unchanged.
var (
	ErrPhaseViolation       = errors.New("operation not allowed in current phase")
	ErrAuthorizationFailure = errors.New("certificate not signed by a trusted authority")
	ErrCertificateExpired   = errors.New("certificate expired")
	ErrOwnershipMismatch    = errors.New("caller is not the certificate owner")
	ErrCommitmentMismatch   = errors.New("revealed bid does not match sealed commitment")
	ErrPaymentMismatch      = errors.New("payment does not match revealed bids")
	ErrNoBids               = errors.New("bidder has no sealed bids")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientBalance  = errors.New("insufficient share balance")
	ErrDoubleClaim          = errors.New("already claimed")

	ErrForbidden          = errors.New("caller lacks the required role")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrLengthMismatch     = errors.New("length mismatch")
	ErrAlreadyDistributed = errors.New("shares already distributed")
	ErrNotDistributed     = errors.New("shares not distributed yet")
	ErrNotLoaded          = errors.New("investors not loaded")
	ErrUnknownInvestor    = errors.New("investor entry does not match a revealed bid")
	ErrOrderViolation     = errors.New("investor list violates sort order")
	ErrIncompleteList     = errors.New("investor list omits revealed bids")
)

// Infrastructure errors.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
	ErrPersist      = errors.New("event not persisted")
)
