package merchant

import "errors"

var (
	ErrBusinessNotFound    = errors.New("business not found")
	ErrDuplicateSlug       = errors.New("business slug already taken")
	ErrInvalidName         = errors.New("business name must contain letters or digits")
	ErrInvalidSlug         = errors.New("invalid business slug")
	ErrDetailsRequired     = errors.New("business details must be collected first")
	ErrInvalidDetails      = errors.New("business name, email and country are required")
	ErrAccountNotConnected = errors.New("business stripe account not connected")
	ErrChargesNotEnabled   = errors.New("business cannot accept charges yet")
	ErrAccountDisabled     = errors.New("business stripe account is disabled")
	ErrAccountMismatch     = errors.New("stripe account does not belong to business")
	ErrInvalidTransition   = errors.New("business status transition not allowed")

	ErrFailedToSyncAccount  = errors.New("failed to sync stripe account")
	ErrFailedToCreateAcct   = errors.New("failed to create stripe account")
	ErrFailedToCreateLink   = errors.New("failed to create onboarding link")
	ErrFailedToSaveBusiness = errors.New("failed to save business")
)
