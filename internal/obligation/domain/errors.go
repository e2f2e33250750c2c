package domain

import "errors"

var (
	ErrObligationNotFound = errors.New("obligation_not_found")
	ErrInvalidOrigin      = errors.New("invalid_origin")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidDirection   = errors.New("invalid_direction")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrOwnerNotConfigured = errors.New("system_owner_not_configured")
	ErrSaleNotClosed      = errors.New("sale_not_closed")
)
