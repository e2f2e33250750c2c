package domain

import "errors"

var (
	ErrSellerRequired          = errors.New("seller_required")
	ErrInvalidOriginValue      = errors.New("invalid_origin_value")
	ErrInvalidOrigin           = errors.New("invalid_commission_origin")
	ErrInvalidCommissionAmount = errors.New("invalid_commission_amount")
	ErrCommissionNotFound      = errors.New("commission_not_found")
	ErrCommissionSettled       = errors.New("commission_settled")
	ErrLockNotAcquired         = errors.New("commission_lock_not_acquired")
	ErrInvalidID               = errors.New("invalid_id")
)
