package domain

import "errors"

var (
	ErrInvalidContractID = errors.New("invalid_contract_id")
	ErrInvalidLookahead  = errors.New("invalid_lookahead")
)
