package domain

import "errors"

var ErrInvalidObligationID = errors.New("invalid_obligation_id")
