package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	reconciledomain "github.com/smallbiznis/obligo/internal/reconcile/domain"
	recurrencedomain "github.com/smallbiznis/obligo/internal/recurrence/domain"
	"github.com/smallbiznis/obligo/pkg/db"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, obligationdomain.ErrOwnerNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger a type and a stable code.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, "internal_error"
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, err.Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, commissiondomain.ErrSellerRequired),
		errors.Is(err, commissiondomain.ErrInvalidOriginValue),
		errors.Is(err, commissiondomain.ErrInvalidOrigin),
		errors.Is(err, commissiondomain.ErrInvalidCommissionAmount),
		errors.Is(err, commissiondomain.ErrInvalidID),
		errors.Is(err, obligationdomain.ErrInvalidOrigin),
		errors.Is(err, obligationdomain.ErrInvalidAmount),
		errors.Is(err, obligationdomain.ErrInvalidDirection),
		errors.Is(err, obligationdomain.ErrInvalidID),
		errors.Is(err, obligationdomain.ErrInvalidPageToken),
		errors.Is(err, recurrencedomain.ErrInvalidContractID),
		errors.Is(err, recurrencedomain.ErrInvalidLookahead),
		errors.Is(err, reconciledomain.ErrInvalidObligationID),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, commissiondomain.ErrCommissionSettled),
		errors.Is(err, commissiondomain.ErrLockNotAcquired),
		errors.Is(err, obligationdomain.ErrInvalidTransition),
		errors.Is(err, obligationdomain.ErrSaleNotClosed),
		db.IsDuplicateKeyErr(err):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, commissiondomain.ErrCommissionSettled),
		errors.Is(err, commissiondomain.ErrLockNotAcquired),
		errors.Is(err, obligationdomain.ErrInvalidTransition),
		errors.Is(err, obligationdomain.ErrSaleNotClosed):
		return err.Error()
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, agencydomain.ErrContractNotFound),
		errors.Is(err, agencydomain.ErrSaleNotFound),
		errors.Is(err, agencydomain.ErrSellerNotFound),
		errors.Is(err, agencydomain.ErrClientNotFound),
		errors.Is(err, obligationdomain.ErrObligationNotFound),
		errors.Is(err, commissiondomain.ErrCommissionNotFound),
		db.IsNotFound(err):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, agencydomain.ErrContractNotFound),
		errors.Is(err, agencydomain.ErrSaleNotFound),
		errors.Is(err, agencydomain.ErrSellerNotFound),
		errors.Is(err, agencydomain.ErrClientNotFound),
		errors.Is(err, obligationdomain.ErrObligationNotFound),
		errors.Is(err, commissiondomain.ErrCommissionNotFound):
		return err.Error()
	default:
		return "not found"
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if field, ok := strings.CutSuffix(code, "_required"); ok {
		return field
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch {
	case code == "invalid_request":
		return "invalid request"
	case strings.HasSuffix(code, "_required"):
		return "required"
	default:
		return "invalid value"
	}
}
