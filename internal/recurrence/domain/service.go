package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// GenerateFutureAccounts materialises the receivables of a recurring
	// contract and their commissions. Existing periods are left untouched.
	GenerateFutureAccounts(ctx context.Context, contractID snowflake.ID) (*GenerateResult, error)
	// CancelFutureAccounts cancels the pending receivables of a contract and
	// the pending payables of its commissions. Confirmed rows survive.
	CancelFutureAccounts(ctx context.Context, contractID snowflake.ID) (*CancelResult, error)
	ProcessDueRecurrences(ctx context.Context, req ProcessRequest) (*ProcessResult, error)
	ProcessGenericRecurringTemplates(ctx context.Context) (*ProcessResult, error)
}
