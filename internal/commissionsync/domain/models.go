package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type ItemStatus string

const (
	ItemCreated  ItemStatus = "created"
	ItemExisting ItemStatus = "existing"
	ItemFailed   ItemStatus = "failed"
)

type SyncItem struct {
	SaleID       snowflake.ID  `json:"sale_id"`
	CommissionID *snowflake.ID `json:"commission_id,omitempty"`
	Status       ItemStatus    `json:"status"`
	Error        string        `json:"error,omitempty"`
}

type SyncResult struct {
	Scanned int        `json:"scanned"`
	Created int        `json:"created"`
	Failed  int        `json:"failed"`
	Items   []SyncItem `json:"items"`
}

type Service interface {
	// SyncMissingCommissions creates the commission of every closed sale that
	// has none. Running it again creates nothing new.
	SyncMissingCommissions(ctx context.Context) (*SyncResult, error)
}
