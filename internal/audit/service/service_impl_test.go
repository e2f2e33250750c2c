package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	"github.com/smallbiznis/obligo/internal/audit/repository"
	obscontext "github.com/smallbiznis/obligo/internal/observability/context"
	"github.com/smallbiznis/obligo/internal/storetest"
	"github.com/smallbiznis/obligo/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) auditdomain.Service {
	t.Helper()
	return NewService(Params{
		DB:    storetest.NewDB(t),
		Log:   zaptest.NewLogger(t),
		GenID: storetest.NewNode(t),
		Repo:  repository.Provide(),
	})
}

func TestRecordResolvesActorFromContext(t *testing.T) {
	svc := newService(t)
	ctx := obscontext.WithActor(context.Background(), "operator", "7")
	ctx = obscontext.WithRunID(ctx, "run-1")

	require.NoError(t, svc.Record(ctx, nil, auditdomain.Entry{
		Action:     auditdomain.ActionCommissionDeleted,
		TargetType: auditdomain.TargetCommission,
		TargetID:   "99",
		Metadata:   map[string]any{"api_token": "abcdef123456", "amount": "10.00"},
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "operator", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "7", *entry.ActorID)
	assert.Equal(t, "commission.deleted", entry.Action)
	assert.Equal(t, "****3456", entry.Metadata["api_token"])
	assert.Equal(t, "run-1", entry.Metadata["run_id"])
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Record(context.Background(), nil,
		auditdomain.ObligationEntry(auditdomain.ActionOrphanDeleted, 5, nil)))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{TargetType: "obligation"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "system", resp.AuditLogs[0].ActorType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
}

func TestRecordRequiresAction(t *testing.T) {
	svc := newService(t)
	err := svc.Record(context.Background(), nil, auditdomain.Entry{TargetType: auditdomain.TargetContract})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for _, id := range []snowflake.ID{11, 12, 13} {
		require.NoError(t, svc.Record(ctx, nil,
			auditdomain.ObligationEntry(auditdomain.ActionObligationDeleted, id, nil)))
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Greater(t, int64(first.AuditLogs[0].ID), int64(first.AuditLogs[1].ID))

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
