package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	"github.com/smallbiznis/obligo/internal/audit/masking"
	obscontext "github.com/smallbiznis/obligo/internal/observability/context"
	"github.com/smallbiznis/obligo/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	if strings.TrimSpace(string(entry.Action)) == "" {
		return auditdomain.ErrInvalidAction
	}
	if tx == nil {
		tx = s.db
	}

	log := s.build(ctx, entry)
	if err := s.repo.Insert(ctx, tx, log); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", log.Action),
			zap.String("target_type", log.TargetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) build(ctx context.Context, entry auditdomain.Entry) *auditdomain.AuditLog {
	actorType, actorID := entry.ActorType, strings.TrimSpace(entry.ActorID)
	if actorType == "" {
		ctxType, ctxID := obscontext.ActorFromContext(ctx)
		actorType = auditdomain.ActorType(ctxType)
		if actorID == "" {
			actorID = ctxID
		}
	}
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}

	targetType := string(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	metadata := masking.MaskSensitive(entry.Metadata)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if runID := obscontext.RunIDFromContext(ctx); runID != "" {
		metadata["run_id"] = runID
	}

	return &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    optional(actorID),
		Action:     strings.TrimSpace(string(entry.Action)),
		TargetType: targetType,
		TargetID:   optional(entry.TargetID),
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  time.Now().UTC(),
	}
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	afterID, err := cursorID(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		AfterID:    afterID,
		Limit:      limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, pageInfo := pagination.Page(items, limit, func(item *auditdomain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	resp := auditdomain.ListAuditLogResponse{
		PageInfo:  pageInfo,
		AuditLogs: make([]auditdomain.AuditLog, 0, len(items)),
	}
	for _, item := range items {
		if item != nil {
			resp.AuditLogs = append(resp.AuditLogs, *item)
		}
	}
	return resp, nil
}

func cursorID(token string) (snowflake.ID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return 0, auditdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return 0, auditdomain.ErrInvalidPageToken
	}
	return id, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
