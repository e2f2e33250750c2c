package authorization

import (
	"context"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ObjectRecurrence     = "recurrence"
	ObjectReconciliation = "reconciliation"
	ObjectObligation     = "obligation"
	ObjectCommission     = "commission"
	ObjectLifecycle      = "lifecycle"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionRecurrenceGenerate = "recurrence.generate"
	ActionRecurrenceCancel   = "recurrence.cancel"
	ActionRecurrenceProcess  = "recurrence.process"

	ActionReconciliationSweep  = "reconciliation.sweep"
	ActionReconciliationDetect = "reconciliation.detect"
	ActionReconciliationRepair = "reconciliation.repair"

	ActionObligationView    = "obligation.view"
	ActionObligationConfirm = "obligation.confirm"
	ActionObligationCancel  = "obligation.cancel"
	ActionObligationDelete  = "obligation.delete"

	ActionCommissionCreate = "commission.create"
	ActionCommissionDelete = "commission.delete"
	ActionCommissionSync   = "commission.sync"

	ActionLifecycleSaleSaved     = "lifecycle.sale_saved"
	ActionLifecycleContractSaved = "lifecycle.contract_saved"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleSystem   = "role:system"
	RoleOperator = "role:operator"
	RoleViewer   = "role:viewer"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(adapter *gormadapter.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, actorType, actorID, err := resolveActor(actor)
	if err != nil {
		s.auditDecision(ctx, auditdomain.ActionAuthorizationDenied, actorType, actorID, object, action)
		return err
	}

	if err := s.ensureGrouping(actor, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor", actor),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDecision(ctx, auditdomain.ActionAuthorizationDenied, actorType, actorID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditDecision(ctx, auditdomain.ActionAuthorizationGranted, actorType, actorID, object, action)
	}
	return nil
}

func resolveActor(actor string) (string, string, *string, error) {
	if actor == "system" {
		return RoleSystem, "system", nil, nil
	}
	role, name, ok := strings.Cut(actor, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", nil, ErrInvalidActor
	}
	switch role {
	case "operator":
		return RoleOperator, "operator", &name, nil
	case "viewer":
		return RoleViewer, "viewer", &name, nil
	default:
		return "", role, &name, ErrInvalidActor
	}
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDecision(ctx context.Context, decision auditdomain.Action, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		ActorType:  auditdomain.ActorType(actorType),
		Action:     decision,
		TargetType: auditdomain.TargetAuthorization,
		TargetID:   object + ":" + action,
		Metadata: map[string]any{
			"object":  object,
			"action":  action,
			"subject": actorSubject(actorType, actorID),
		},
	}
	if actorID != nil {
		entry.ActorID = *actorID
	}
	_ = s.auditSvc.Record(ctx, nil, entry)
}

func actorSubject(actorType string, actorID *string) string {
	if actorType == "system" {
		return "system"
	}
	if actorID != nil && strings.TrimSpace(*actorID) != "" {
		return fmt.Sprintf("%s:%s", actorType, strings.TrimSpace(*actorID))
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionObligationDelete, ActionCommissionDelete, ActionReconciliationRepair, ActionRecurrenceCancel:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	writeActions := [][]string{
		{ObjectRecurrence, ActionRecurrenceGenerate},
		{ObjectRecurrence, ActionRecurrenceCancel},
		{ObjectRecurrence, ActionRecurrenceProcess},
		{ObjectReconciliation, ActionReconciliationSweep},
		{ObjectReconciliation, ActionReconciliationDetect},
		{ObjectReconciliation, ActionReconciliationRepair},
		{ObjectObligation, ActionObligationView},
		{ObjectObligation, ActionObligationConfirm},
		{ObjectObligation, ActionObligationCancel},
		{ObjectObligation, ActionObligationDelete},
		{ObjectCommission, ActionCommissionCreate},
		{ObjectCommission, ActionCommissionDelete},
		{ObjectCommission, ActionCommissionSync},
		{ObjectLifecycle, ActionLifecycleSaleSaved},
		{ObjectLifecycle, ActionLifecycleContractSaved},
		{ObjectAuditLog, ActionAuditLogView},
	}

	policies := make([][]string, 0, len(writeActions)*2+3)
	for _, item := range writeActions {
		policies = append(policies,
			[]string{RoleSystem, item[0], item[1]},
			[]string{RoleOperator, item[0], item[1]},
		)
	}
	policies = append(policies,
		[]string{RoleViewer, ObjectReconciliation, ActionReconciliationDetect},
		[]string{RoleViewer, ObjectObligation, ActionObligationView},
		[]string{RoleViewer, ObjectAuditLog, ActionAuditLogView},
	)

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
