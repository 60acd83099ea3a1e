package service

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/repository"
)

// Audit actions
const (
	AuditAuthorizeGranted = "authorize_granted"
	AuditAuthorizeDenied  = "authorize_denied"
	AuditSyncSettled      = "sync_settled"
	AuditSyncRejected     = "sync_rejected"
	AuditSyncConflict     = "sync_conflict"
	AuditSyncAuditOnly    = "sync_audit_only"
	AuditReconcileDone    = "reconcile_done"
	AuditForceUnlock      = "force_unlock"
	AuditLostCardReport   = "lost_card_reported"
	AuditLostCardRestore  = "lost_card_restored"
	AuditShiftOpened      = "shift_opened"
	AuditShiftClosed      = "shift_closed"
	AuditEmergencyStop    = "emergency_stop_toggled"
)

// Auditor writes audit entries inside the caller's transaction. A decision
// and its audit record commit or roll back together.
type Auditor struct {
	repo   *repository.PostgresAuditRepository
	logger *zap.Logger
}

// NewAuditor creates the auditor
func NewAuditor(repo *repository.PostgresAuditRepository, logger *zap.Logger) *Auditor {
	return &Auditor{repo: repo, logger: logger}
}

// Append writes one entry through the given transaction. Details are
// marshaled to JSON; a nil map writes an empty object.
func (a *Auditor) Append(ctx context.Context, tx *sql.Tx, actor, action, targetEntity, targetID string, details map[string]interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	entry := &domain.AuditEntry{
		Action:       action,
		ActorID:      nullString(actor),
		TargetEntity: nullString(targetEntity),
		TargetID:     nullString(targetID),
		Details:      sql.NullString{String: string(raw), Valid: true},
	}
	if err := a.repo.WithTx(tx).Append(ctx, entry); err != nil {
		a.logger.Error("failed to append audit entry",
			zap.String("action", action),
			zap.Error(err))
		return err
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
