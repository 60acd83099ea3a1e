package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/repository"
)

// Keys operators may change at runtime
var editableStateKeys = map[string]bool{
	domain.StateMinStartML:            true,
	domain.StateSafetyML:              true,
	domain.StateAllowedOverdraftCents: true,
	domain.StateEmergencyStop:         true,
}

// SystemService runtime policy knobs and operational queries
type SystemService interface {
	ListStates(ctx context.Context) ([]domain.SystemState, error)
	SetState(ctx context.Context, key, value, actor string) error
	ListAudit(ctx context.Context, action, targetEntity string, limit, offset int) ([]domain.AuditEntry, error)
	ListPoursForVisit(ctx context.Context, visitID string) ([]domain.Pour, error)
	ListRecentPours(ctx context.Context, limit int) ([]domain.Pour, error)
}

type systemService struct {
	db        *sql.DB
	stateRepo *repository.PostgresSystemStateRepository
	auditRepo *repository.PostgresAuditRepository
	poursRepo *repository.PostgresPoursRepository
	auditor   *Auditor
	logger    *zap.Logger
}

// NewSystemService creates the system service
func NewSystemService(
	db *sql.DB,
	stateRepo *repository.PostgresSystemStateRepository,
	auditRepo *repository.PostgresAuditRepository,
	poursRepo *repository.PostgresPoursRepository,
	auditor *Auditor,
	logger *zap.Logger,
) SystemService {
	return &systemService{
		db:        db,
		stateRepo: stateRepo,
		auditRepo: auditRepo,
		poursRepo: poursRepo,
		auditor:   auditor,
		logger:    logger,
	}
}

func (s *systemService) ListStates(ctx context.Context) ([]domain.SystemState, error) {
	return s.stateRepo.ListAll(ctx)
}

func (s *systemService) SetState(ctx context.Context, key, value, actor string) error {
	if !editableStateKeys[key] {
		return NewValidation("key", "unknown system state key")
	}
	if key == domain.StateEmergencyStop {
		if _, err := strconv.ParseBool(value); err != nil {
			return NewValidation("value", "must be a boolean")
		}
	} else {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return NewValidation("value", "must be a non-negative integer")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.stateRepo.WithTx(tx).Set(ctx, key, value); err != nil {
		return err
	}
	if key == domain.StateEmergencyStop {
		err = s.auditor.Append(ctx, tx, actor, AuditEmergencyStop, "system_state", key, map[string]interface{}{
			"value": value,
		})
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("system state changed", zap.String("key", key), zap.String("value", value))
	return nil
}

func (s *systemService) ListAudit(ctx context.Context, action, targetEntity string, limit, offset int) ([]domain.AuditEntry, error) {
	return s.auditRepo.List(ctx, action, targetEntity, limit, offset)
}

func (s *systemService) ListPoursForVisit(ctx context.Context, visitID string) ([]domain.Pour, error) {
	return s.poursRepo.ListByVisit(ctx, visitID)
}

func (s *systemService) ListRecentPours(ctx context.Context, limit int) ([]domain.Pour, error) {
	return s.poursRepo.ListRecent(ctx, limit)
}
