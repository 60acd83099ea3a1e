package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/repository"
)

// ShiftService shift lifecycle and the pour-operation gate
type ShiftService interface {
	// EnsureOpen returns the open shift inside the caller's transaction or
	// a shift_closed denial
	EnsureOpen(ctx context.Context, tx *sql.Tx) (*domain.Shift, error)

	Open(ctx context.Context, openedBy string) (*domain.Shift, error)
	Close(ctx context.Context, closedBy string) (*domain.Shift, error)
	Current(ctx context.Context) (*domain.Shift, error)
}

type shiftService struct {
	db         *sql.DB
	shiftsRepo *repository.PostgresShiftsRepository
	visitsRepo *repository.PostgresVisitsRepository
	poursRepo  *repository.PostgresPoursRepository
	auditor    *Auditor
	logger     *zap.Logger
}

// NewShiftService creates the shift service
func NewShiftService(
	db *sql.DB,
	shiftsRepo *repository.PostgresShiftsRepository,
	visitsRepo *repository.PostgresVisitsRepository,
	poursRepo *repository.PostgresPoursRepository,
	auditor *Auditor,
	logger *zap.Logger,
) ShiftService {
	return &shiftService{
		db:         db,
		shiftsRepo: shiftsRepo,
		visitsRepo: visitsRepo,
		poursRepo:  poursRepo,
		auditor:    auditor,
		logger:     logger,
	}
}

func (s *shiftService) EnsureOpen(ctx context.Context, tx *sql.Tx) (*domain.Shift, error) {
	shift, err := s.shiftsRepo.WithTx(tx).GetOpen(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, NewDenial(ReasonShiftClosed, nil)
		}
		return nil, err
	}
	return shift, nil
}

func (s *shiftService) Open(ctx context.Context, openedBy string) (*domain.Shift, error) {
	shift, err := s.shiftsRepo.Insert(ctx, nullString(openedBy))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, NewConflict(ReasonShiftOpen, "a shift is already open")
		}
		return nil, err
	}

	// Best-effort audit; the open itself already committed.
	tx, err := s.db.BeginTx(ctx, nil)
	if err == nil {
		defer tx.Rollback()
		if err := s.auditor.Append(ctx, tx, openedBy, AuditShiftOpened, "shift", shift.ShiftID, nil); err == nil {
			tx.Commit()
		}
	}

	s.logger.Info("shift opened", zap.String("shift_id", shift.ShiftID))
	return shift, nil
}

func (s *shiftService) Close(ctx context.Context, closedBy string) (*domain.Shift, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	shift, err := s.shiftsRepo.WithTx(tx).GetOpen(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, NewConflict(ReasonShiftClosed, "no open shift")
		}
		return nil, err
	}

	anyVisits, err := s.visitsRepo.WithTx(tx).AnyActive(ctx)
	if err != nil {
		return nil, err
	}
	if anyVisits {
		return nil, NewConflict(ReasonActiveVisits, "close all visits before closing the shift")
	}

	anyPending, err := s.poursRepo.WithTx(tx).AnyPending(ctx)
	if err != nil {
		return nil, err
	}
	if anyPending {
		return nil, NewConflict(ReasonPendingPours, "unsettled pours remain; reconcile or force-unlock first")
	}

	if err := s.shiftsRepo.WithTx(tx).Close(ctx, shift.ShiftID, nullString(closedBy)); err != nil {
		return nil, err
	}
	if err := s.auditor.Append(ctx, tx, closedBy, AuditShiftClosed, "shift", shift.ShiftID, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("shift closed", zap.String("shift_id", shift.ShiftID))
	return s.shiftsRepo.GetByID(ctx, shift.ShiftID)
}

func (s *shiftService) Current(ctx context.Context) (*domain.Shift, error) {
	shift, err := s.shiftsRepo.GetOpen(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}
