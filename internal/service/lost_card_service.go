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

// LostCardService the lost-card blocklist. Reporting is idempotent;
// restoring deletes the record so the card authorizes again.
type LostCardService interface {
	Report(ctx context.Context, req ReportLostCardRequest) (*domain.LostCard, error)
	IsLost(ctx context.Context, cardUID string) (bool, error)
	Restore(ctx context.Context, cardUID, actor string) error
	List(ctx context.Context) ([]domain.LostCard, error)
}

// ReportLostCardRequest lost-card report input
type ReportLostCardRequest struct {
	CardUID string
	Reason  string
	Comment string
	Actor   string
	VisitID string
	GuestID string
}

type lostCardService struct {
	db      *sql.DB
	repo    *repository.PostgresLostCardsRepository
	auditor *Auditor
	logger  *zap.Logger
}

// NewLostCardService creates the lost card service
func NewLostCardService(db *sql.DB, repo *repository.PostgresLostCardsRepository, auditor *Auditor, logger *zap.Logger) LostCardService {
	return &lostCardService{db: db, repo: repo, auditor: auditor, logger: logger}
}

func (s *lostCardService) Report(ctx context.Context, req ReportLostCardRequest) (*domain.LostCard, error) {
	normalized := domain.NormalizeCardUID(req.CardUID)
	if normalized == "" {
		return nil, NewValidation("card_uid", "must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	repo := s.repo.WithTx(tx)

	record := &domain.LostCard{
		CardUID:    normalized,
		ReportedBy: nullString(req.Actor),
		Reason:     nullString(req.Reason),
		Comment:    nullString(req.Comment),
		VisitID:    nullString(req.VisitID),
		GuestID:    nullString(req.GuestID),
	}
	created, err := repo.Insert(ctx, record)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Already reported: idempotent, return the existing record.
			tx.Rollback()
			return s.repo.GetByUID(ctx, normalized)
		}
		return nil, err
	}

	err = s.auditor.Append(ctx, tx, req.Actor, AuditLostCardReport, "card", normalized, map[string]interface{}{
		"reason":  req.Reason,
		"comment": req.Comment,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("card reported lost", zap.String("card_uid", normalized))
	return created, nil
}

func (s *lostCardService) IsLost(ctx context.Context, cardUID string) (bool, error) {
	return s.repo.Exists(ctx, cardUID)
}

func (s *lostCardService) Restore(ctx context.Context, cardUID, actor string) error {
	normalized := domain.NormalizeCardUID(cardUID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.WithTx(tx).Delete(ctx, normalized); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	if err := s.auditor.Append(ctx, tx, actor, AuditLostCardRestore, "card", normalized, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("card restored", zap.String("card_uid", normalized))
	return nil
}

func (s *lostCardService) List(ctx context.Context) ([]domain.LostCard, error) {
	return s.repo.List(ctx)
}
