package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/repository"
)

// GuestService guest records, top-ups and history
type GuestService interface {
	Create(ctx context.Context, req CreateGuestRequest) (*domain.Guest, error)
	Update(ctx context.Context, guestID string, req CreateGuestRequest) (*domain.Guest, error)
	GetByID(ctx context.Context, guestID string) (*domain.Guest, error)
	List(ctx context.Context, search string, limit, offset int) ([]domain.Guest, error)
	TopUp(ctx context.Context, req TopUpRequest) (*domain.Guest, error)
	History(ctx context.Context, guestID string, limit int) (*GuestHistory, error)
}

// CreateGuestRequest guest registration/update input
type CreateGuestRequest struct {
	LastName    string `json:"last_name"`
	FirstName   string `json:"first_name"`
	Patronymic  string `json:"patronymic"`
	PhoneNumber string `json:"phone_number"`
	DateOfBirth string `json:"date_of_birth"` // YYYY-MM-DD
	IDDocument  string `json:"id_document"`
	IsActive    *bool  `json:"is_active"`
}

// TopUpRequest balance top-up input; Amount is a decimal currency string
type TopUpRequest struct {
	GuestID       string
	Amount        decimal.Decimal
	PaymentMethod string
	VisitID       string
	Actor         string
}

// GuestHistory combined pour and transaction history
type GuestHistory struct {
	Guest        *domain.Guest        `json:"guest"`
	Pours        []domain.Pour        `json:"pours"`
	Transactions []domain.Transaction `json:"transactions"`
}

type guestService struct {
	db        *sql.DB
	repo      *repository.PostgresGuestsRepository
	txRepo    *repository.PostgresTransactionsRepository
	poursRepo *repository.PostgresPoursRepository
	logger    *zap.Logger
}

// NewGuestService creates the guest service
func NewGuestService(
	db *sql.DB,
	repo *repository.PostgresGuestsRepository,
	txRepo *repository.PostgresTransactionsRepository,
	poursRepo *repository.PostgresPoursRepository,
	logger *zap.Logger,
) GuestService {
	return &guestService{db: db, repo: repo, txRepo: txRepo, poursRepo: poursRepo, logger: logger}
}

func (s *guestService) Create(ctx context.Context, req CreateGuestRequest) (*domain.Guest, error) {
	guest, err := guestFromRequest(req)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Insert(ctx, guest)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, NewConflict("phone_taken", "a guest with this phone number already exists")
		}
		return nil, err
	}
	s.logger.Info("guest created", zap.String("guest_id", created.GuestID))
	return created, nil
}

func (s *guestService) Update(ctx context.Context, guestID string, req CreateGuestRequest) (*domain.Guest, error) {
	guest, err := guestFromRequest(req)
	if err != nil {
		return nil, err
	}
	guest.GuestID = guestID
	if req.IsActive == nil {
		existing, err := s.GetByID(ctx, guestID)
		if err != nil {
			return nil, err
		}
		guest.IsActive = existing.IsActive
	}
	if err := s.repo.Update(ctx, guest); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, NewConflict("phone_taken", "a guest with this phone number already exists")
		}
		return nil, err
	}
	return s.GetByID(ctx, guestID)
}

func (s *guestService) GetByID(ctx context.Context, guestID string) (*domain.Guest, error) {
	guest, err := s.repo.GetByID(ctx, guestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return guest, nil
}

func (s *guestService) List(ctx context.Context, search string, limit, offset int) ([]domain.Guest, error) {
	return s.repo.List(ctx, search, limit, offset)
}

// TopUp credits the balance and records the immutable transaction row in
// one database transaction
func (s *guestService) TopUp(ctx context.Context, req TopUpRequest) (*domain.Guest, error) {
	amountCents := domain.CentsFromDecimal(req.Amount)
	if amountCents <= 0 {
		return nil, NewValidation("amount", "must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.repo.WithTx(tx).GetByID(ctx, req.GuestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	_, err = s.txRepo.WithTx(tx).Insert(ctx, &domain.Transaction{
		GuestID:       req.GuestID,
		VisitID:       nullString(req.VisitID),
		AmountCents:   amountCents,
		Type:          repository.TxTopUp,
		PaymentMethod: nullString(req.PaymentMethod),
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithTx(tx).CreditBalance(ctx, req.GuestID, amountCents); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("balance topped up",
		zap.String("guest_id", req.GuestID),
		zap.Int64("amount_cents", amountCents))
	return s.GetByID(ctx, req.GuestID)
}

func (s *guestService) History(ctx context.Context, guestID string, limit int) (*GuestHistory, error) {
	guest, err := s.GetByID(ctx, guestID)
	if err != nil {
		return nil, err
	}
	pours, err := s.poursRepo.ListByGuest(ctx, guestID, limit)
	if err != nil {
		return nil, err
	}
	transactions, err := s.txRepo.ListByGuest(ctx, guestID, limit)
	if err != nil {
		return nil, err
	}
	return &GuestHistory{Guest: guest, Pours: pours, Transactions: transactions}, nil
}

func guestFromRequest(req CreateGuestRequest) (*domain.Guest, error) {
	if req.LastName == "" || req.FirstName == "" {
		return nil, NewValidation("name", "last_name and first_name are required")
	}
	if req.PhoneNumber == "" {
		return nil, NewValidation("phone_number", "must not be empty")
	}
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		return nil, NewValidation("date_of_birth", "must be YYYY-MM-DD")
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	return &domain.Guest{
		LastName:    req.LastName,
		FirstName:   req.FirstName,
		Patronymic:  nullString(req.Patronymic),
		PhoneNumber: req.PhoneNumber,
		DateOfBirth: dob,
		IDDocument:  req.IDDocument,
		IsActive:    isActive,
	}, nil
}
