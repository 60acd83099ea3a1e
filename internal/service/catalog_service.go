package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/events"
	"taphouse-backend/internal/repository"
	"taphouse-backend/internal/store"
)

const tapOverviewCacheKey = "taps:overview"

// CatalogService beverages, kegs and tap/keg wiring
type CatalogService interface {
	CreateBeverage(ctx context.Context, req BeverageRequest) (*domain.Beverage, error)
	UpdateBeveragePrice(ctx context.Context, beverageID string, price decimal.Decimal) (*domain.Beverage, error)
	ListBeverages(ctx context.Context) ([]domain.Beverage, error)

	CreateKeg(ctx context.Context, req KegRequest) (*domain.Keg, error)
	ListKegs(ctx context.Context, status string) ([]domain.Keg, error)

	CreateTap(ctx context.Context, tapID int, displayName string) (*domain.Tap, error)
	ListTaps(ctx context.Context) ([]TapOverview, error)
	AttachKeg(ctx context.Context, tapID int, kegID string) (*domain.Tap, error)
	DetachKeg(ctx context.Context, tapID int) (*domain.Tap, error)
}

// BeverageRequest catalog entry input; Price is currency per liter
type BeverageRequest struct {
	Name    string
	Brewery string
	Style   string
	ABV     string
	Price   decimal.Decimal
}

// KegRequest new keg input
type KegRequest struct {
	BeverageID      string
	InitialVolumeML int
	PurchasePrice   decimal.Decimal
}

// TapOverview tap joined with its keg and beverage for the dashboard
type TapOverview struct {
	TapID           int     `json:"tap_id"`
	DisplayName     string  `json:"display_name"`
	Status          string  `json:"status"`
	KegID           *string `json:"keg_id,omitempty"`
	BeverageName    string  `json:"beverage_name,omitempty"`
	CurrentVolumeML int     `json:"current_volume_ml"`
	PriceCentsPerL  int64   `json:"sell_price_cents_per_liter"`
}

type catalogService struct {
	db            *sql.DB
	beveragesRepo *repository.PostgresBeveragesRepository
	kegsRepo      *repository.PostgresKegsRepository
	tapsRepo      *repository.PostgresTapsRepository
	kv            store.KV
	publisher     events.Publisher
	logger        *zap.Logger
}

// NewCatalogService creates the catalog service
func NewCatalogService(
	db *sql.DB,
	beveragesRepo *repository.PostgresBeveragesRepository,
	kegsRepo *repository.PostgresKegsRepository,
	tapsRepo *repository.PostgresTapsRepository,
	kv store.KV,
	publisher events.Publisher,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		db:            db,
		beveragesRepo: beveragesRepo,
		kegsRepo:      kegsRepo,
		tapsRepo:      tapsRepo,
		kv:            kv,
		publisher:     publisher,
		logger:        logger,
	}
}

func (s *catalogService) CreateBeverage(ctx context.Context, req BeverageRequest) (*domain.Beverage, error) {
	if req.Name == "" {
		return nil, NewValidation("name", "must not be empty")
	}
	priceCents := domain.CentsFromDecimal(req.Price)
	if priceCents <= 0 {
		return nil, NewValidation("sell_price", "must be positive")
	}
	beverage := &domain.Beverage{
		Name:                   req.Name,
		Brewery:                nullString(req.Brewery),
		Style:                  nullString(req.Style),
		ABV:                    nullString(req.ABV),
		SellPriceCentsPerLiter: priceCents,
	}
	created, err := s.beveragesRepo.Insert(ctx, beverage)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, NewConflict("name_taken", "a beverage with this name already exists")
		}
		return nil, err
	}
	return created, nil
}

func (s *catalogService) UpdateBeveragePrice(ctx context.Context, beverageID string, price decimal.Decimal) (*domain.Beverage, error) {
	priceCents := domain.CentsFromDecimal(price)
	if priceCents <= 0 {
		return nil, NewValidation("sell_price", "must be positive")
	}
	if err := s.beveragesRepo.UpdatePrice(ctx, beverageID, priceCents); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.invalidateOverview(ctx)
	return s.beveragesRepo.GetByID(ctx, beverageID)
}

func (s *catalogService) ListBeverages(ctx context.Context) ([]domain.Beverage, error) {
	return s.beveragesRepo.List(ctx)
}

func (s *catalogService) CreateKeg(ctx context.Context, req KegRequest) (*domain.Keg, error) {
	if req.InitialVolumeML <= 0 {
		return nil, NewValidation("initial_volume_ml", "must be positive")
	}
	if _, err := s.beveragesRepo.GetByID(ctx, req.BeverageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.kegsRepo.Insert(ctx, req.BeverageID, req.InitialVolumeML, domain.CentsFromDecimal(req.PurchasePrice))
}

func (s *catalogService) ListKegs(ctx context.Context, status string) ([]domain.Keg, error) {
	return s.kegsRepo.List(ctx, status)
}

func (s *catalogService) CreateTap(ctx context.Context, tapID int, displayName string) (*domain.Tap, error) {
	if tapID <= 0 {
		return nil, NewValidation("tap_id", "must be positive")
	}
	if displayName == "" {
		displayName = fmt.Sprintf("Tap %d", tapID)
	}
	tap, err := s.tapsRepo.Insert(ctx, tapID, displayName)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, NewConflict("tap_exists", "tap position already registered")
		}
		return nil, err
	}
	s.invalidateOverview(ctx)
	return tap, nil
}

// ListTaps serves the dashboard overview through a short-lived cache. A
// miss or a stale unmarshal falls back to SQL; the cache is never
// correctness-bearing.
func (s *catalogService) ListTaps(ctx context.Context) ([]TapOverview, error) {
	if cached, err := s.kv.Get(ctx, tapOverviewCacheKey); err == nil {
		var overview []TapOverview
		if json.Unmarshal([]byte(cached), &overview) == nil {
			return overview, nil
		}
	}

	overview, err := s.buildOverview(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(overview); err == nil {
		if err := s.kv.Set(ctx, tapOverviewCacheKey, string(data), 10*time.Second); err != nil {
			s.logger.Debug("failed to cache tap overview", zap.Error(err))
		}
	}
	return overview, nil
}

// AttachKeg wires a keg onto a tap: tap goes active, keg goes in_use.
// Re-attaching the same keg is idempotent.
func (s *catalogService) AttachKeg(ctx context.Context, tapID int, kegID string) (*domain.Tap, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tap, err := s.tapsRepo.WithTx(tx).GetByID(ctx, tapID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if tap.KegID.Valid {
		if tap.KegID.String == kegID {
			tx.Rollback()
			return tap, nil
		}
		return nil, NewConflict("tap_occupied", "detach the current keg first")
	}

	keg, err := s.kegsRepo.WithTx(tx).GetByID(ctx, kegID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if keg.Status == domain.KegEmpty {
		return nil, NewConflict("keg_empty", "cannot attach an empty keg")
	}

	if err := s.tapsRepo.WithTx(tx).AssignKeg(ctx, tapID, kegID); err != nil {
		if err == sql.ErrNoRows {
			return nil, NewConflict("tap_occupied", "detach the current keg first")
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, NewConflict("keg_in_use", "keg is already attached to another tap")
		}
		return nil, err
	}
	if err := s.kegsRepo.WithTx(tx).SetStatus(ctx, kegID, domain.KegInUse); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.invalidateOverview(ctx)
	s.publisher.TapState(tapID, domain.TapActive)
	s.logger.Info("keg attached", zap.Int("tap_id", tapID), zap.String("keg_id", kegID))
	return s.tapsRepo.GetByID(ctx, tapID)
}

func (s *catalogService) DetachKeg(ctx context.Context, tapID int) (*domain.Tap, error) {
	tap, err := s.tapsRepo.GetByID(ctx, tapID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if tap.Status == domain.TapProcessingSync {
		return nil, NewConflict(ReasonPendingPours, "tap has an unsettled lock cycle")
	}
	if err := s.tapsRepo.UnassignKeg(ctx, tapID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.invalidateOverview(ctx)
	s.publisher.TapState(tapID, domain.TapLocked)
	return s.tapsRepo.GetByID(ctx, tapID)
}

func (s *catalogService) buildOverview(ctx context.Context) ([]TapOverview, error) {
	taps, err := s.tapsRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	overview := make([]TapOverview, 0, len(taps))
	for _, tap := range taps {
		item := TapOverview{
			TapID:       tap.TapID,
			DisplayName: tap.DisplayName,
			Status:      tap.Status,
		}
		if tap.KegID.Valid {
			kegID := tap.KegID.String
			item.KegID = &kegID
			if pc, err := s.tapsRepo.GetPourContext(ctx, tap.TapID); err == nil {
				item.BeverageName = pc.BeverageName
				item.CurrentVolumeML = pc.KegVolumeML
				item.PriceCentsPerL = pc.PriceCentsPerLiter
			}
		}
		overview = append(overview, item)
	}
	return overview, nil
}

func (s *catalogService) invalidateOverview(ctx context.Context) {
	if err := s.kv.Delete(ctx, tapOverviewCacheKey); err != nil && err != store.ErrMiss {
		s.logger.Debug("failed to invalidate tap overview cache", zap.Error(err))
	}
}
