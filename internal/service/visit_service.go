package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/events"
	"taphouse-backend/internal/policy"
	"taphouse-backend/internal/repository"
)

// VisitService visit lifecycle plus the tap-lock coordinator: pour
// authorization, manual reconciliation and force unlock
type VisitService interface {
	Open(ctx context.Context, req OpenVisitRequest) (*domain.Visit, error)
	Close(ctx context.Context, req CloseVisitRequest) (*domain.Visit, error)
	AssignCard(ctx context.Context, visitID, cardUID, actor string) (*domain.Visit, error)
	GetByID(ctx context.Context, visitID string) (*domain.Visit, error)
	GetActiveByCard(ctx context.Context, cardUID string) (*domain.Visit, error)
	GetActiveByGuest(ctx context.Context, guestID string) (*domain.Visit, error)
	ListActive(ctx context.Context) ([]domain.VisitListItem, error)

	AuthorizePour(ctx context.Context, req AuthorizePourRequest) (*AuthorizePourResponse, error)
	ForceUnlock(ctx context.Context, req ForceUnlockRequest) (*domain.Visit, error)
	ReconcilePour(ctx context.Context, req ReconcilePourRequest) (*domain.Visit, error)
}

// OpenVisitRequest open-visit input; CardUID is optional
type OpenVisitRequest struct {
	GuestID string
	CardUID string
	Actor   string
}

// CloseVisitRequest close-visit input
type CloseVisitRequest struct {
	VisitID      string
	Reason       string
	CardReturned bool
	Actor        string
}

// AuthorizePourRequest what the tap controller sends on card tap
type AuthorizePourRequest struct {
	CardUID string
	TapID   int
	Actor   string
}

// AuthorizePourResponse the clamp context the controller enforces during
// the pour
type AuthorizePourResponse struct {
	Allowed               bool      `json:"allowed"`
	VisitID               string    `json:"visit_id"`
	TapID                 int       `json:"tap_id"`
	BeverageName          string    `json:"beverage_name"`
	MaxVolumeML           int       `json:"max_volume_ml"`
	PricePerMlCents       int64     `json:"price_per_ml_cents"`
	BalanceCents          int64     `json:"balance_cents"`
	AllowedOverdraftCents int64     `json:"allowed_overdraft_cents"`
	SafetyML              int       `json:"safety_ml"`
	MinStartML            int       `json:"min_start_ml"`
	LockSetAt             time.Time `json:"lock_set_at"`
	ClientTxID            string    `json:"client_tx_id"`
}

// ForceUnlockRequest administrative lock release
type ForceUnlockRequest struct {
	VisitID string
	Reason  string
	Comment string
	Actor   string
}

// ReconcilePourRequest operator-entered settlement for a pour whose
// automatic report never arrived
type ReconcilePourRequest struct {
	VisitID     string
	TapID       int
	ShortID     string
	VolumeML    int
	AmountCents int64
	Reason      string
	Comment     string
	Actor       string
}

type visitService struct {
	db         *sql.DB
	visitsRepo *repository.PostgresVisitsRepository
	guestsRepo *repository.PostgresGuestsRepository
	poursRepo  *repository.PostgresPoursRepository
	tapsRepo   *repository.PostgresTapsRepository
	kegsRepo   *repository.PostgresKegsRepository
	cardsRepo  *repository.PostgresCardsRepository
	lostRepo   *repository.PostgresLostCardsRepository
	stateRepo  *repository.PostgresSystemStateRepository
	shifts     ShiftService
	auditor    *Auditor
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewVisitService creates the visit service
func NewVisitService(
	db *sql.DB,
	visitsRepo *repository.PostgresVisitsRepository,
	guestsRepo *repository.PostgresGuestsRepository,
	poursRepo *repository.PostgresPoursRepository,
	tapsRepo *repository.PostgresTapsRepository,
	kegsRepo *repository.PostgresKegsRepository,
	cardsRepo *repository.PostgresCardsRepository,
	lostRepo *repository.PostgresLostCardsRepository,
	stateRepo *repository.PostgresSystemStateRepository,
	shifts ShiftService,
	auditor *Auditor,
	publisher events.Publisher,
	logger *zap.Logger,
) VisitService {
	return &visitService{
		db:         db,
		visitsRepo: visitsRepo,
		guestsRepo: guestsRepo,
		poursRepo:  poursRepo,
		tapsRepo:   tapsRepo,
		kegsRepo:   kegsRepo,
		cardsRepo:  cardsRepo,
		lostRepo:   lostRepo,
		stateRepo:  stateRepo,
		shifts:     shifts,
		auditor:    auditor,
		publisher:  publisher,
		logger:     logger,
	}
}

func (s *visitService) Open(ctx context.Context, req OpenVisitRequest) (*domain.Visit, error) {
	if req.GuestID == "" {
		return nil, NewValidation("guest_id", "must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.shifts.EnsureOpen(ctx, tx); err != nil {
		return nil, err
	}

	guest, err := s.guestsRepo.WithTx(tx).GetByID(ctx, req.GuestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !guest.IsActive {
		return nil, NewDenial(ReasonGuestInactive, nil)
	}
	if !guest.IsAdult(time.Now()) {
		return nil, NewDenial(ReasonGuestUnderage, nil)
	}

	var cardUID sql.NullString
	if req.CardUID != "" {
		normalized := domain.NormalizeCardUID(req.CardUID)
		lost, err := s.lostRepo.WithTx(tx).Exists(ctx, normalized)
		if err != nil {
			return nil, err
		}
		if lost {
			return nil, NewDenial(ReasonLostCard, map[string]interface{}{"card_uid": normalized})
		}
		cardUID = sql.NullString{String: normalized, Valid: true}
	}

	visit, err := s.visitsRepo.WithTx(tx).Insert(ctx, req.GuestID, cardUID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, NewConflict(ReasonVisitActive, "guest or card already has an active visit")
		}
		return nil, err
	}

	if cardUID.Valid {
		if err := s.cardsRepo.WithTx(tx).Assign(ctx, cardUID.String, req.GuestID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("visit opened",
		zap.String("visit_id", visit.VisitID),
		zap.String("guest_id", req.GuestID))
	return visit, nil
}

func (s *visitService) Close(ctx context.Context, req CloseVisitRequest) (*domain.Visit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	visit, err := s.visitsRepo.WithTx(tx).GetByID(ctx, req.VisitID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if visit.Status != domain.VisitActive {
		return nil, NewConflict(ReasonNoActiveVisit, "visit is already closed")
	}

	pending, err := s.poursRepo.WithTx(tx).AnyPendingForVisit(ctx, req.VisitID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, NewConflict(ReasonPendingPours, "visit has unsettled pours; reconcile or force-unlock first")
	}

	if visit.Locked() {
		tapID := int(visit.ActiveTapID.Int64)
		if err := restoreTap(ctx, tx, s.tapsRepo, tapID); err != nil {
			return nil, err
		}
	}
	if visit.CardUID.Valid {
		if err := s.cardsRepo.WithTx(tx).Release(ctx, visit.CardUID.String); err != nil {
			return nil, err
		}
	}

	reason := req.Reason
	if reason == "" {
		reason = "normal"
	}
	if err := s.visitsRepo.WithTx(tx).Close(ctx, req.VisitID, reason, req.CardReturned); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("visit closed", zap.String("visit_id", req.VisitID))
	return s.visitsRepo.GetByID(ctx, req.VisitID)
}

func (s *visitService) AssignCard(ctx context.Context, visitID, cardUID, actor string) (*domain.Visit, error) {
	normalized := domain.NormalizeCardUID(cardUID)
	if normalized == "" {
		return nil, NewValidation("card_uid", "must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	visit, err := s.visitsRepo.WithTx(tx).GetByID(ctx, visitID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if visit.Status != domain.VisitActive {
		return nil, NewConflict(ReasonNoActiveVisit, "cannot assign a card to a closed visit")
	}

	lost, err := s.lostRepo.WithTx(tx).Exists(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if lost {
		return nil, NewDenial(ReasonLostCard, map[string]interface{}{"card_uid": normalized})
	}

	if err := s.visitsRepo.WithTx(tx).AssignCard(ctx, visitID, normalized); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, NewConflict(ReasonVisitActive, "card is bound to another active visit")
		}
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.cardsRepo.WithTx(tx).Assign(ctx, normalized, visit.GuestID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s.visitsRepo.GetByID(ctx, visitID)
}

func (s *visitService) GetByID(ctx context.Context, visitID string) (*domain.Visit, error) {
	visit, err := s.visitsRepo.GetByID(ctx, visitID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return visit, nil
}

func (s *visitService) GetActiveByCard(ctx context.Context, cardUID string) (*domain.Visit, error) {
	visit, err := s.visitsRepo.GetActiveByCard(ctx, domain.NormalizeCardUID(cardUID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return visit, nil
}

func (s *visitService) GetActiveByGuest(ctx context.Context, guestID string) (*domain.Visit, error) {
	visit, err := s.visitsRepo.GetActiveByGuest(ctx, guestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return visit, nil
}

func (s *visitService) ListActive(ctx context.Context) ([]domain.VisitListItem, error) {
	return s.visitsRepo.ListActive(ctx)
}

// AuthorizePour decides whether a pour may start. The whole decision,
// including the audit entry for a denial, runs in one transaction; the
// critical section is the single conditional UPDATE in AcquireTapLock.
func (s *visitService) AuthorizePour(ctx context.Context, req AuthorizePourRequest) (*AuthorizePourResponse, error) {
	normalized := domain.NormalizeCardUID(req.CardUID)
	if normalized == "" {
		return nil, NewValidation("card_uid", "must not be empty")
	}
	if req.TapID <= 0 {
		return nil, NewValidation("tap_id", "must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.shifts.EnsureOpen(ctx, tx); err != nil {
		var denial *DenialError
		if errors.As(err, &denial) {
			return nil, s.denyAuthorize(ctx, tx, req.Actor, normalized, req.TapID, denial)
		}
		return nil, err
	}

	stopped, err := s.stateRepo.WithTx(tx).EmergencyStopEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if stopped {
		return nil, s.denyAuthorize(ctx, tx, req.Actor, normalized, req.TapID, NewDenial(ReasonEmergencyStop, nil))
	}

	lost, err := s.lostRepo.WithTx(tx).Exists(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if lost {
		return nil, s.denyAuthorize(ctx, tx, req.Actor, normalized, req.TapID, NewDenial(ReasonLostCard, map[string]interface{}{"card_uid": normalized}))
	}

	visit, err := s.visitsRepo.WithTx(tx).GetActiveByCard(ctx, normalized)
	if err != nil {
		if err == sql.ErrNoRows {
			conflict := NewConflict(ReasonNoActiveVisit, "card has no active visit")
			return nil, s.auditConflict(ctx, tx, req.Actor, normalized, req.TapID, conflict)
		}
		return nil, err
	}

	if visit.Locked() && !visit.LockedOn(req.TapID) {
		conflict := NewConflict(ReasonTapMismatch,
			fmt.Sprintf("visit is locked on tap %d", visit.ActiveTapID.Int64))
		return nil, s.auditConflict(ctx, tx, req.Actor, normalized, req.TapID, conflict)
	}

	pc, err := s.tapsRepo.WithTx(tx).GetPourContext(ctx, req.TapID)
	if err != nil {
		if err == sql.ErrNoRows {
			conflict := NewConflict(ReasonTapUnavailable, "tap has no keg attached")
			return nil, s.auditConflict(ctx, tx, req.Actor, normalized, req.TapID, conflict)
		}
		return nil, err
	}
	if pc.KegStatus == domain.KegEmpty || pc.KegVolumeML <= 0 || pc.TapStatus == domain.TapEmpty {
		conflict := NewConflict(ReasonTapUnavailable, "keg is empty")
		return nil, s.auditConflict(ctx, tx, req.Actor, normalized, req.TapID, conflict)
	}
	// Another visit's lock cycle is still settling on this tap. The unique
	// index on visits.active_tap_id is the real arbiter; this check just
	// spares the CAS when the state is already visible.
	if pc.TapStatus == domain.TapProcessingSync && !visit.LockedOn(req.TapID) {
		conflict := NewConflict(ReasonAlreadyLocked, "tap is busy with another visit's pour")
		return nil, s.auditConflict(ctx, tx, req.Actor, normalized, req.TapID, conflict)
	}

	guest, err := s.guestsRepo.WithTx(tx).GetByID(ctx, visit.GuestID)
	if err != nil {
		return nil, err
	}

	knobs, err := s.stateRepo.WithTx(tx).PourPolicyKnobs(ctx)
	if err != nil {
		return nil, err
	}
	decision := policy.Evaluate(guest.BalanceCents, pc.PriceCentsPerLiter, knobs)
	if !decision.Allowed {
		denial := NewDenial(ReasonInsufficientFunds, map[string]interface{}{
			"balance_cents":      decision.BalanceCents,
			"price_per_ml_cents": decision.PricePerMlCents,
			"max_volume_ml":      decision.MaxVolumeML,
			"min_start_ml":       decision.MinStartML,
		})
		return nil, s.denyAuthorize(ctx, tx, req.Actor, normalized, req.TapID, denial)
	}

	acquired, err := s.visitsRepo.WithTx(tx).AcquireTapLock(ctx, visit.VisitID, req.TapID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Lost the cross-visit race on the tap; the unique index on
			// active_tap_id aborted the CAS.
			return nil, NewConflict(ReasonAlreadyLocked, "tap is locked by another visit")
		}
		return nil, err
	}
	if !acquired {
		conflict := NewConflict(ReasonAlreadyLocked, "a concurrent authorization won the lock")
		return nil, s.auditConflict(ctx, tx, req.Actor, normalized, req.TapID, conflict)
	}

	if err := s.tapsRepo.WithTx(tx).SetStatus(ctx, req.TapID, domain.TapProcessingSync); err != nil {
		return nil, err
	}
	if pc.KegStatus == domain.KegFull {
		if err := s.kegsRepo.WithTx(tx).SetStatus(ctx, pc.KegID, domain.KegInUse); err != nil {
			return nil, err
		}
	}

	// One pending placeholder per lock cycle; re-authorizing on the same
	// tap confirms the existing one.
	pending, err := s.poursRepo.WithTx(tx).GetPendingForVisitTap(ctx, visit.VisitID, req.TapID)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, err
		}
		clientTxID := pendingClientTxID(visit.VisitID, req.TapID)
		pending, err = s.poursRepo.WithTx(tx).InsertPending(ctx,
			clientTxID, visit.GuestID, normalized, visit.VisitID, req.TapID, pc.KegID, decision.PricePerMlCents)
		if err != nil {
			return nil, err
		}
	}

	err = s.auditor.Append(ctx, tx, req.Actor, AuditAuthorizeGranted, "visit", visit.VisitID, map[string]interface{}{
		"card_uid":      normalized,
		"tap_id":        req.TapID,
		"max_volume_ml": decision.MaxVolumeML,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.publisher.TapState(req.TapID, domain.TapProcessingSync)
	s.logger.Info("pour authorized",
		zap.String("visit_id", visit.VisitID),
		zap.Int("tap_id", req.TapID),
		zap.Int("max_volume_ml", decision.MaxVolumeML))

	return &AuthorizePourResponse{
		Allowed:               true,
		VisitID:               visit.VisitID,
		TapID:                 req.TapID,
		BeverageName:          pc.BeverageName,
		MaxVolumeML:           decision.MaxVolumeML,
		PricePerMlCents:       decision.PricePerMlCents,
		BalanceCents:          decision.BalanceCents,
		AllowedOverdraftCents: decision.AllowedOverdraftCents,
		SafetyML:              decision.SafetyML,
		MinStartML:            decision.MinStartML,
		LockSetAt:             time.Now().UTC(),
		ClientTxID:            pending.ClientTxID,
	}, nil
}

// ForceUnlock is the administrative cancellation primitive: always safe,
// idempotent, audited. The pending placeholder for the cancelled cycle is
// closed out as rejected so it cannot block shift close.
func (s *visitService) ForceUnlock(ctx context.Context, req ForceUnlockRequest) (*domain.Visit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	visit, err := s.visitsRepo.WithTx(tx).GetByID(ctx, req.VisitID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var tapID int
	if visit.Locked() {
		tapID = int(visit.ActiveTapID.Int64)

		pending, err := s.poursRepo.WithTx(tx).GetPendingForVisitTap(ctx, visit.VisitID, tapID)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		if pending != nil {
			if err := s.poursRepo.WithTx(tx).MarkRejected(ctx, pending.PourID, pending.ClientTxID, 0, 0); err != nil {
				return nil, err
			}
		}

		if err := s.visitsRepo.WithTx(tx).ReleaseTapLock(ctx, visit.VisitID); err != nil {
			return nil, err
		}
		if err := restoreTap(ctx, tx, s.tapsRepo, tapID); err != nil {
			return nil, err
		}
	}

	err = s.auditor.Append(ctx, tx, req.Actor, AuditForceUnlock, "visit", visit.VisitID, map[string]interface{}{
		"reason":  req.Reason,
		"comment": req.Comment,
		"tap_id":  tapID,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if tapID != 0 {
		s.publisher.ForceUnlock(tapID, visit.VisitID)
		s.publisher.TapState(tapID, domain.TapActive)
	}
	s.logger.Info("visit force-unlocked",
		zap.String("visit_id", visit.VisitID),
		zap.String("reason", req.Reason))
	return s.visitsRepo.GetByID(ctx, req.VisitID)
}

// ReconcilePour settles a lock cycle from operator-entered figures when the
// automatic report never arrived. Idempotent by (visit, short_id): a replay
// returns the recorded state and still releases a lock left held.
func (s *visitService) ReconcilePour(ctx context.Context, req ReconcilePourRequest) (*domain.Visit, error) {
	if req.ShortID == "" {
		return nil, NewValidation("short_id", "must not be empty")
	}
	if req.VolumeML <= 0 {
		return nil, NewValidation("volume_ml", "must be positive")
	}
	if req.AmountCents < 0 {
		return nil, NewValidation("amount_cents", "must not be negative")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.shifts.EnsureOpen(ctx, tx); err != nil {
		return nil, err
	}

	visit, err := s.visitsRepo.WithTx(tx).GetByID(ctx, req.VisitID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if visit.Status != domain.VisitActive {
		return nil, NewConflict(ReasonNoActiveVisit, "visit is closed")
	}

	// Replay: same short code already reconciled on this visit. Release a
	// lock still held, change nothing else.
	existing, err := s.poursRepo.WithTx(tx).FindManualByVisitShortID(ctx, req.VisitID, req.ShortID)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if existing != nil {
		if visit.LockedOn(req.TapID) {
			if err := s.visitsRepo.WithTx(tx).ReleaseTapLock(ctx, visit.VisitID); err != nil {
				return nil, err
			}
			if err := restoreTap(ctx, tx, s.tapsRepo, req.TapID); err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return s.visitsRepo.GetByID(ctx, req.VisitID)
	}

	if !visit.LockedOn(req.TapID) {
		return nil, NewConflict(ReasonTapMismatch, "visit does not hold the lock on this tap")
	}
	if !visit.CardUID.Valid {
		return nil, NewConflict(ReasonNoActiveVisit, "visit has no card bound")
	}

	pc, err := s.tapsRepo.WithTx(tx).GetPourContext(ctx, req.TapID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, NewConflict(ReasonTapUnavailable, "tap has no keg attached")
		}
		return nil, err
	}

	guest, err := s.guestsRepo.WithTx(tx).GetByID(ctx, visit.GuestID)
	if err != nil {
		return nil, err
	}
	knobs, err := s.stateRepo.WithTx(tx).PourPolicyKnobs(ctx)
	if err != nil {
		return nil, err
	}
	if guest.BalanceCents+knobs.AllowedOverdraftCents < req.AmountCents {
		return nil, NewDenial(ReasonInsufficientFunds, map[string]interface{}{
			"balance_cents": guest.BalanceCents,
			"amount_cents":  req.AmountCents,
		})
	}
	if pc.KegVolumeML < req.VolumeML {
		return nil, NewConflict(ReasonTapUnavailable, "keg does not hold the reported volume")
	}

	pending, err := s.poursRepo.WithTx(tx).GetPendingForVisitTap(ctx, req.VisitID, req.TapID)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if pending != nil {
		if err := s.poursRepo.WithTx(tx).SettleReconciled(ctx, pending.PourID, req.ShortID, req.VolumeML, req.AmountCents); err != nil {
			return nil, err
		}
	} else {
		clientTxID := fmt.Sprintf("manual-reconcile:%s:%s", req.VisitID, req.ShortID)
		_, err = s.poursRepo.WithTx(tx).InsertManual(ctx,
			clientTxID, visit.GuestID, visit.CardUID.String, req.VisitID, req.TapID, pc.KegID,
			req.VolumeML, req.AmountCents, policy.PricePerMlCents(pc.PriceCentsPerLiter), req.ShortID)
		if err != nil {
			return nil, err
		}
	}

	if err := s.guestsRepo.WithTx(tx).DebitBalance(ctx, visit.GuestID, req.AmountCents); err != nil {
		return nil, err
	}
	if err := applyKegDecrement(ctx, tx, s.kegsRepo, s.tapsRepo, pc.KegID, req.TapID, req.VolumeML); err != nil {
		return nil, err
	}
	if err := s.visitsRepo.WithTx(tx).ReleaseTapLock(ctx, visit.VisitID); err != nil {
		return nil, err
	}

	err = s.auditor.Append(ctx, tx, req.Actor, AuditReconcileDone, "visit", visit.VisitID, map[string]interface{}{
		"tap_id":       req.TapID,
		"short_id":     req.ShortID,
		"volume_ml":    req.VolumeML,
		"amount_cents": req.AmountCents,
		"reason":       req.Reason,
		"comment":      req.Comment,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("pour reconciled",
		zap.String("visit_id", req.VisitID),
		zap.String("short_id", req.ShortID),
		zap.Int("volume_ml", req.VolumeML))
	return s.visitsRepo.GetByID(ctx, req.VisitID)
}

// denyAuthorize records the denial in the audit log, commits just that
// entry, and hands the denial back
func (s *visitService) denyAuthorize(ctx context.Context, tx *sql.Tx, actor, cardUID string, tapID int, denial *DenialError) error {
	details := map[string]interface{}{
		"card_uid": cardUID,
		"tap_id":   tapID,
		"reason":   denial.Reason,
	}
	for k, v := range denial.Context {
		details[k] = v
	}
	if err := s.auditor.Append(ctx, tx, actor, AuditAuthorizeDenied, "card", cardUID, details); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return denial
}

// auditConflict records the conflict in the audit log, commits just that
// entry, and hands the conflict back. An append or commit failure takes
// precedence over the conflict so the caller retries.
func (s *visitService) auditConflict(ctx context.Context, tx *sql.Tx, actor, cardUID string, tapID int, conflict *ConflictError) error {
	details := map[string]interface{}{
		"card_uid": cardUID,
		"tap_id":   tapID,
		"reason":   conflict.Reason,
	}
	if err := s.auditor.Append(ctx, tx, actor, AuditAuthorizeDenied, "card", cardUID, details); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return conflict
}

// restoreTap returns a tap from processing_sync to service, to empty when
// its keg has run dry, or to locked when the keg is gone
func restoreTap(ctx context.Context, tx *sql.Tx, tapsRepo *repository.PostgresTapsRepository, tapID int) error {
	pc, err := tapsRepo.WithTx(tx).GetPourContext(ctx, tapID)
	if err != nil {
		if err == sql.ErrNoRows {
			return tapsRepo.WithTx(tx).SetStatus(ctx, tapID, domain.TapLocked)
		}
		return err
	}
	if pc.KegVolumeML <= 0 || pc.KegStatus == domain.KegEmpty {
		return tapsRepo.WithTx(tx).SetStatus(ctx, tapID, domain.TapEmpty)
	}
	return tapsRepo.WithTx(tx).SetStatus(ctx, tapID, domain.TapActive)
}

// applyKegDecrement subtracts the poured volume and flips keg and tap to
// empty when the keg runs dry, otherwise returns the tap to service
func applyKegDecrement(ctx context.Context, tx *sql.Tx, kegsRepo *repository.PostgresKegsRepository, tapsRepo *repository.PostgresTapsRepository, kegID string, tapID, volumeML int) error {
	remaining, err := kegsRepo.WithTx(tx).DecrementVolume(ctx, kegID, volumeML)
	if err != nil {
		return err
	}
	if remaining <= 0 {
		if err := kegsRepo.WithTx(tx).SetStatus(ctx, kegID, domain.KegEmpty); err != nil {
			return err
		}
		return tapsRepo.WithTx(tx).SetStatus(ctx, tapID, domain.TapEmpty)
	}
	return tapsRepo.WithTx(tx).SetStatus(ctx, tapID, domain.TapActive)
}

// pendingClientTxID builds the synthetic idempotency key a pending
// placeholder carries until the controller's real client_tx_id replaces it
func pendingClientTxID(visitID string, tapID int) string {
	return fmt.Sprintf("pending-sync:%s:%d:%s", visitID, tapID, uuid.New().String()[:8])
}
