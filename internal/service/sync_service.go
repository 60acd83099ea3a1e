package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/events"
	"taphouse-backend/internal/policy"
	"taphouse-backend/internal/repository"
)

// Per-item settlement statuses
const (
	SettleAccepted  = "accepted"
	SettleRejected  = "rejected"
	SettleConflict  = "conflict"
	SettleAuditOnly = "audit_only"
	SettleError     = "error"
)

// Settlement outcomes
const (
	OutcomeSynced            = "synced"
	OutcomeDuplicateExisting = "duplicate_existing"
	OutcomeAuditLateMatched  = "audit_late_matched"
	OutcomeAuditLateRecorded = "audit_late_recorded"
	OutcomeRejectedFunds     = "rejected_insufficient_funds"
	OutcomeRejectedKegEmpty  = "rejected_keg_empty"
)

// Settlement reasons
const (
	SyncReasonDuplicate       = "duplicate"
	SyncReasonLateSyncMatched = "late_sync_matched"
	SyncReasonMissingPending  = "missing_pending_authorization"
	SyncReasonTapMismatch     = "tap_mismatch"
	SyncReasonFunds           = "insufficient_funds"
	SyncReasonKegDepleted     = "keg_depleted"
	SyncReasonTransient       = "transient_storage"
)

// PourReport one metered pour as reported by an edge controller, possibly
// hours after the fact
type PourReport struct {
	ClientTxID string `json:"client_tx_id"`
	ShortID    string `json:"short_id"`
	CardUID    string `json:"card_uid"`
	TapID      int    `json:"tap_id"`
	VolumeML   int    `json:"volume_ml"`
	DurationMs int64  `json:"duration_ms"`
}

// SettleResult per-item settlement outcome
type SettleResult struct {
	ClientTxID string `json:"client_tx_id"`
	Status     string `json:"status"`
	Outcome    string `json:"outcome,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// SyncService the offline-sync settlement state machine. Each report in a
// batch settles in its own transaction; one bad item never blocks its
// siblings, and replays are answered from the recorded outcome.
type SyncService interface {
	SettleBatch(ctx context.Context, reports []PourReport) []SettleResult
}

type syncService struct {
	db         *sql.DB
	visitsRepo *repository.PostgresVisitsRepository
	guestsRepo *repository.PostgresGuestsRepository
	poursRepo  *repository.PostgresPoursRepository
	tapsRepo   *repository.PostgresTapsRepository
	kegsRepo   *repository.PostgresKegsRepository
	stateRepo  *repository.PostgresSystemStateRepository
	auditor    *Auditor
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewSyncService creates the sync service
func NewSyncService(
	db *sql.DB,
	visitsRepo *repository.PostgresVisitsRepository,
	guestsRepo *repository.PostgresGuestsRepository,
	poursRepo *repository.PostgresPoursRepository,
	tapsRepo *repository.PostgresTapsRepository,
	kegsRepo *repository.PostgresKegsRepository,
	stateRepo *repository.PostgresSystemStateRepository,
	auditor *Auditor,
	publisher events.Publisher,
	logger *zap.Logger,
) SyncService {
	return &syncService{
		db:         db,
		visitsRepo: visitsRepo,
		guestsRepo: guestsRepo,
		poursRepo:  poursRepo,
		tapsRepo:   tapsRepo,
		kegsRepo:   kegsRepo,
		stateRepo:  stateRepo,
		auditor:    auditor,
		publisher:  publisher,
		logger:     logger,
	}
}

func (s *syncService) SettleBatch(ctx context.Context, reports []PourReport) []SettleResult {
	results := make([]SettleResult, 0, len(reports))
	for _, report := range reports {
		result, err := s.settleOne(ctx, report)
		if err != nil {
			// Transient storage failure: the whole item rolled back, the
			// controller resends just this record.
			s.logger.Error("settle failed",
				zap.String("client_tx_id", report.ClientTxID),
				zap.Error(err))
			result = SettleResult{
				ClientTxID: report.ClientTxID,
				Status:     SettleError,
				Reason:     SyncReasonTransient,
			}
		}
		results = append(results, result)
	}
	return results
}

func (s *syncService) settleOne(ctx context.Context, report PourReport) (SettleResult, error) {
	if report.ClientTxID == "" || report.CardUID == "" || report.TapID <= 0 || report.VolumeML < 0 {
		return SettleResult{
			ClientTxID: report.ClientTxID,
			Status:     SettleRejected,
			Reason:     SyncReasonMissingPending,
		}, nil
	}
	cardUID := domain.NormalizeCardUID(report.CardUID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SettleResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Step 1: exact client_tx_id replay answers from the recorded state.
	if existing, err := s.poursRepo.WithTx(tx).GetByClientTxID(ctx, report.ClientTxID); err == nil {
		return s.replayResult(report.ClientTxID, existing.SyncStatus), nil
	} else if err != sql.ErrNoRows {
		return SettleResult{}, err
	}

	// Step 2: resolve the active visit for the reported card.
	visit, err := s.visitsRepo.WithTx(tx).GetActiveByCard(ctx, cardUID)
	if err != nil {
		if err != sql.ErrNoRows {
			return SettleResult{}, err
		}
		return s.settleLate(ctx, tx, report, cardUID)
	}

	// Step 3: lock held on a different tap than reported.
	if visit.Locked() && !visit.LockedOn(report.TapID) {
		result := SettleResult{
			ClientTxID: report.ClientTxID,
			Status:     SettleConflict,
			Reason:     SyncReasonTapMismatch,
		}
		return result, s.auditAndCommit(ctx, tx, AuditSyncConflict, report, map[string]interface{}{
			"visit_id":     visit.VisitID,
			"locked_tap":   visit.ActiveTapID.Int64,
			"reported_tap": report.TapID,
		})
	}

	// Step 4: no lock at all. A manual reconciliation with the same short
	// code means the operator already settled this cycle.
	if !visit.Locked() {
		if report.ShortID != "" {
			if _, err := s.poursRepo.WithTx(tx).FindManualByVisitShortID(ctx, visit.VisitID, report.ShortID); err == nil {
				result := SettleResult{
					ClientTxID: report.ClientTxID,
					Status:     SettleAuditOnly,
					Outcome:    OutcomeAuditLateMatched,
					Reason:     SyncReasonLateSyncMatched,
				}
				return result, s.auditAndCommit(ctx, tx, AuditSyncAuditOnly, report, map[string]interface{}{
					"visit_id": visit.VisitID,
					"short_id": report.ShortID,
				})
			} else if err != sql.ErrNoRows {
				return SettleResult{}, err
			}
		}
		result := SettleResult{
			ClientTxID: report.ClientTxID,
			Status:     SettleRejected,
			Reason:     SyncReasonMissingPending,
		}
		return result, s.auditAndCommit(ctx, tx, AuditSyncRejected, report, map[string]interface{}{
			"visit_id": visit.VisitID,
		})
	}

	// Lock held on the reported tap: find the pending placeholder.
	pending, err := s.poursRepo.WithTx(tx).GetPendingForVisitTap(ctx, visit.VisitID, report.TapID)
	if err != nil {
		if err != sql.ErrNoRows {
			return SettleResult{}, err
		}
		result := SettleResult{
			ClientTxID: report.ClientTxID,
			Status:     SettleRejected,
			Reason:     SyncReasonMissingPending,
		}
		return result, s.auditAndCommit(ctx, tx, AuditSyncRejected, report, map[string]interface{}{
			"visit_id": visit.VisitID,
		})
	}

	// Step 5: re-validate against current price, balance and keg level.
	pc, err := s.tapsRepo.WithTx(tx).GetPourContext(ctx, report.TapID)
	if err != nil {
		if err != sql.ErrNoRows {
			return SettleResult{}, err
		}
		return s.rejectPending(ctx, tx, report, visit, pending, 0,
			OutcomeRejectedKegEmpty, SyncReasonKegDepleted)
	}
	ppu := policy.PricePerMlCents(pc.PriceCentsPerLiter)
	amount := policy.RequiredCents(report.VolumeML, ppu)

	guest, err := s.guestsRepo.WithTx(tx).GetByID(ctx, visit.GuestID)
	if err != nil {
		return SettleResult{}, err
	}
	knobs, err := s.stateRepo.WithTx(tx).PourPolicyKnobs(ctx)
	if err != nil {
		return SettleResult{}, err
	}

	if guest.BalanceCents+knobs.AllowedOverdraftCents < amount {
		return s.rejectPending(ctx, tx, report, visit, pending, amount,
			OutcomeRejectedFunds, SyncReasonFunds)
	}
	if pc.KegVolumeML < report.VolumeML || pc.KegStatus == domain.KegEmpty {
		return s.rejectPending(ctx, tx, report, visit, pending, amount,
			OutcomeRejectedKegEmpty, SyncReasonKegDepleted)
	}

	// Step 6: accept. The pending row becomes the settled pour in place.
	var duration sql.NullInt64
	if report.DurationMs > 0 {
		duration = sql.NullInt64{Int64: report.DurationMs, Valid: true}
	}
	if err := s.poursRepo.WithTx(tx).SettleSynced(ctx, pending.PourID, report.ClientTxID, report.VolumeML, amount, duration); err != nil {
		return SettleResult{}, err
	}
	if err := s.guestsRepo.WithTx(tx).DebitBalance(ctx, visit.GuestID, amount); err != nil {
		return SettleResult{}, err
	}
	if err := applyKegDecrement(ctx, tx, s.kegsRepo, s.tapsRepo, pc.KegID, report.TapID, report.VolumeML); err != nil {
		return SettleResult{}, err
	}
	if err := s.visitsRepo.WithTx(tx).ReleaseTapLock(ctx, visit.VisitID); err != nil {
		return SettleResult{}, err
	}

	err = s.auditor.Append(ctx, tx, "", AuditSyncSettled, "pour", pending.PourID, map[string]interface{}{
		"client_tx_id": report.ClientTxID,
		"visit_id":     visit.VisitID,
		"tap_id":       report.TapID,
		"volume_ml":    report.VolumeML,
		"amount_cents": amount,
	})
	if err != nil {
		return SettleResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SettleResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.publisher.PourSettled(report.TapID, visit.VisitID, report.ClientTxID, SettleAccepted)
	s.logger.Info("pour settled",
		zap.String("client_tx_id", report.ClientTxID),
		zap.String("visit_id", visit.VisitID),
		zap.Int("volume_ml", report.VolumeML),
		zap.Int64("amount_cents", amount))

	return SettleResult{
		ClientTxID: report.ClientTxID,
		Status:     SettleAccepted,
		Outcome:    OutcomeSynced,
	}, nil
}

// replayResult maps the recorded sync_status of an already-seen
// client_tx_id to the outcome its original settlement produced
func (s *syncService) replayResult(clientTxID, syncStatus string) SettleResult {
	result := SettleResult{
		ClientTxID: clientTxID,
		Outcome:    OutcomeDuplicateExisting,
		Reason:     SyncReasonDuplicate,
	}
	switch syncStatus {
	case domain.PourSynced:
		result.Status = SettleAccepted
	case domain.PourRejected:
		result.Status = SettleRejected
	case domain.PourReconciled:
		result.Status = SettleAuditOnly
	default:
		result.Status = SettleAuditOnly
	}
	return result
}

// settleLate handles a report whose card has no active visit anymore: match
// it against a manual reconciliation by short code, or record it audit-only
func (s *syncService) settleLate(ctx context.Context, tx *sql.Tx, report PourReport, cardUID string) (SettleResult, error) {
	if report.ShortID != "" {
		if _, err := s.poursRepo.WithTx(tx).FindManualByShortIDTap(ctx, report.ShortID, report.TapID); err == nil {
			result := SettleResult{
				ClientTxID: report.ClientTxID,
				Status:     SettleAuditOnly,
				Outcome:    OutcomeAuditLateMatched,
				Reason:     SyncReasonLateSyncMatched,
			}
			return result, s.auditAndCommit(ctx, tx, AuditSyncAuditOnly, report, map[string]interface{}{
				"card_uid": cardUID,
				"short_id": report.ShortID,
			})
		} else if err != sql.ErrNoRows {
			return SettleResult{}, err
		}
	}
	result := SettleResult{
		ClientTxID: report.ClientTxID,
		Status:     SettleAuditOnly,
		Outcome:    OutcomeAuditLateRecorded,
	}
	return result, s.auditAndCommit(ctx, tx, AuditSyncAuditOnly, report, map[string]interface{}{
		"card_uid": cardUID,
	})
}

// rejectPending closes out a pending placeholder as rejected, releases the
// lock and returns the tap to service. The row is terminal but never
// deleted.
func (s *syncService) rejectPending(ctx context.Context, tx *sql.Tx, report PourReport, visit *domain.Visit, pending *domain.Pour, amount int64, outcome, reason string) (SettleResult, error) {
	if err := s.poursRepo.WithTx(tx).MarkRejected(ctx, pending.PourID, report.ClientTxID, report.VolumeML, amount); err != nil {
		return SettleResult{}, err
	}
	if err := s.visitsRepo.WithTx(tx).ReleaseTapLock(ctx, visit.VisitID); err != nil {
		return SettleResult{}, err
	}
	if err := restoreTap(ctx, tx, s.tapsRepo, report.TapID); err != nil {
		return SettleResult{}, err
	}

	result := SettleResult{
		ClientTxID: report.ClientTxID,
		Status:     SettleRejected,
		Outcome:    outcome,
		Reason:     reason,
	}
	err := s.auditAndCommit(ctx, tx, AuditSyncRejected, report, map[string]interface{}{
		"visit_id":     visit.VisitID,
		"pour_id":      pending.PourID,
		"reason":       reason,
		"amount_cents": amount,
	})
	if err != nil {
		return SettleResult{}, err
	}
	s.publisher.PourSettled(report.TapID, visit.VisitID, report.ClientTxID, SettleRejected)
	return result, nil
}

func (s *syncService) auditAndCommit(ctx context.Context, tx *sql.Tx, action string, report PourReport, details map[string]interface{}) error {
	details["client_tx_id"] = report.ClientTxID
	details["tap_id"] = report.TapID
	details["volume_ml"] = report.VolumeML
	if err := s.auditor.Append(ctx, tx, "", action, "pour", report.ClientTxID, details); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
