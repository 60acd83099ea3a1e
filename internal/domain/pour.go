package domain

import (
	"database/sql"
	"time"
)

// Pour sync statuses. A pour row is created as 'pending_sync' the moment a
// tap lock is granted and is then mutated in place; it is never re-created
// for the same lock cycle. 'rejected' is terminal.
const (
	PourPendingSync = "pending_sync"
	PourSynced      = "synced"
	PourReconciled  = "reconciled"
	PourRejected    = "rejected"
)

// Pour one metered pour, or the pending placeholder for one (pours table)
type Pour struct {
	PourID            string         `db:"pour_id"`      // UUID, PRIMARY KEY
	ClientTxID        string         `db:"client_tx_id"` // unique idempotency key
	GuestID           string         `db:"guest_id"`
	CardUID           string         `db:"card_uid"`
	VisitID           sql.NullString `db:"visit_id"`
	TapID             int            `db:"tap_id"`
	KegID             string         `db:"keg_id"`
	VolumeML          int            `db:"volume_ml"`
	AmountCents       int64          `db:"amount_cents"`
	PricePerMlCents   int64          `db:"price_per_ml_cents"` // price at pour time
	DurationMs        sql.NullInt64  `db:"duration_ms"`
	SyncStatus        string         `db:"sync_status"`
	ShortID           sql.NullString `db:"short_id"` // 6-8 char human code
	IsManualReconcile bool           `db:"is_manual_reconcile"`
	PouredAt          time.Time      `db:"poured_at"`
	AuthorizedAt      sql.NullTime   `db:"authorized_at"`
	SyncedAt          sql.NullTime   `db:"synced_at"`
	ReconciledAt      sql.NullTime   `db:"reconciled_at"`
	CreatedAt         time.Time      `db:"created_at"`
}

// Transaction immutable balance movement: top-up, refund, correction
// (transactions table)
type Transaction struct {
	TransactionID string         `db:"transaction_id"` // UUID, PRIMARY KEY
	GuestID       string         `db:"guest_id"`
	VisitID       sql.NullString `db:"visit_id"`
	AmountCents   int64          `db:"amount_cents"` // positive for top-ups
	Type          string         `db:"type"`
	PaymentMethod sql.NullString `db:"payment_method"`
	CreatedAt     time.Time      `db:"created_at"`
}
