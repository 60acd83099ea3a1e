package domain

import (
	"database/sql"
	"time"
)

// Visit statuses
const (
	VisitActive = "active"
	VisitClosed = "closed"
)

// Visit one guest session (visits table). ActiveTapID is the exclusive tap
// lock: NULL means unlocked, a value means the visit owns that tap until
// sync/reconcile/force-unlock releases it. At most one active visit per
// guest and per card (partial unique indexes in the schema).
type Visit struct {
	VisitID      string         `db:"visit_id"` // UUID, PRIMARY KEY
	GuestID      string         `db:"guest_id"`
	CardUID      sql.NullString `db:"card_uid"`
	Status       string         `db:"status"` // 'active' | 'closed'
	OpenedAt     time.Time      `db:"opened_at"`
	ClosedAt     sql.NullTime   `db:"closed_at"`
	ClosedReason sql.NullString `db:"closed_reason"`
	ActiveTapID  sql.NullInt64  `db:"active_tap_id"` // the tap lock, NULL = unlocked
	LockSetAt    sql.NullTime   `db:"lock_set_at"`
	CardReturned bool           `db:"card_returned"`
}

// LockedOn reports whether the visit currently holds the lock on tapID
func (v *Visit) LockedOn(tapID int) bool {
	return v.ActiveTapID.Valid && v.ActiveTapID.Int64 == int64(tapID)
}

// Locked reports whether the visit holds any tap lock
func (v *Visit) Locked() bool {
	return v.ActiveTapID.Valid
}

// VisitListItem active visit joined with guest info for the operator view
type VisitListItem struct {
	VisitID       string     `json:"visit_id"`
	GuestID       string     `json:"guest_id"`
	GuestFullName string     `json:"guest_full_name"`
	PhoneNumber   string     `json:"phone_number"`
	BalanceCents  int64      `json:"balance_cents"`
	Status        string     `json:"status"`
	CardUID       *string    `json:"card_uid,omitempty"`
	ActiveTapID   *int       `json:"active_tap_id,omitempty"`
	LockSetAt     *time.Time `json:"lock_set_at,omitempty"`
	OpenedAt      time.Time  `json:"opened_at"`
}
