package domain

import (
	"database/sql"
	"strings"
	"time"
)

// Card statuses
const (
	CardInactive = "inactive"
	CardActive   = "active"
)

// Card RFID card bound to at most one guest (cards table)
type Card struct {
	CardUID   string         `db:"card_uid"` // natural key read off the card
	GuestID   sql.NullString `db:"guest_id"` // UUID, nullable
	Status    string         `db:"status"`   // 'inactive' | 'active'
	CreatedAt time.Time      `db:"created_at"`
}

// NormalizeCardUID canonicalizes a card UID for comparison and storage of
// lost-card records: trimmed, lower-case.
func NormalizeCardUID(uid string) string {
	return strings.ToLower(strings.TrimSpace(uid))
}
