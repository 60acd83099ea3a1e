package domain

import (
	"database/sql"
	"time"
)

// LostCard a card reported lost. Its mere presence blocks authorization for
// that card; restoring deletes the row. card_uid is stored normalized
// (lower-case) and unique.
type LostCard struct {
	LostCardID string         `db:"lost_card_id"` // UUID, PRIMARY KEY
	CardUID    string         `db:"card_uid"`
	ReportedBy sql.NullString `db:"reported_by"`
	Reason     sql.NullString `db:"reason"`
	Comment    sql.NullString `db:"comment"`
	VisitID    sql.NullString `db:"visit_id"`
	GuestID    sql.NullString `db:"guest_id"`
	ReportedAt time.Time      `db:"reported_at"`
}
