package domain

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Shift statuses
const (
	ShiftOpen   = "open"
	ShiftClosed = "closed"
)

// Shift work shift; at most one may be open system-wide (partial unique
// index in the schema). All pour operations are gated on an open shift.
type Shift struct {
	ShiftID  string         `db:"shift_id"` // UUID, PRIMARY KEY
	Status   string         `db:"status"`
	OpenedAt time.Time      `db:"opened_at"`
	ClosedAt sql.NullTime   `db:"closed_at"`
	OpenedBy sql.NullString `db:"opened_by"`
	ClosedBy sql.NullString `db:"closed_by"`
}

// ShiftReport snapshot generated for a shift (shift_reports table)
type ShiftReport struct {
	ReportID    string          `db:"report_id"` // UUID, PRIMARY KEY
	ShiftID     string          `db:"shift_id"`
	ReportType  string          `db:"report_type"` // 'Z' on close, 'X' mid-shift
	GeneratedAt time.Time       `db:"generated_at"`
	Payload     json.RawMessage `db:"payload"`
}
