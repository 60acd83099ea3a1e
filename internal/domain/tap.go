package domain

import (
	"database/sql"
)

// Tap statuses. 'locked' is out of service with no keg assigned; 'empty'
// means the keg ran dry. 'processing_sync' means a visit holds the lock on
// this tap and settlement for that lock cycle is still outstanding.
const (
	TapLocked         = "locked"
	TapActive         = "active"
	TapProcessingSync = "processing_sync"
	TapEmpty          = "empty"
)

// Tap physical pour point (taps table)
type Tap struct {
	TapID         int            `db:"tap_id"` // small integer, easy to print on hardware
	KegID         sql.NullString `db:"keg_id"` // UUID, nullable, unique
	DisplayName   string         `db:"display_name"`
	Status        string         `db:"status"`
	LastCleanedAt sql.NullTime   `db:"last_cleaned_at"`
}

// PourContext everything authorize/settle needs to know about a tap in one
// read: the tap row plus its keg and beverage pricing.
type PourContext struct {
	TapID              int
	TapStatus          string
	KegID              string
	KegVolumeML        int
	KegStatus          string
	BeverageID         string
	BeverageName       string
	PriceCentsPerLiter int64
}
