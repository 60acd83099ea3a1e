package domain

import (
	"database/sql"
	"time"
)

// Keg statuses
const (
	KegFull  = "full"
	KegInUse = "in_use"
	KegEmpty = "empty"
)

// Keg physical keg instance of a beverage (kegs table)
type Keg struct {
	KegID              string       `db:"keg_id"` // UUID, PRIMARY KEY
	BeverageID         string       `db:"beverage_id"`
	InitialVolumeML    int          `db:"initial_volume_ml"`
	CurrentVolumeML    int          `db:"current_volume_ml"`
	PurchasePriceCents int64        `db:"purchase_price_cents"`
	Status             string       `db:"status"`
	TappedAt           sql.NullTime `db:"tapped_at"`
	FinishedAt         sql.NullTime `db:"finished_at"`
	CreatedAt          time.Time    `db:"created_at"`
}

// Beverage catalog entry (beverages table)
type Beverage struct {
	BeverageID             string         `db:"beverage_id"` // UUID, PRIMARY KEY
	Name                   string         `db:"name"`        // unique
	Brewery                sql.NullString `db:"brewery"`
	Style                  sql.NullString `db:"style"`
	ABV                    sql.NullString `db:"abv"` // e.g. "4.70", display only
	SellPriceCentsPerLiter int64          `db:"sell_price_cents_per_liter"`
}
