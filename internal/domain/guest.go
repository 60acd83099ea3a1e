package domain

import (
	"database/sql"
	"time"
)

// Guest domain model (guests table). Balance is kept in integer cents so
// ledger arithmetic is exact; decimal conversion happens at the API boundary.
type Guest struct {
	GuestID      string         `db:"guest_id"` // UUID, PRIMARY KEY
	LastName     string         `db:"last_name"`
	FirstName    string         `db:"first_name"`
	Patronymic   sql.NullString `db:"patronymic"`
	PhoneNumber  string         `db:"phone_number"` // unique
	DateOfBirth  time.Time      `db:"date_of_birth"`
	IDDocument   string         `db:"id_document"`
	BalanceCents int64          `db:"balance_cents"`
	IsActive     bool           `db:"is_active"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// FullName joins the name parts for display
func (g *Guest) FullName() string {
	name := g.LastName + " " + g.FirstName
	if g.Patronymic.Valid && g.Patronymic.String != "" {
		name += " " + g.Patronymic.String
	}
	return name
}

// IsAdult reports whether the guest is 18+ as of the given date
func (g *Guest) IsAdult(now time.Time) bool {
	years := now.Year() - g.DateOfBirth.Year()
	anniversary := g.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years >= 18
}
