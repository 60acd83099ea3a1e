package domain

import (
	"database/sql"
	"time"
)

// Controller edge device (RPi) driving one or more taps (controllers table).
// The natural key is whatever the device reports about itself, e.g. a MAC.
type Controller struct {
	ControllerID    string         `db:"controller_id"`
	IPAddress       string         `db:"ip_address"`
	FirmwareVersion sql.NullString `db:"firmware_version"`
	CreatedAt       time.Time      `db:"created_at"`
	LastSeen        time.Time      `db:"last_seen"`
}

// AuditEntry append-only record of an operator/controller decision
// (audit_logs table)
type AuditEntry struct {
	LogID        string         `db:"log_id"` // UUID, PRIMARY KEY
	ActorID      sql.NullString `db:"actor_id"`
	Action       string         `db:"action"`
	TargetEntity sql.NullString `db:"target_entity"`
	TargetID     sql.NullString `db:"target_id"`
	Details      sql.NullString `db:"details"` // JSON text
	Timestamp    time.Time      `db:"timestamp"`
}

// SystemState key-value flag (system_states table), e.g. policy knobs and
// the emergency stop switch.
type SystemState struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// System state keys
const (
	StateMinStartML            = "min_start_ml"
	StateSafetyML              = "safety_ml"
	StateAllowedOverdraftCents = "allowed_overdraft_cents"
	StateEmergencyStop         = "emergency_stop_enabled"
)

// Policy knob defaults
const (
	DefaultMinStartML            = 20
	DefaultSafetyML              = 2
	DefaultAllowedOverdraftCents = 0
)
