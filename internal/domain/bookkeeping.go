package domain

import "time"

// Checkpoint is the durable inbound cursor for one channel. Messages whose
// sequence marker is at or below LastMarker have already been handled.
type Checkpoint struct {
	Channel    string    `gorm:"type:varchar(64);primaryKey"`
	LastMarker int64     `gorm:"not null;default:0"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (Checkpoint) TableName() string { return "checkpoints" }

// TriggerRun records that a time-triggered obligation fired for a given
// period, keyed by (trigger, period_key), e.g. ("daily_greeting",
// "2026-10-14"). The unique index turns a second claim into a duplicate
// key error so the same occurrence is never evaluated twice.
type TriggerRun struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Trigger   string    `gorm:"column:trigger_name;type:TEXT NOT NULL;uniqueIndex:ux_trigger_period,priority:1"`
	PeriodKey string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_trigger_period,priority:2"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (TriggerRun) TableName() string { return "trigger_runs" }
