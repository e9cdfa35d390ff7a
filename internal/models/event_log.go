package models

import "time"

// EventLog represents a row in the append-only 'event_logs' table
type EventLog struct {
	ID         string     `db:"id" json:"id"`
	Actor      string     `db:"actor" json:"actor"`
	EntityType EntityType `db:"entity_type" json:"entity_type"`
	EntityID   string     `db:"entity_id" json:"entity_id"`
	Action     string     `db:"action" json:"action"`
	Metadata   JSONMap    `db:"metadata" json:"metadata"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// SystemActor is recorded for changes made by the pipeline itself.
const SystemActor = "system"
