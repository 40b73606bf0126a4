package session

import "time"

const (
	SchemaID      = "tend.session.record"
	SchemaVersion = "1.0.0"
)

type Record struct {
	SchemaID      string         `json:"schema_id"`
	SchemaVersion string         `json:"schema_version"`
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Mode          string         `json:"mode"`
	LoadSystem    bool           `json:"load_system,omitempty"`
	Objectives    []string       `json:"objectives"`
	History       []HistoryEntry `json:"history"`
	Version       int64          `json:"version"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type HistoryEntry struct {
	Seq  int64     `json:"seq"`
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
}
