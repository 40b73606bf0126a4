package list

import "time"

const (
	SchemaID      = "tend.list.record"
	SchemaVersion = "1.0.0"
)

// Record holds a list's declared stages and its item collection in one
// document so a stage move is a single compare-and-swap.
type Record struct {
	SchemaID      string    `json:"schema_id"`
	SchemaVersion string    `json:"schema_version"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Stages        []string  `json:"stages"`
	Items         []Item    `json:"items"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Item struct {
	ID        string            `json:"id"`
	List      string            `json:"list"`
	Stage     string            `json:"stage"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
