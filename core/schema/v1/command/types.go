package command

const (
	SchemaID      = "tend.command.descriptor"
	SchemaVersion = "1.0.0"
)

// Descriptor is one line of the external command registry. The core reads
// these to resolve a trigger to an intent; it never writes them.
type Descriptor struct {
	ID          string `json:"id"`
	Trigger     string `json:"trigger"`
	Script      string `json:"script"`
	Description string `json:"description,omitempty"`
}
