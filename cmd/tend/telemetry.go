package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/davidahmann/tend/core/fsx"
)

// operationalEvent is one line in the optional invocation log. The log is
// env-gated so normal use writes nothing; support escalations can turn it on
// to capture command, exit code, and latency per invocation.
type operationalEvent struct {
	SchemaID        string    `json:"schema_id"`
	SchemaVersion   string    `json:"schema_version"`
	At              time.Time `json:"at"`
	Phase           string    `json:"phase"`
	Command         string    `json:"command"`
	CorrelationID   string    `json:"correlation_id"`
	ExitCode        int       `json:"exit_code,omitempty"`
	ElapsedMillis   int64     `json:"elapsed_ms,omitempty"`
	ProducerVersion string    `json:"producer_version"`
}

func writeOperationalEvent(event operationalEvent) {
	logPath := strings.TrimSpace(os.Getenv("TEND_OPERATIONAL_LOG"))
	if logPath == "" {
		return
	}
	event.SchemaID = "tend.operational_event"
	event.SchemaVersion = "1.0.0"
	event.ProducerVersion = version
	encoded, err := json.Marshal(event)
	if err != nil {
		reportTelemetryWriteFailure(err)
		return
	}
	if err := fsx.AppendLineLocked(logPath, encoded, 0o600); err != nil {
		reportTelemetryWriteFailure(err)
	}
}

func reportTelemetryWriteFailure(err error) {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TEND_TELEMETRY_WARN")), "off") {
		return
	}
	fmt.Fprintf(os.Stderr, "tend warning: operational log write failed: %v\n", err)
}
