// Package journal keeps an append-only JSONL record of every persisted
// mutation. The journal is advisory: stores append to it after the durable
// write succeeds, and readers (status, log, doctor) treat unparseable lines
// as warnings rather than failures.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/fsx"
)

type Entry struct {
	ID              string    `json:"id"`
	At              time.Time `json:"at"`
	Intent          string    `json:"intent"`
	Target          string    `json:"target"`
	Version         int64     `json:"version"`
	Outcome         string    `json:"outcome"`
	ProducerVersion string    `json:"producer_version,omitempty"`
}

type Journal struct {
	path            string
	producerVersion string
	now             func() time.Time
}

type Options struct {
	ProducerVersion string
	Now             func() time.Time
}

func New(path string, opts Options) *Journal {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Journal{path: path, producerVersion: opts.ProducerVersion, now: now}
}

func (j *Journal) Path() string {
	return j.path
}

// Record appends one entry, filling ID and At when unset.
func (j *Journal) Record(entry Entry) error {
	if entry.ID == "" {
		entry.ID = "evt_" + uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = j.now().UTC().Truncate(time.Second)
	}
	if entry.ProducerVersion == "" {
		entry.ProducerVersion = j.producerVersion
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "journal_entry_invalid", "", false)
	}
	if err := fsx.AppendLineLocked(j.path, line, 0o600); err != nil {
		return coreerrors.Wrap(err, coreerrors.CategoryIOFailure, "journal_append_failed", "check the state directory", true)
	}
	return nil
}

// Entries scans the whole journal in write order. Unparseable lines come
// back as warnings; a missing journal file is an empty result.
func (j *Journal) Entries() ([]Entry, []string, error) {
	raw, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, coreerrors.Wrap(fmt.Errorf("read journal: %w", err), coreerrors.CategoryIOFailure, "journal_read_failed", "check the state directory", false)
	}
	entries := make([]Entry, 0)
	warnings := make([]string, 0)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(text, &entry); err != nil {
			warnings = append(warnings, fmt.Sprintf("journal line %d: %v", line, err))
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, coreerrors.Wrap(fmt.Errorf("scan journal: %w", err), coreerrors.CategoryIOFailure, "journal_read_failed", "check the state directory", false)
	}
	return entries, warnings, nil
}

// EntriesFor filters the journal down to one target in write order.
func (j *Journal) EntriesFor(target string) ([]Entry, []string, error) {
	entries, warnings, err := j.Entries()
	if err != nil {
		return nil, warnings, err
	}
	filtered := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Target == target {
			filtered = append(filtered, entry)
		}
	}
	return filtered, warnings, nil
}
