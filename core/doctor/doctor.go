// Package doctor inspects a workspace and reports whether its records,
// descriptors, registry, and journal are in a usable state. Checks never
// mutate anything; each carries a fix command when one exists.
package doctor

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/tend/core/fsx"
	"github.com/davidahmann/tend/core/journal"
	"github.com/davidahmann/tend/core/projectconfig"
	"github.com/davidahmann/tend/core/registry"
	"github.com/davidahmann/tend/core/schema/descriptor"
	"github.com/davidahmann/tend/core/schema/validate"
	schemalist "github.com/davidahmann/tend/core/schema/v1/list"
	schemasession "github.com/davidahmann/tend/core/schema/v1/session"
)

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

type Options struct {
	Paths           projectconfig.Paths
	ProducerVersion string
	Now             func() time.Time
}

type Result struct {
	SchemaID        string   `json:"schema_id"`
	SchemaVersion   string   `json:"schema_version"`
	CreatedAt       string   `json:"created_at"`
	ProducerVersion string   `json:"producer_version"`
	Status          string   `json:"status"`
	NonFixable      bool     `json:"non_fixable"`
	Summary         string   `json:"summary"`
	FixCommands     []string `json:"fix_commands"`
	Checks          []Check  `json:"checks"`
}

type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	FixCommand string `json:"fix_command,omitempty"`
	NonFixable bool   `json:"non_fixable,omitempty"`
}

func Run(opts Options) Result {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	producerVersion := strings.TrimSpace(opts.ProducerVersion)
	if producerVersion == "" {
		producerVersion = "0.0.0-dev"
	}

	validator, descriptorCheck := checkDescriptors(opts.Paths.SchemaDir)
	checks := []Check{
		checkStateDir(opts.Paths.StateDir),
		descriptorCheck,
		checkRegistry(opts.Paths.RegistryPath),
		checkRecords("session_records", filepath.Join(opts.Paths.StateDir, "sessions"), "session@v1", validator, unmarshalSession),
		checkRecords("list_records", filepath.Join(opts.Paths.StateDir, "lists"), "list@v1", validator, unmarshalList),
		checkJournal(opts.Paths.JournalPath),
		checkStaleLocks(opts.Paths.StateDir, now().UTC()),
	}

	failed := 0
	warned := 0
	nonFixable := false
	fixCommands := make([]string, 0, len(checks))
	seenFixes := map[string]struct{}{}
	for _, check := range checks {
		switch check.Status {
		case statusFail:
			failed++
		case statusWarn:
			warned++
		}
		if check.NonFixable {
			nonFixable = true
		}
		if check.FixCommand != "" {
			if _, ok := seenFixes[check.FixCommand]; !ok {
				seenFixes[check.FixCommand] = struct{}{}
				fixCommands = append(fixCommands, check.FixCommand)
			}
		}
	}

	status := statusPass
	if failed > 0 {
		status = statusFail
	} else if warned > 0 {
		status = statusWarn
	}

	sort.Strings(fixCommands)
	summary := fmt.Sprintf("doctor: status=%s failed=%d warned=%d non_fixable=%t", status, failed, warned, nonFixable)

	return Result{
		SchemaID:        "tend.doctor.result",
		SchemaVersion:   "1.0.0",
		CreatedAt:       now().UTC().Format(time.RFC3339Nano),
		ProducerVersion: producerVersion,
		Status:          status,
		NonFixable:      nonFixable,
		Summary:         summary,
		FixCommands:     fixCommands,
		Checks:          checks,
	}
}

func checkStateDir(stateDir string) Check {
	info, err := os.Stat(stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Check{
				Name:       "state_dir",
				Status:     statusWarn,
				Message:    "state directory does not exist yet",
				FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(stateDir)),
			}
		}
		return Check{
			Name:       "state_dir",
			Status:     statusFail,
			Message:    fmt.Sprintf("state directory not accessible: %v", err),
			FixCommand: fmt.Sprintf("chmod u+rwx %s", shellQuote(stateDir)),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    "state_dir",
			Status:  statusFail,
			Message: "state path is not a directory",
		}
	}
	testPath := filepath.Join(stateDir, ".tend-doctor-writecheck")
	if err := os.WriteFile(testPath, []byte("ok"), 0o600); err != nil {
		return Check{
			Name:       "state_dir",
			Status:     statusFail,
			Message:    fmt.Sprintf("state directory not writable: %v", err),
			FixCommand: fmt.Sprintf("chmod u+w %s", shellQuote(stateDir)),
		}
	}
	_ = os.Remove(testPath)
	return Check{
		Name:    "state_dir",
		Status:  statusPass,
		Message: "state directory is writable",
	}
}

func checkDescriptors(schemaDir string) (*validate.Validator, Check) {
	schemas, err := descriptor.Resolve(schemaDir)
	if err != nil {
		return nil, Check{
			Name:       "schema_descriptors",
			Status:     statusFail,
			Message:    fmt.Sprintf("descriptor resolution failed: %v", err),
			NonFixable: true,
		}
	}
	validator := validate.New(schemas)
	return validator, Check{
		Name:    "schema_descriptors",
		Status:  statusPass,
		Message: fmt.Sprintf("%d descriptor(s) compiled", len(schemas)),
	}
}

func checkRegistry(registryPath string) Check {
	reg, err := registry.Load(registryPath)
	if err != nil {
		return Check{
			Name:    "command_registry",
			Status:  statusFail,
			Message: fmt.Sprintf("registry load failed: %v", err),
		}
	}
	if warnings := reg.Warnings(); len(warnings) > 0 {
		return Check{
			Name:       "command_registry",
			Status:     statusWarn,
			Message:    fmt.Sprintf("registry has %d malformed line(s): %s", len(warnings), strings.Join(warnings, "; ")),
			FixCommand: fmt.Sprintf("edit %s", shellQuote(registryPath)),
		}
	}
	return Check{
		Name:    "command_registry",
		Status:  statusPass,
		Message: fmt.Sprintf("%d command(s) registered", len(reg.List())),
	}
}

type recordUnmarshal func(raw []byte) (any, error)

func unmarshalSession(raw []byte) (any, error) {
	var record schemasession.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return record, nil
}

func unmarshalList(raw []byte) (any, error) {
	var record schemalist.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return record, nil
}

func checkRecords(name, dir, ref string, validator *validate.Validator, unmarshal recordUnmarshal) Check {
	if validator == nil {
		return Check{
			Name:    name,
			Status:  statusWarn,
			Message: "skipped: descriptors did not compile",
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Check{
				Name:    name,
				Status:  statusPass,
				Message: "no records yet",
			}
		}
		return Check{
			Name:    name,
			Status:  statusFail,
			Message: fmt.Sprintf("record directory not readable: %v", err),
		}
	}

	checked := 0
	var broken []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		// #nosec G304 -- paths are discovered inside the state directory.
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			broken = append(broken, fmt.Sprintf("%s: %v", entry.Name(), readErr))
			continue
		}
		record, parseErr := unmarshal(raw)
		if parseErr != nil {
			broken = append(broken, fmt.Sprintf("%s: %v", entry.Name(), parseErr))
			continue
		}
		violations, validateErr := validator.ValidateRecord(ref, record)
		if validateErr != nil {
			broken = append(broken, fmt.Sprintf("%s: %v", entry.Name(), validateErr))
			continue
		}
		if len(violations) > 0 {
			broken = append(broken, fmt.Sprintf("%s: %s: %s", entry.Name(), violations[0].Path, violations[0].Reason))
			continue
		}
		checked++
	}
	if len(broken) > 0 {
		return Check{
			Name:       name,
			Status:     statusFail,
			Message:    fmt.Sprintf("%d invalid record(s): %s", len(broken), strings.Join(broken, "; ")),
			NonFixable: true,
		}
	}
	return Check{
		Name:    name,
		Status:  statusPass,
		Message: fmt.Sprintf("%d record(s) valid", checked),
	}
}

func checkJournal(journalPath string) Check {
	entries, warnings, err := journal.New(journalPath, journal.Options{}).Entries()
	if err != nil {
		return Check{
			Name:    "journal",
			Status:  statusFail,
			Message: fmt.Sprintf("journal not readable: %v", err),
		}
	}
	if len(warnings) > 0 {
		return Check{
			Name:    "journal",
			Status:  statusWarn,
			Message: fmt.Sprintf("journal has %d malformed line(s): %s", len(warnings), strings.Join(warnings, "; ")),
		}
	}
	return Check{
		Name:    "journal",
		Status:  statusPass,
		Message: fmt.Sprintf("%d journal entr(ies) readable", len(entries)),
	}
}

func checkStaleLocks(stateDir string, now time.Time) Check {
	var stale []string
	walkErr := filepath.WalkDir(stateDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock") {
			return nil
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil
		}
		if now.Sub(info.ModTime().UTC()) > fsx.AppendLockStaleAfter {
			stale = append(stale, path)
		}
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return Check{
			Name:    "stale_locks",
			Status:  statusFail,
			Message: fmt.Sprintf("lock scan failed: %v", walkErr),
		}
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		return Check{
			Name:       "stale_locks",
			Status:     statusWarn,
			Message:    fmt.Sprintf("%d stale lock file(s): %s", len(stale), strings.Join(stale, ", ")),
			FixCommand: fmt.Sprintf("rm %s", shellQuote(stale[0])),
		}
	}
	return Check{
		Name:    "stale_locks",
		Status:  statusPass,
		Message: "no stale lock files",
	}
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
