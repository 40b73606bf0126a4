// Package registry reads the external command registry: a JSONL file where
// each line is one command descriptor. The registry is advisory input — the
// core resolves triggers against it but never writes to it.
package registry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/schema/v1/command"
)

const (
	maxLineBytes     = 4 * 1024 * 1024
	initialLineBytes = 64 * 1024
)

// Registry is an in-memory snapshot of a commands file. Malformed lines are
// kept as warnings rather than failing the load; valid lines are still served.
type Registry struct {
	path        string
	descriptors []command.Descriptor
	warnings    []string
}

// Load reads the registry file at path. A missing file yields an empty
// registry, not an error.
func Load(path string) (*Registry, error) {
	registry := &Registry{path: path}
	// #nosec G304 -- registry path is explicit local configuration.
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return registry, nil
		}
		return nil, coreerrors.New(coreerrors.CategoryIOFailure, "registry_read_failed", "check registry file permissions", true, "open registry %s: %v", path, err)
	}
	defer func() { _ = file.Close() }()

	seen := map[string]int{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, initialLineBytes), maxLineBytes)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var descriptor command.Descriptor
		if err := json.Unmarshal([]byte(line), &descriptor); err != nil {
			registry.warnings = append(registry.warnings, fmt.Sprintf("registry line %d: %v", lineNumber, err))
			continue
		}
		descriptor.ID = strings.TrimSpace(descriptor.ID)
		descriptor.Trigger = strings.TrimSpace(descriptor.Trigger)
		if descriptor.ID == "" || descriptor.Trigger == "" {
			registry.warnings = append(registry.warnings, fmt.Sprintf("registry line %d: descriptor missing id or trigger", lineNumber))
			continue
		}
		key := strings.ToLower(descriptor.Trigger)
		if priorLine, duplicate := seen[key]; duplicate {
			registry.warnings = append(registry.warnings, fmt.Sprintf("registry line %d: duplicate trigger %q (first defined on line %d)", lineNumber, descriptor.Trigger, priorLine))
			continue
		}
		seen[key] = lineNumber
		registry.descriptors = append(registry.descriptors, descriptor)
	}
	if err := scanner.Err(); err != nil {
		return nil, coreerrors.New(coreerrors.CategoryIOFailure, "registry_read_failed", "check registry file contents", true, "scan registry %s: %v", path, err)
	}
	return registry, nil
}

// Path returns the file the registry was loaded from.
func (r *Registry) Path() string {
	return r.path
}

// Warnings returns per-line diagnostics collected during Load, in file order.
func (r *Registry) Warnings() []string {
	return r.warnings
}

// List returns all descriptors sorted by trigger.
func (r *Registry) List() []command.Descriptor {
	descriptors := make([]command.Descriptor, len(r.descriptors))
	copy(descriptors, r.descriptors)
	sort.Slice(descriptors, func(i, j int) bool {
		if descriptors[i].Trigger != descriptors[j].Trigger {
			return descriptors[i].Trigger < descriptors[j].Trigger
		}
		return descriptors[i].ID < descriptors[j].ID
	})
	return descriptors
}

// Resolve maps a trigger phrase to a single descriptor. An exact match (case
// insensitive) wins; otherwise a substring match succeeds only when exactly
// one descriptor matches.
func (r *Registry) Resolve(trigger string) (command.Descriptor, error) {
	needle := strings.ToLower(strings.TrimSpace(trigger))
	if needle == "" {
		return command.Descriptor{}, coreerrors.New(coreerrors.CategoryInvalidInput, "trigger_required", "pass a non-empty trigger phrase", false, "trigger is required")
	}

	var candidates []command.Descriptor
	for _, descriptor := range r.descriptors {
		haystack := strings.ToLower(descriptor.Trigger)
		if haystack == needle {
			return descriptor, nil
		}
		if strings.Contains(haystack, needle) {
			candidates = append(candidates, descriptor)
		}
	}

	switch len(candidates) {
	case 0:
		return command.Descriptor{}, coreerrors.New(coreerrors.CategoryNotFound, "trigger_unknown", "run `tend registry list` to see known triggers", false, "no command matches trigger %q", trigger)
	case 1:
		return candidates[0], nil
	default:
		triggers := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			triggers = append(triggers, candidate.Trigger)
		}
		sort.Strings(triggers)
		return command.Descriptor{}, coreerrors.New(coreerrors.CategoryInvalidInput, "trigger_ambiguous", "narrow the phrase to one of: "+strings.Join(triggers, ", "), false, "trigger %q matches %d commands", trigger, len(candidates))
	}
}
