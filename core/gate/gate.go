// Package gate classifies operations and authorizes the destructive ones.
// Additive and read operations always pass. A destructive operation needs
// either a dry-run (which returns a preview and the confirmation token for
// the real run) or a confirmation token matching the operation fingerprint.
// A version mismatch refuses with a conflict regardless of confirmation.
package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/jcs"
)

const (
	KindSessionInit      = "session.init"
	KindSessionUpdate    = "session.update"
	KindSessionTerminate = "session.terminate"
	KindSessionStatus    = "session.status"
	KindSessionLog       = "session.log"
	KindListCreate       = "list.create"
	KindListAddItem      = "list.add_item"
	KindListMoveItem     = "list.move_item"
	KindListDelete       = "list.delete"
	KindListRemoveStage  = "list.remove_stage"
	KindListShow         = "list.show"
	KindRegistryList     = "registry.list"
	KindRegistryResolve  = "registry.resolve"
)

type Class string

const (
	ClassRead        Class = "read"
	ClassAdditive    Class = "additive"
	ClassDestructive Class = "destructive"
)

type Verdict string

const (
	VerdictAllow  Verdict = "allow"
	VerdictDryRun Verdict = "dry_run"
	VerdictBlock  Verdict = "block"
)

const (
	ReasonConfirmationMissing  = "confirmation_missing"
	ReasonConfirmationMismatch = "confirmation_mismatch"
	ReasonVersionConflict      = "version_conflict"
	ReasonStageNotEmpty        = "stage_not_empty"
)

var classByKind = map[string]Class{
	KindSessionInit:      ClassAdditive,
	KindSessionUpdate:    ClassAdditive,
	KindSessionTerminate: ClassDestructive,
	KindSessionStatus:    ClassRead,
	KindSessionLog:       ClassRead,
	KindListCreate:       ClassAdditive,
	KindListAddItem:      ClassAdditive,
	KindListMoveItem:     ClassAdditive,
	KindListDelete:       ClassDestructive,
	KindListRemoveStage:  ClassDestructive,
	KindListShow:         ClassRead,
	KindRegistryList:     ClassRead,
	KindRegistryResolve:  ClassRead,
}

func Classify(kind string) (Class, error) {
	class, ok := classByKind[kind]
	if !ok {
		return "", coreerrors.New(coreerrors.CategoryInvalidInput, "operation_unknown", "use a known operation kind", false, "unknown operation kind %q", kind)
	}
	return class, nil
}

// Operation describes one gated mutation attempt against a single target.
// ObservedVersion is the version the caller last read (zero for creates);
// CurrentVersion is the on-disk version at evaluation time. Hazards carries
// operation-specific reason codes the store wants surfaced on any non-allow
// decision, e.g. a stage removal that would strand items.
type Operation struct {
	Kind            string
	Target          string
	ObservedVersion int64
	CurrentVersion  int64
	Hazards         []string
}

type Options struct {
	DryRun  bool
	Confirm string
}

type Decision struct {
	Kind        string   `json:"kind"`
	Target      string   `json:"target"`
	Class       Class    `json:"class"`
	Verdict     Verdict  `json:"verdict"`
	ReasonCodes []string `json:"reason_codes,omitempty"`
	// ConfirmToken is populated only on dry-run decisions: seeing the preview
	// is what earns the token for the destructive follow-up call.
	ConfirmToken string   `json:"confirm_token,omitempty"`
	Preview      *Preview `json:"preview,omitempty"`
}

// Fingerprint derives the confirmation token for an operation: a sha256 over
// the canonical JSON of kind, target, and the target's current version. Any
// successful mutation bumps the version and invalidates outstanding tokens.
func Fingerprint(kind, target string, version int64) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"kind":    kind,
		"target":  target,
		"version": version,
	})
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "fingerprint_failed", "", false)
	}
	canonical, err := jcs.CanonicalizeJSON(payload)
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "fingerprint_failed", "", false)
	}
	sum := sha256.Sum256(canonical)
	return "cfm_" + hex.EncodeToString(sum[:])[:24], nil
}

// Authorize evaluates one operation. Allow and dry-run come back without an
// error; blocks and conflicts come back as classified errors alongside the
// decision so callers can report both the verdict and the reason.
func Authorize(op Operation, opts Options, preview *PreviewInput) (Decision, error) {
	class, err := Classify(op.Kind)
	if err != nil {
		return Decision{}, err
	}
	decision := Decision{
		Kind:    op.Kind,
		Target:  op.Target,
		Class:   class,
		Verdict: VerdictAllow,
	}

	if op.ObservedVersion != 0 && op.ObservedVersion != op.CurrentVersion {
		decision.Verdict = VerdictBlock
		decision.ReasonCodes = mergeReasons(op.Hazards, ReasonVersionConflict)
		return decision, coreerrors.New(coreerrors.CategoryStateConflict, ReasonVersionConflict, "re-read the record and retry with its current version", true,
			"%s %s: observed version %d does not match current version %d", op.Kind, op.Target, op.ObservedVersion, op.CurrentVersion)
	}

	if class != ClassDestructive {
		return decision, nil
	}

	if opts.DryRun && opts.Confirm != "" {
		return decision, coreerrors.New(coreerrors.CategoryInvalidInput, "dry_run_confirm_exclusive", "pass either --dry-run or --confirm, not both", false,
			"%s %s: dry-run and confirmation are mutually exclusive", op.Kind, op.Target)
	}

	token, err := Fingerprint(op.Kind, op.Target, op.CurrentVersion)
	if err != nil {
		return Decision{}, err
	}

	if opts.DryRun {
		decision.Verdict = VerdictDryRun
		decision.ReasonCodes = mergeReasons(op.Hazards)
		decision.ConfirmToken = token
		if preview != nil {
			built, err := BuildPreview(*preview)
			if err != nil {
				return Decision{}, err
			}
			decision.Preview = &built
		}
		return decision, nil
	}

	if opts.Confirm == "" {
		decision.Verdict = VerdictBlock
		decision.ReasonCodes = mergeReasons(op.Hazards, ReasonConfirmationMissing)
		return decision, coreerrors.New(coreerrors.CategorySafetyBlocked, ReasonConfirmationMissing, "run with --dry-run to preview the change and obtain a confirmation token", false,
			"%s %s: destructive operation requires --dry-run or --confirm", op.Kind, op.Target)
	}
	if opts.Confirm != token {
		decision.Verdict = VerdictBlock
		decision.ReasonCodes = mergeReasons(op.Hazards, ReasonConfirmationMismatch)
		return decision, coreerrors.New(coreerrors.CategorySafetyBlocked, ReasonConfirmationMismatch, "re-run with --dry-run to obtain a fresh confirmation token", false,
			"%s %s: confirmation token does not match the operation fingerprint", op.Kind, op.Target)
	}

	decision.ReasonCodes = mergeReasons(op.Hazards)
	return decision, nil
}

func mergeReasons(hazards []string, codes ...string) []string {
	merged := make([]string, 0, len(hazards)+len(codes))
	seen := make(map[string]struct{}, len(hazards)+len(codes))
	for _, code := range append(append([]string(nil), hazards...), codes...) {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, duplicate := seen[code]; duplicate {
			continue
		}
		seen[code] = struct{}{}
		merged = append(merged, code)
	}
	sort.Strings(merged)
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// BlockedSummary renders reason codes for human output.
func BlockedSummary(decision Decision) string {
	if len(decision.ReasonCodes) == 0 {
		return string(decision.Verdict)
	}
	return fmt.Sprintf("%s (%s)", decision.Verdict, strings.Join(decision.ReasonCodes, ","))
}
