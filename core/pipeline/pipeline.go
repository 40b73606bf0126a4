// Package pipeline drives every mutation through the same strictly
// sequential states: Pending, Validated, SafetyChecked, Applied, Persisted.
// Rejection is only possible before the apply step, so a rejected call is
// guaranteed to have changed nothing. Persisted is the only success terminal;
// a dry-run stops at SafetyChecked carrying its preview.
package pipeline

import (
	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/gate"
	"github.com/davidahmann/tend/core/schema/validate"
)

type State string

const (
	StatePending       State = "pending"
	StateValidated     State = "validated"
	StateSafetyChecked State = "safety_checked"
	StateApplied       State = "applied"
	StatePersisted     State = "persisted"
	StateRejected      State = "rejected"
)

// Mutation is one intent plus everything the pipeline needs to carry it out.
// Record is the complete would-be record; validation sees the final shape,
// not a delta. Apply commits the already-computed candidate in memory and
// cannot fail; Persist performs the compare-and-swap durable write.
type Mutation struct {
	Operation gate.Operation
	Options   gate.Options
	SchemaRef string
	Record    any
	Preview   *gate.PreviewInput
	Apply     func()
	Persist   func() error
}

type Outcome struct {
	State      State                `json:"state"`
	Trace      []State              `json:"trace"`
	Decision   gate.Decision        `json:"decision"`
	Violations []validate.Violation `json:"violations,omitempty"`
	DryRun     bool                 `json:"dry_run,omitempty"`
}

// Run executes the state machine for one mutation. The returned error is nil
// exactly when the outcome state is Persisted or a dry-run SafetyChecked.
func Run(validator *validate.Validator, mutation Mutation) (Outcome, error) {
	outcome := Outcome{State: StatePending, Trace: []State{StatePending}}

	violations, err := validator.ValidateRecord(mutation.SchemaRef, mutation.Record)
	if err != nil {
		return reject(outcome), err
	}
	if len(violations) > 0 {
		outcome.Violations = violations
		return reject(outcome), validate.AsError(mutation.SchemaRef, violations)
	}
	outcome = advance(outcome, StateValidated)

	decision, err := gate.Authorize(mutation.Operation, mutation.Options, mutation.Preview)
	outcome.Decision = decision
	if err != nil {
		return reject(outcome), err
	}
	outcome = advance(outcome, StateSafetyChecked)
	if decision.Verdict == gate.VerdictDryRun {
		outcome.DryRun = true
		return outcome, nil
	}

	if mutation.Apply != nil {
		mutation.Apply()
	}
	outcome = advance(outcome, StateApplied)

	if mutation.Persist == nil {
		return outcome, coreerrors.New(coreerrors.CategoryInternalFailure, "persist_missing", "", false, "%s %s: mutation has no persist step", mutation.Operation.Kind, mutation.Operation.Target)
	}
	if err := mutation.Persist(); err != nil {
		return outcome, err
	}
	return advance(outcome, StatePersisted), nil
}

func advance(outcome Outcome, state State) Outcome {
	outcome.State = state
	outcome.Trace = append(outcome.Trace, state)
	return outcome
}

func reject(outcome Outcome) Outcome {
	return advance(outcome, StateRejected)
}
