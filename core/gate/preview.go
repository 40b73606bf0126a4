package gate

import (
	coreerrors "github.com/davidahmann/tend/core/errors"
	"github.com/davidahmann/tend/core/jcs"
)

// PreviewInput carries the current and would-be record states plus the
// store's human-readable change summary. After is nil when the change removes
// the record entirely.
type PreviewInput struct {
	Before  any
	After   any
	Summary []string
}

// Preview is the dry-run diff: content digests on both sides plus the change
// summary. Identical digests mean the operation would be a no-op.
type Preview struct {
	BeforeDigest string   `json:"before_digest,omitempty"`
	AfterDigest  string   `json:"after_digest,omitempty"`
	Changed      bool     `json:"changed"`
	Summary      []string `json:"summary,omitempty"`
}

func BuildPreview(input PreviewInput) (Preview, error) {
	preview := Preview{Summary: append([]string(nil), input.Summary...)}
	if input.Before != nil {
		digest, err := jcs.DigestValue(input.Before)
		if err != nil {
			return Preview{}, coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "preview_digest_failed", "", false)
		}
		preview.BeforeDigest = digest
	}
	if input.After != nil {
		digest, err := jcs.DigestValue(input.After)
		if err != nil {
			return Preview{}, coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "preview_digest_failed", "", false)
		}
		preview.AfterDigest = digest
	}
	preview.Changed = preview.BeforeDigest != preview.AfterDigest
	return preview, nil
}
