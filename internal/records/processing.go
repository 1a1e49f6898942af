package records

import (
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// ProcessingInstructions are the run-time policy knobs of a move.
type ProcessingInstructions struct {
	// FailIfDontUnderstand makes unrecognized hint names fatal.
	FailIfDontUnderstand bool
	// FailIfCantHandleHint makes hint values a translator cannot express fatal.
	FailIfCantHandleHint bool
	// FailIfRowInvalid rejects the load on the first bad row.
	FailIfRowInvalid bool
	// MaxFailureRows is the engine-level bad-row tolerance; nil leaves it to
	// FailIfRowInvalid.
	MaxFailureRows *int64
	// MaxInferenceRows caps the rows sampled for schema refinement.
	MaxInferenceRows int
	// ChunkRows is the row count of each in-memory chunk while transcoding.
	ChunkRows int

	Logger *zap.SugaredLogger
}

const (
	DefaultMaxInferenceRows = 1000
	DefaultChunkRows        = 10000
)

// DefaultProcessingInstructions returns strict instructions.
func DefaultProcessingInstructions() ProcessingInstructions {
	return ProcessingInstructions{
		FailIfDontUnderstand: true,
		FailIfCantHandleHint: true,
		FailIfRowInvalid:     true,
		MaxInferenceRows:     DefaultMaxInferenceRows,
		ChunkRows:            DefaultChunkRows,
	}
}

// Validate rejects inconsistent instructions with a ConfigError.
func (pi ProcessingInstructions) Validate() error {
	if pi.MaxFailureRows != nil && *pi.MaxFailureRows < 0 {
		return errors.WithStack(&errors.ConfigError{Option: "max_failure_rows", Reason: "must not be negative"})
	}
	if pi.MaxFailureRows != nil && *pi.MaxFailureRows > 0 && pi.FailIfRowInvalid {
		return errors.WithStack(&errors.ConfigError{Option: "max_failure_rows", Reason: "conflicts with fail_if_row_invalid"})
	}
	if pi.MaxInferenceRows <= 0 {
		return errors.WithStack(&errors.ConfigError{Option: "max_inference_rows", Reason: "must be positive"})
	}
	if pi.ChunkRows <= 0 {
		return errors.WithStack(&errors.ConfigError{Option: "chunk_rows", Reason: "must be positive"})
	}
	return nil
}

// HintPolicy is the policy for hint values that cannot be honored.
func (pi ProcessingInstructions) HintPolicy() hints.Policy {
	return hints.PolicyFor(pi.FailIfCantHandleHint, pi.Logger)
}

// DontUnderstandPolicy is the policy for unrecognized hint names.
func (pi ProcessingInstructions) DontUnderstandPolicy() hints.Policy {
	return hints.PolicyFor(pi.FailIfDontUnderstand, pi.Logger)
}

// UnknownCount marks a MoveResult whose engine did not report a row count.
const UnknownCount int64 = -1

// MoveResult is the outcome of a successful move.
type MoveResult struct {
	MoveCount int64
	Strategy  string
}

// CountKnown reports whether MoveCount holds a real row count.
func (r MoveResult) CountKnown() bool { return r.MoveCount >= 0 }

// Unknown returns a result whose row count was not reported.
func Unknown() MoveResult { return MoveResult{MoveCount: UnknownCount} }

// Count returns a result with a known row count.
func Count(n int64) MoveResult { return MoveResult{MoveCount: n} }
