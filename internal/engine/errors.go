package engine

import (
	"errors"
	"fmt"
)

// Phase names the submission stage an error occurred in.
type Phase string

const (
	// PhaseConfig covers request validation: unknown departments, bad
	// pools or priorities, group membership problems.
	PhaseConfig Phase = "config"

	// PhaseScan covers the dependency scan that finds an asset's
	// consumers.
	PhaseScan Phase = "scan"

	// PhaseVersions covers version-store reads outside the graph build:
	// the shot census for updates and direct version queries.
	PhaseVersions Phase = "versions"

	// PhaseBuild covers job graph construction and fingerprinting.
	PhaseBuild Phase = "build"

	// PhaseSubmit covers spooling and the farm submission command.
	PhaseSubmit Phase = "submit"

	// PhaseLedger covers recording the submission. Jobs are already on
	// the farm when this phase fails.
	PhaseLedger Phase = "ledger"
)

// PhaseError wraps a failure with the stage it occurred in. Every failed
// engine call returns exactly one.
type PhaseError struct {
	Phase Phase
	Err   error
}

// Error implements the error interface.
func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *PhaseError) Unwrap() error { return e.Err }

// FailedPhase extracts the phase from an engine error.
// Uses errors.As to handle wrapped errors.
func FailedPhase(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}

// IsConfigError reports whether the failure was request or project
// validation, the cases a caller fixes by changing inputs rather than
// retrying.
func IsConfigError(err error) bool {
	phase, ok := FailedPhase(err)
	return ok && phase == PhaseConfig
}

// IsSubmitError reports whether the farm rejected or failed the batch.
// Spooled files remain on disk for inspection.
func IsSubmitError(err error) bool {
	phase, ok := FailedPhase(err)
	return ok && phase == PhaseSubmit
}

func phaseErr(phase Phase, err error) error {
	return &PhaseError{Phase: phase, Err: err}
}
