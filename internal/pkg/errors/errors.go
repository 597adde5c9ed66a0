// Package errors re-exports github.com/cockroachdb/errors and declares the
// sentinels the assessment engine classifies failures with.
//
// Wrap sentinels with errors.Mark or errors.Wrap so callers can test the class
// with errors.Is while keeping the original message and stack.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
	WithHint    = crdb.WithHint
	Mark        = crdb.Mark
	Is          = crdb.Is
	IsAny       = crdb.IsAny
	As          = crdb.As
	Unwrap      = crdb.Unwrap
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = New("invalid argument")
	// ErrConfig marks invalid item banks, plans or item parameters. Fatal
	// before a session starts and terminal for a session that meets one.
	ErrConfig = New("invalid configuration")
	// ErrPersistence marks storage failures. Exposure ledger failures are
	// recovered locally; session archive failures are fatal.
	ErrPersistence = New("persistence failure")
	// ErrAborted marks an assessment cancelled between items.
	ErrAborted = New("assessment aborted")
	// ErrAssessmentFailed is the single terminal failure state surfaced to
	// callers of the runner.
	ErrAssessmentFailed = New("assessment could not complete")
)
