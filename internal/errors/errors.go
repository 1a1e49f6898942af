// Package errors provides error handling for the records mover.
//
// It re-exports github.com/cockroachdb/errors so that every package gets
// stack traces, wrapping and hints from a single import, and it defines the
// typed errors a move can fail with:
//
//	UnsupportedHintError   a translator cannot express a hint value
//	UnsupportedSchemaError a serialized schema carries an unknown version tag
//	UnsniffableStreamError the sniffer could not inspect the input
//	LoadError/UnloadError  an engine bulk operation failed
//	ConfigError            processing instructions or hints are contradictory
//
// Callers inspect them with errors.As:
//
//	var uh *errors.UnsupportedHintError
//	if errors.As(err, &uh) {
//	    log.Printf("hint %s=%v", uh.Hint, uh.Value)
//	}
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
	GetAllHints = crdb.GetAllHints
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// UnsupportedHintError reports a hint value that a translator, codec or
// validator cannot express.
type UnsupportedHintError struct {
	Hint   string
	Value  any
	Reason string
}

func (e *UnsupportedHintError) Error() string {
	v := "none"
	if e.Value != nil {
		v = fmt.Sprintf("%q", fmt.Sprint(e.Value))
	}
	if e.Reason == "" {
		return fmt.Sprintf("unsupported hint %s=%s", e.Hint, v)
	}
	return fmt.Sprintf("unsupported hint %s=%s: %s", e.Hint, v, e.Reason)
}

// UnsupportedSchemaError reports a schema document whose version tag is not
// recognized.
type UnsupportedSchemaError struct {
	Version string
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("unsupported records schema version %q", e.Version)
}

// UnsniffableStreamError reports input the format sniffer could not inspect.
type UnsniffableStreamError struct {
	Reason string
}

func (e *UnsniffableStreamError) Error() string {
	return "cannot sniff stream: " + e.Reason
}

// LoadError wraps a failure raised by an engine while bulk loading.
type LoadError struct {
	Engine string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s load failed: %v", e.Engine, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// UnloadError wraps a failure raised by an engine while bulk unloading.
type UnloadError struct {
	Engine string
	Err    error
}

func (e *UnloadError) Error() string {
	return fmt.Sprintf("%s unload failed: %v", e.Engine, e.Err)
}

func (e *UnloadError) Unwrap() error { return e.Err }

// ConfigError reports invalid processing instructions or contradictory hints.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Option == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Option, e.Reason)
}

// NewLoadError wraps err as a LoadError unless it already is one or is nil.
func NewLoadError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if As(err, &le) {
		return err
	}
	return WithStack(&LoadError{Engine: engine, Err: err})
}

// NewUnloadError wraps err as an UnloadError unless it already is one or is nil.
func NewUnloadError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UnloadError
	if As(err, &ue) {
		return err
	}
	return WithStack(&UnloadError{Engine: engine, Err: err})
}
