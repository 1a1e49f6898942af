package hints

import (
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
)

// Policy decides what happens when a hint cannot be honored.
//
// Translators, codecs and validators call CantHandle for every hint value
// they cannot express. A non-nil return aborts the caller; a nil return means
// the caller continues with whatever it would do by default.
type Policy interface {
	CantHandle(name Name, value any, reason string) error
	Strict() bool
}

// StrictPolicy fails with an UnsupportedHintError.
type StrictPolicy struct{}

func (StrictPolicy) CantHandle(name Name, value any, reason string) error {
	return errors.WithStack(&errors.UnsupportedHintError{Hint: string(name), Value: value, Reason: reason})
}

func (StrictPolicy) Strict() bool { return true }

// PermissivePolicy logs and lets the caller continue.
type PermissivePolicy struct {
	Logger *zap.SugaredLogger
}

func (p PermissivePolicy) CantHandle(name Name, value any, reason string) error {
	logging.Or(p.Logger).Warnw("ignoring hint that cannot be handled",
		"hint", string(name), "value", value, "reason", reason)
	return nil
}

func (PermissivePolicy) Strict() bool { return false }

// PolicyFor returns the strict policy when strict is set, otherwise a
// permissive one logging to l.
func PolicyFor(strict bool, l *zap.SugaredLogger) Policy {
	if strict {
		return StrictPolicy{}
	}
	return PermissivePolicy{Logger: l}
}

// recordingPolicy wraps a Policy and remembers every complaint. It lets
// feasibility checks run a translator without side effects.
type recordingPolicy struct {
	inner      Policy
	complaints []error
}

func (r *recordingPolicy) CantHandle(name Name, value any, reason string) error {
	r.complaints = append(r.complaints, &errors.UnsupportedHintError{Hint: string(name), Value: value, Reason: reason})
	if r.inner == nil {
		return nil
	}
	return r.inner.CantHandle(name, value, reason)
}

func (r *recordingPolicy) Strict() bool { return r.inner != nil && r.inner.Strict() }

// Recorder returns a Policy that fails like StrictPolicy and a function
// reporting the first complaint seen, if any.
func Recorder() (Policy, func() error) {
	r := &recordingPolicy{inner: StrictPolicy{}}
	return r, func() error {
		if len(r.complaints) == 0 {
			return nil
		}
		return r.complaints[0]
	}
}
