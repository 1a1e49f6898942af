package db

import (
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// TranslateFunc turns validated hints into engine options, removing every
// hint it reads from u and reporting values it cannot express through p.
type TranslateFunc func(v hints.Validated, u hints.Unhandled, p hints.Policy) error

// Date and time formats matching ISO output.
var (
	ISODate       = []string{"YYYY-MM-DD"}
	ISOTime       = []string{"HH24:MI:SS", "HH:MI:SS"}
	ISODateTime   = []string{"YYYY-MM-DD HH24:MI:SS", "YYYY-MM-DD HH:MI:SS"}
	ISODateTimeTZ = []string{"YYYY-MM-DD HH24:MI:SSOF", "YYYY-MM-DD HH:MI:SSOF"}
)

// OneOf reports whether v is empty or one of allowed.
func OneOf(v string, allowed []string) bool {
	if v == "" {
		return true
	}
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Feasible reports whether translate consumes every hint of f without a
// complaint. Only delimited formats have hints to translate.
func Feasible(f records.Format, translate TranslateFunc) bool {
	if !f.IsDelimited() {
		return false
	}
	pi := records.DefaultProcessingInstructions()
	pi.Logger = zap.NewNop().Sugar()
	v, err := f.Validate(pi)
	if err != nil {
		return false
	}
	p, first := hints.Recorder()
	u := hints.NewUnhandled()
	if err := translate(v, u, p); err != nil {
		return false
	}
	return first() == nil && len(u.Remaining()) == 0
}

// Translate validates f under pi, runs translate, and enforces that every
// hint was consumed. The consumed hints are logged.
func Translate(engine string, f records.Format, pi records.ProcessingInstructions, translate TranslateFunc) (hints.Validated, error) {
	log := logging.Or(pi.Logger)
	if !f.IsDelimited() {
		return hints.Validated{}, errors.Newf("%s: format %s carries no hints", engine, f.Type)
	}
	v, err := f.Validate(pi)
	if err != nil {
		return hints.Validated{}, err
	}
	u := hints.NewUnhandled()
	p := pi.HintPolicy()
	if err := translate(v, u, p); err != nil {
		return hints.Validated{}, err
	}
	if err := u.Enforce(p, v); err != nil {
		return hints.Validated{}, err
	}
	log.Infow("translated hints", "engine", engine, "format", f.String(), "consumed", u.Consumed())
	return v, nil
}
