package move

import (
	"sort"

	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/sources"
	"github.com/bluelabsio/records-mover-sub001/internal/records/targets"
)

// Strategy names how bytes get from source to target.
type Strategy string

const (
	// Direct needs no temporary directory: the target reads the source's
	// directory where it sits, or the source writes straight into the
	// target directory.
	Direct Strategy = "direct"
	// Staged has the source write a temporary directory that the target
	// then loads.
	Staged Strategy = "staged"
	// Transcoded reads the source as Arrow chunks and writes them in a
	// format the target takes.
	Transcoded Strategy = "transcoded"
)

// schemePreference orders scratch schemes; object storage comes first.
var schemePreference = []string{"s3", "gs", "file"}

// Plan is decided once per move and only read afterwards.
type Plan struct {
	Strategy Strategy
	// Format is the byte-level format that crosses between the two sides.
	// For a streamed transcode it is the zero Format.
	Format records.Format
	// ScratchRoot is the directory temporary directories are made under.
	// Empty when the plan needs none.
	ScratchRoot string

	// from is the source's own directory for an in-place direct move.
	from *directory.Directory
	// into is the target's directory for a direct move into it.
	into *directory.Directory
	// stream is set for a transcode into a DataframeTarget.
	stream bool
}

// accepts reports whether scheme is in schemes; nil accepts everything.
func accepts(schemes []string, scheme string) bool {
	if schemes == nil {
		return true
	}
	for _, s := range schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// negotiate returns the first format the source can emit and the target
// can load, in the target's order of preference and then the source's.
func negotiate(src sources.Source, tgt targets.Target) (records.Format, bool) {
	for _, f := range tgt.KnownSupportedFormats() {
		if src.CanEmit(f) && tgt.CanLoad(f) {
			return f, true
		}
	}
	for _, f := range src.KnownSupportedFormats() {
		if src.CanEmit(f) && tgt.CanLoad(f) {
			return f, true
		}
	}
	return records.Format{}, false
}

// scratchRoot picks a configured root on a scheme every side accepts.
func scratchRoot(roots map[string]string, loc *location.Resolver, sides ...[]string) (string, bool) {
	order := append([]string(nil), schemePreference...)
	var extra []string
	for scheme := range roots {
		known := false
		for _, p := range schemePreference {
			known = known || p == scheme
		}
		if !known {
			extra = append(extra, scheme)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	for _, scheme := range order {
		root, ok := roots[scheme]
		if !ok || root == "" || !loc.Supports(scheme) {
			continue
		}
		all := true
		for _, side := range sides {
			all = all && accepts(side, scheme)
		}
		if all {
			return root, true
		}
	}
	return "", false
}

// transcodeFormat is the first format the target loads that the
// dataframe writers can produce.
func transcodeFormat(tgt targets.Target) (records.Format, bool) {
	for _, f := range tgt.KnownSupportedFormats() {
		if (f.Type == records.Delimited || f.Type == records.Parquet) && tgt.CanLoad(f) {
			return f, true
		}
	}
	return records.Format{}, false
}
