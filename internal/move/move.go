// Package move plans and runs a records move from one Source to one
// Target.
//
// Strategy selection, in order:
//   - direct: the target reads the source's directory in place, or the
//     source writes straight into the target directory
//   - staged: the source writes a temporary directory on a scratch root
//     both sides accept and the target loads it
//   - transcoded: the source is read as Arrow chunks and handed to the
//     target, either as chunks or through a temporary directory written in
//     the target's preferred format
//
// In strict mode (fail_if_cant_handle_hint) a source whose bytes already
// sit in one format aborts the move when the target names a hint it cannot
// handle. In permissive mode the same situation transcodes.
//
// A move is a sequential pipeline and the Mover starts no goroutines.
package move

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/metrics"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
	"github.com/bluelabsio/records-mover-sub001/internal/records/sources"
	"github.com/bluelabsio/records-mover-sub001/internal/records/targets"
)

// Options configure a Mover.
type Options struct {
	// Resolver reads and writes every URL of the move. Required.
	Resolver *location.Resolver
	// ScratchRoots maps a URL scheme to a directory under which temporary
	// directories are created, e.g. {"s3": "s3://bucket/scratch/"}.
	ScratchRoots map[string]string
	PI           records.ProcessingInstructions
	Logger       *zap.SugaredLogger
	// Mem allocates transcoding buffers; nil means the Go allocator.
	Mem memory.Allocator
}

// Mover runs one move. It is not safe for concurrent use.
type Mover struct {
	opts  Options
	log   *zap.SugaredLogger
	state State
	err   error
	plan  Plan
}

func New(opts Options) *Mover {
	if opts.Mem == nil {
		opts.Mem = memory.DefaultAllocator
	}
	log := logging.Or(opts.Logger)
	if opts.PI.Logger == nil {
		opts.PI.Logger = log
	}
	return &Mover{opts: opts, log: log}
}

// State is the current lifecycle state.
func (m *Mover) State() State { return m.state }

// Err is the error that moved the mover to Failed.
func (m *Mover) Err() error { return m.err }

func (m *Mover) transition(to State) error {
	if !m.state.canMoveTo(to) {
		return errors.Wrapf(ErrBadTransition, "%s to %s", m.state, to)
	}
	m.log.Debugw("move state", "from", m.state.String(), "to", to.String())
	m.state = to
	return nil
}

func (m *Mover) fail(err error) error {
	if m.state.canMoveTo(Failed) {
		m.state = Failed
		m.err = err
	}
	return err
}

// Move plans and runs the move of src into tgt. On failure no result is
// returned and the error names the offending hint or engine message.
func Move(ctx context.Context, src sources.Source, tgt targets.Target, opts Options) (records.MoveResult, error) {
	return New(opts).Run(ctx, src, tgt)
}

// Run plans and executes. A Mover runs at most once.
func (m *Mover) Run(ctx context.Context, src sources.Source, tgt targets.Target) (res records.MoveResult, err error) {
	if m.state != Idle {
		return records.MoveResult{}, errors.Wrapf(ErrBadTransition, "mover already %s", m.state)
	}
	start := time.Now()
	strategy := "none"
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordMove(strategy, status, endpointKind(tgt.Name()), res.MoveCount, time.Since(start))
	}()

	if err := m.opts.PI.Validate(); err != nil {
		return records.MoveResult{}, m.fail(err)
	}
	if m.opts.Resolver == nil {
		return records.MoveResult{}, m.fail(errors.New("move: no URL resolver configured"))
	}

	p, err := m.Plan(ctx, src, tgt)
	if err != nil {
		return records.MoveResult{}, m.fail(err)
	}
	strategy = string(p.Strategy)

	var n int64
	switch {
	case p.Strategy == Direct:
		n, err = m.direct(ctx, src, tgt, p)
	case p.Strategy == Staged:
		n, err = m.staged(ctx, src, tgt, p)
	case p.stream:
		n, err = m.stream(ctx, src, tgt.(targets.DataframeTarget))
	default:
		n, err = m.transcode(ctx, src, tgt, p)
	}
	if err != nil {
		m.log.Errorw("move failed", "stage", m.state.String(), "strategy", strategy, "error", err)
		return records.MoveResult{}, m.fail(err)
	}
	if err := m.transition(Done); err != nil {
		return records.MoveResult{}, m.fail(err)
	}

	res = records.MoveResult{MoveCount: n, Strategy: strategy}
	m.log.Infow("move done", "stage", "done", "strategy", strategy, "rows", n, "duration", time.Since(start).String())
	return res, nil
}

// Plan picks the strategy. It moves the mover from Idle to Planned.
func (m *Mover) Plan(ctx context.Context, src sources.Source, tgt targets.Target) (Plan, error) {
	p, err := m.choose(src, tgt)
	if err != nil {
		return Plan{}, err
	}
	if err := m.transition(Planned); err != nil {
		return Plan{}, err
	}
	m.plan = p
	kv := []any{"stage", "plan", "strategy", string(p.Strategy), "source", src.Name(), "target", tgt.Name()}
	if p.Format.Type != "" {
		kv = append(kv, "format", p.Format.String())
	}
	if p.ScratchRoot != "" {
		kv = append(kv, "scratch", p.ScratchRoot)
	}
	m.log.Infow("strategy chosen", kv...)
	return p, nil
}

func (m *Mover) choose(src sources.Source, tgt targets.Target) (Plan, error) {
	pi := m.opts.PI

	if ip, ok := src.(sources.InPlace); ok {
		dir, f := ip.Directory()
		if tgt.CanLoad(f) && accepts(tgt.AcceptedSchemes(), location.Scheme(dir.URL)) {
			return Plan{Strategy: Direct, Format: f, from: dir}, nil
		}
	}
	if d, ok := tgt.(targets.Destination); ok {
		dir, f := d.Destination()
		if src.CanEmit(f) && accepts(src.AcceptedSchemes(), location.Scheme(dir.URL)) {
			return Plan{Strategy: Direct, Format: f, into: dir}, nil
		}
	}

	if f, ok := negotiate(src, tgt); ok {
		if root, ok := scratchRoot(m.opts.ScratchRoots, m.opts.Resolver, src.AcceptedSchemes(), tgt.AcceptedSchemes()); ok {
			return Plan{Strategy: Staged, Format: f, ScratchRoot: root}, nil
		}
		m.log.Infow("no scratch root both sides accept; transcoding",
			"stage", "plan", "format", f.String(),
			"source_schemes", src.AcceptedSchemes(), "target_schemes", tgt.AcceptedSchemes())
	} else if err := m.checkFixed(src, tgt, pi); err != nil {
		return Plan{}, err
	}

	if dt, ok := tgt.(targets.DataframeTarget); ok && dt.CanLoadDataframes() {
		return Plan{Strategy: Transcoded, stream: true}, nil
	}
	f, ok := transcodeFormat(tgt)
	if !ok {
		return Plan{}, errors.Newf("%s advertises no format the transcoder can write", tgt.Name())
	}
	root, ok := scratchRoot(m.opts.ScratchRoots, m.opts.Resolver, tgt.AcceptedSchemes())
	if !ok {
		return Plan{}, errors.WithHint(
			errors.Newf("no scratch root on a scheme %s reads from (%s)", tgt.Name(), strings.Join(tgt.AcceptedSchemes(), ", ")),
			"configure scratch.s3, scratch.gs or scratch.file")
	}
	return Plan{Strategy: Transcoded, Format: f, ScratchRoot: root}, nil
}

// checkFixed aborts a strict move whose source bytes are in a format the
// target refuses for a hint reason.
func (m *Mover) checkFixed(src sources.Source, tgt targets.Target, pi records.ProcessingInstructions) error {
	fx, ok := src.(sources.Fixed)
	if !ok {
		return nil
	}
	c, ok := tgt.(targets.Checker)
	if !ok {
		return nil
	}
	// Ask strictly so the reason comes back even in permissive mode.
	strict := pi
	strict.FailIfCantHandleHint = true
	err := c.CheckLoad(fx.Format(), strict)
	if err == nil {
		return nil
	}
	var uh *errors.UnsupportedHintError
	if !errors.As(err, &uh) {
		return nil
	}
	if pi.FailIfCantHandleHint {
		return err
	}
	m.log.Warnw("cant_handle_hint; transcoding", "stage", "plan", "hint", uh.Hint, "value", uh.Value, "target", tgt.Name())
	return nil
}

func (m *Mover) direct(ctx context.Context, src sources.Source, tgt targets.Target, p Plan) (int64, error) {
	pi := m.opts.PI
	if err := m.transition(Materializing); err != nil {
		return 0, err
	}
	if p.into != nil {
		n, err := src.ToDirectory(ctx, p.into, p.Format, pi)
		if err != nil {
			return 0, err
		}
		return n, m.transition(Loading)
	}

	s, err := src.Schema(ctx, pi)
	if err != nil {
		return 0, err
	}
	if err := m.transition(Loading); err != nil {
		return 0, err
	}
	return tgt.LoadDirectory(ctx, p.from, p.Format, s, pi)
}

func (m *Mover) staged(ctx context.Context, src sources.Source, tgt targets.Target, p Plan) (int64, error) {
	pi := m.opts.PI
	var n int64
	err := m.opts.Resolver.TemporaryDirectory(ctx, p.ScratchRoot, func(url string) error {
		dir := directory.New(m.opts.Resolver, url, m.log)
		if err := m.transition(Materializing); err != nil {
			return err
		}
		emitted, err := src.ToDirectory(ctx, dir, p.Format, pi)
		if err != nil {
			return err
		}
		s, err := src.Schema(ctx, pi)
		if err != nil {
			return err
		}
		if err := m.transition(Loading); err != nil {
			return err
		}
		loaded, err := tgt.LoadDirectory(ctx, dir, p.Format, s, pi)
		if err != nil {
			return err
		}
		n = loaded
		if n == records.UnknownCount {
			n = emitted
		}
		return nil
	})
	return n, err
}

func (m *Mover) stream(ctx context.Context, src sources.Source, tgt targets.DataframeTarget) (int64, error) {
	pi := m.opts.PI
	if err := m.transition(Materializing); err != nil {
		return 0, err
	}
	s, err := src.Schema(ctx, pi)
	if err != nil {
		return 0, err
	}
	it, err := src.Dataframes(ctx, pi)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	if err := m.transition(Loading); err != nil {
		return 0, err
	}
	return tgt.LoadDataframes(ctx, it, s, pi)
}

// transcode writes the source's chunks into a temporary directory in
// p.Format, cast to the schema the target will load, then loads it.
func (m *Mover) transcode(ctx context.Context, src sources.Source, tgt targets.Target, p Plan) (int64, error) {
	pi := m.opts.PI
	if err := m.transition(Materializing); err != nil {
		return 0, err
	}
	s, err := src.Schema(ctx, pi)
	if err != nil {
		return 0, err
	}
	if a, ok := tgt.(targets.SchemaAdjuster); ok {
		s = a.AdjustSchema(p.Format, s)
	}

	var n int64
	err = m.opts.Resolver.TemporaryDirectory(ctx, p.ScratchRoot, func(url string) error {
		dir := directory.New(m.opts.Resolver, url, m.log)
		written, err := m.writeChunks(ctx, src, dir, p.Format, s)
		if err != nil {
			return err
		}
		m.log.Infow("transcoded", "stage", "materialize", "format", p.Format.String(), "rows", written)
		if err := m.transition(Loading); err != nil {
			return err
		}
		loaded, err := tgt.LoadDirectory(ctx, dir, p.Format, s, pi)
		if err != nil {
			return err
		}
		n = loaded
		if n == records.UnknownCount {
			n = written
		}
		return nil
	})
	return n, err
}

// writeChunks drains the source into one data file of dir, releasing each
// chunk before reading the next.
func (m *Mover) writeChunks(ctx context.Context, src sources.Source, dir *directory.Directory, f records.Format, s *schema.Schema) (int64, error) {
	pi := m.opts.PI
	it, err := src.Dataframes(ctx, pi)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var w *directory.Writer
	defer func() {
		if w != nil {
			w.Close()
		}
	}()
	for {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		cast, err := schema.CastDataframeTypes(m.opts.Mem, rec, s)
		rec.Release()
		if err != nil {
			return 0, err
		}
		if w == nil {
			w, err = dir.NewWriter(ctx, 0, f, cast.Schema(), pi)
			if err != nil {
				cast.Release()
				return 0, err
			}
		}
		err = w.WriteChunk(ctx, cast)
		cast.Release()
		if err != nil {
			return 0, err
		}
	}
	if w == nil {
		if w, err = dir.NewWriter(ctx, 0, f, s.ArrowSchema(), pi); err != nil {
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	if err := dir.Finalize(ctx, f, s, []string{w.URL()}); err != nil {
		return 0, err
	}
	return w.Rows(), nil
}

// endpointKind is the engine or endpoint type of a Name, for metric labels.
func endpointKind(name string) string {
	kind, _, _ := strings.Cut(name, ":")
	return kind
}
