package delimited

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// Writer renders records as delimited text.
type Writer struct {
	bw      *bufio.Writer
	encoder io.WriteCloser
	codec   io.WriteCloser

	delim      string
	terminator string
	quote      string
	escape     string
	doubleq    bool
	quoting    hints.QuotingType
	numeric    []bool
	header     bool
}

// NewWriter writes to w as described by v. Close must be called to flush
// the charset encoder and compressor; w itself is not closed.
func NewWriter(w io.Writer, v hints.Validated) (*Writer, error) {
	if v.FieldDelimiter == "" {
		return nil, errors.WithStack(&errors.ConfigError{Option: string(hints.FieldDelimiter), Reason: "empty delimiter"})
	}
	if v.Quoting != hints.QuotingNone && v.QuoteChar == "" {
		return nil, errors.WithStack(&errors.ConfigError{Option: string(hints.QuoteChar), Reason: "quoting requires a quote character"})
	}
	codec, err := Compress(w, v.Compression)
	if err != nil {
		return nil, err
	}
	enc, err := Encode(codec, v.Encoding)
	if err != nil {
		codec.Close()
		return nil, err
	}
	term := v.RecordTerminator
	if term == "" {
		term = "\n"
	}
	return &Writer{
		bw:         bufio.NewWriterSize(enc, 64*1024),
		encoder:    enc,
		codec:      codec,
		delim:      v.FieldDelimiter,
		terminator: term,
		quote:      v.QuoteChar,
		escape:     v.Escape,
		doubleq:    v.DoubleQuote,
		quoting:    v.Quoting,
		header:     v.HeaderRow,
	}, nil
}

// SetNumericColumns marks the columns left unquoted under nonnumeric
// quoting.
func (w *Writer) SetNumericColumns(mask []bool) { w.numeric = mask }

// WriteHeader writes names as the first record when the hints ask for a
// header row, and does nothing otherwise.
func (w *Writer) WriteHeader(names []string) error {
	if !w.header {
		return nil
	}
	rec := make([]*string, len(names))
	for i := range names {
		rec[i] = &names[i]
	}
	return w.write(rec, true)
}

// Write writes one record.
func (w *Writer) Write(rec []*string) error { return w.write(rec, false) }

func (w *Writer) write(rec []*string, header bool) error {
	for i, f := range rec {
		if i > 0 {
			w.bw.WriteString(w.delim)
		}
		if f == nil {
			continue
		}
		if err := w.writeField(*f, w.mustQuote(i, *f, header)); err != nil {
			return errors.Wrapf(err, "column %d", i)
		}
	}
	_, err := w.bw.WriteString(w.terminator)
	return err
}

func (w *Writer) mustQuote(col int, v string, header bool) bool {
	switch w.quoting {
	case hints.QuotingAll:
		return true
	case hints.QuotingNonNumeric:
		if header || col >= len(w.numeric) || !w.numeric[col] {
			return true
		}
		return w.special(v)
	case hints.QuotingMinimal:
		return v == "" || w.special(v)
	}
	return false
}

func (w *Writer) special(v string) bool {
	return strings.Contains(v, w.delim) ||
		strings.Contains(v, w.quote) ||
		strings.Contains(v, w.terminator) ||
		strings.ContainsAny(v, "\r\n") ||
		(w.escape != "" && strings.Contains(v, w.escape))
}

func (w *Writer) writeField(v string, quoted bool) error {
	if quoted {
		w.bw.WriteString(w.quote)
	}
	for len(v) > 0 {
		switch {
		case w.escape != "" && strings.HasPrefix(v, w.escape):
			w.bw.WriteString(w.escape)
			w.bw.WriteString(w.escape)
			v = v[len(w.escape):]
		case quoted && strings.HasPrefix(v, w.quote):
			switch {
			case w.doubleq:
				w.bw.WriteString(w.quote)
			case w.escape != "":
				w.bw.WriteString(w.escape)
			default:
				return errors.New("quote character in field needs doublequote or an escape character")
			}
			w.bw.WriteString(w.quote)
			v = v[len(w.quote):]
		case !quoted && (strings.HasPrefix(v, w.delim) || w.atTerminator(v)):
			if w.escape == "" {
				return errors.New("field contains a delimiter or terminator but quoting and escaping are off")
			}
			w.bw.WriteString(w.escape)
			w.bw.WriteString(v[:1])
			v = v[1:]
		case !quoted && w.quoting != hints.QuotingNone && strings.HasPrefix(v, w.quote) && w.escape != "":
			w.bw.WriteString(w.escape)
			w.bw.WriteString(w.quote)
			v = v[len(w.quote):]
		default:
			w.bw.WriteString(v[:1])
			v = v[1:]
		}
	}
	if quoted {
		w.bw.WriteString(w.quote)
	}
	return nil
}

func (w *Writer) atTerminator(v string) bool {
	return strings.HasPrefix(v, w.terminator)
}

// Flush writes buffered records through to the encoder.
func (w *Writer) Flush() error { return w.bw.Flush() }

// Close flushes all layers and finishes the compressed stream.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.encoder.Close(); err != nil {
		return errors.Wrap(err, "flush encoder")
	}
	return errors.Wrap(w.codec.Close(), "finish compression")
}

// FormatFloat renders a float the way the delimited writers expect: the
// shortest representation that round-trips.
func FormatFloat(f float64, bits int) string {
	return strconv.FormatFloat(f, 'g', -1, bits)
}
