// Package delimited reads and writes delimited text as described by a
// validated hint set: delimiter, record terminator, quoting, escaping,
// compression and character set.
//
// Fields are exchanged as []*string. A nil entry is a null: an empty,
// unquoted and unescaped field on read, and an empty field on write.
package delimited

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// ParseError locates a malformed record.
type ParseError struct {
	Record int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Record, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	ErrUnterminatedQuote = errors.New("unterminated quoted field")
	ErrDanglingEscape    = errors.New("escape character at end of input")
	ErrBareQuote         = errors.New("quote character after quoted field")
)

// Reader tokenizes delimited records.
type Reader struct {
	br     *bufio.Reader
	closer io.Closer

	delim      string
	terminator string
	quote      string
	escape     string
	doubleq    bool
	quoting    bool

	header  []string
	records int
}

// NewReader opens r as described by v. The stream is decompressed and
// decoded to UTF-8 first. When v.HeaderRow is set the first record is
// consumed and exposed through Header.
func NewReader(r io.Reader, v hints.Validated) (*Reader, error) {
	dr, err := Decompress(r, v.Compression)
	if err != nil {
		return nil, err
	}
	text, err := Decode(dr, v.Encoding)
	if err != nil {
		dr.Close()
		return nil, err
	}
	rd := &Reader{
		br:         bufio.NewReaderSize(text, 64*1024),
		closer:     dr,
		delim:      v.FieldDelimiter,
		terminator: v.RecordTerminator,
		quote:      v.QuoteChar,
		escape:     v.Escape,
		doubleq:    v.DoubleQuote,
		quoting:    v.Quoting != hints.QuotingNone && v.QuoteChar != "",
	}
	if rd.delim == "" {
		dr.Close()
		return nil, errors.WithStack(&errors.ConfigError{Option: string(hints.FieldDelimiter), Reason: "empty delimiter"})
	}
	if v.HeaderRow {
		rec, err := rd.Read()
		if err != nil && err != io.EOF {
			dr.Close()
			return nil, errors.Wrap(err, "read header")
		}
		rd.header = make([]string, len(rec))
		for i, f := range rec {
			if f != nil {
				rd.header[i] = *f
			}
		}
		if len(rd.header) > 0 {
			rd.header[0] = strings.TrimPrefix(rd.header[0], "\uFEFF")
		}
	}
	return rd, nil
}

// Header returns the header row, or nil when the input has none.
func (r *Reader) Header() []string { return r.header }

// Close releases the decompressor. The underlying reader is left open.
func (r *Reader) Close() error { return r.closer.Close() }

// Read returns the next record. It returns io.EOF once the input is
// exhausted; a final record without terminator is still returned. A blank
// line is a record with one null field, which is how writers emit a null
// in a single-column file.
func (r *Reader) Read() ([]*string, error) {
	r.records++
	var (
		fields   []*string
		buf      strings.Builder
		quoted   bool
		escaped  bool
		inQuotes bool
		started  bool
	)
	endField := func() {
		if !quoted && !escaped && buf.Len() == 0 {
			fields = append(fields, nil)
		} else {
			s := buf.String()
			fields = append(fields, &s)
		}
		buf.Reset()
		quoted, escaped = false, false
	}

	for {
		if _, err := r.br.Peek(1); err != nil {
			if err != io.EOF {
				return nil, err
			}
			if inQuotes {
				return nil, &ParseError{Record: r.records, Err: ErrUnterminatedQuote}
			}
			if !started {
				return nil, io.EOF
			}
			endField()
			return fields, nil
		}
		started = true

		if r.escape != "" && r.consume(r.escape) {
			ch, _, err := r.br.ReadRune()
			if err != nil {
				return nil, &ParseError{Record: r.records, Err: ErrDanglingEscape}
			}
			buf.WriteRune(ch)
			escaped = true
			continue
		}

		if inQuotes {
			if r.consume(r.quote) {
				if r.doubleq && r.consume(r.quote) {
					buf.WriteString(r.quote)
					continue
				}
				inQuotes = false
				continue
			}
			if err := r.copyRune(&buf); err != nil {
				return nil, err
			}
			continue
		}

		if r.quoting && !quoted && buf.Len() == 0 && !escaped && r.consume(r.quote) {
			inQuotes, quoted = true, true
			continue
		}
		if r.consume(r.delim) {
			endField()
			continue
		}
		if r.consumeTerminator() {
			endField()
			return fields, nil
		}
		if quoted {
			return nil, &ParseError{Record: r.records, Err: ErrBareQuote}
		}
		if err := r.copyRune(&buf); err != nil {
			return nil, err
		}
	}
}

// consume advances past s when the input continues with it.
func (r *Reader) consume(s string) bool {
	if s == "" {
		return false
	}
	b, err := r.br.Peek(len(s))
	if err != nil || string(b) != s {
		return false
	}
	_, _ = r.br.Discard(len(s))
	return true
}

// consumeTerminator matches the configured terminator, or any of \r\n, \n
// and \r when none is configured.
func (r *Reader) consumeTerminator() bool {
	if r.terminator != "" {
		return r.consume(r.terminator)
	}
	return r.consume("\r\n") || r.consume("\n") || r.consume("\r")
}

func (r *Reader) copyRune(buf *strings.Builder) error {
	ch, _, err := r.br.ReadRune()
	if err != nil {
		return err
	}
	buf.WriteRune(ch)
	return nil
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([][]*string, error) {
	var out [][]*string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
