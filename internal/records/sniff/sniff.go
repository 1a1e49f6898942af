// Package sniff guesses the records format of a single data file from its
// name and a bounded prefix of its bytes.
//
// The sniffer is responsible for:
//   - seeding format type and compression from the file extension
//   - recognizing compression and Parquet by magic bytes
//   - detecting the character set
//   - detecting the record terminator
//   - proposing delimiter, quote character, doublequote and header presence
//   - choosing between minimal quoting and no quoting by trial parsing
//
// Design constraints:
//   - Sampling is bounded by Options.SampleBytes.
//   - Hints supplied by the caller always win over sniffed values.
//   - The input is rewound to its start before Sniff returns.
package sniff

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"go.uber.org/zap"

	"github.com/bluelabsio/records-mover-sub001/internal/delimited"
	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// DefaultSampleBytes is the decompressed prefix inspected by default.
const DefaultSampleBytes = 64 * 1024

// minSampleBytes keeps dialect detection meaningful.
const minSampleBytes = 1024

// Options control sampling.
type Options struct {
	// SampleBytes bounds the decompressed prefix read. Values below 1 KiB
	// are raised to 1 KiB.
	SampleBytes int
	Logger      *zap.SugaredLogger
}

// Hints needed before a non-seekable stream can be used without sniffing.
var streamHints = []hints.Name{
	hints.Compression,
	hints.Encoding,
	hints.FieldDelimiter,
	hints.RecordTerminator,
	hints.Quoting,
	hints.QuoteChar,
	hints.DoubleQuote,
	hints.Escape,
	hints.HeaderRow,
}

// Sniff returns the best-guess format for the file called name whose bytes
// r yields. initial holds hints the caller already knows; they override
// anything sniffed.
//
// r must be an io.ReadSeeker unless initial already names every hint the
// delimited reader needs, in which case no bytes are read.
//
// Errors:
//   - UnsniffableStreamError when r cannot be rewound and initial is
//     incomplete, or when the sample cannot be read
func Sniff(ctx context.Context, r io.Reader, name string, initial hints.Set, opt Options) (records.Format, error) {
	log := logging.Or(opt.Logger)
	if opt.SampleBytes < minSampleBytes {
		if opt.SampleBytes <= 0 {
			opt.SampleBytes = DefaultSampleBytes
		} else {
			opt.SampleBytes = minSampleBytes
		}
	}

	if formatFromName(name) == records.Parquet {
		return records.ParquetFormat(), nil
	}

	rs, seekable := r.(io.ReadSeeker)
	if !seekable {
		for _, h := range streamHints {
			if !initial.Has(h) {
				return records.Format{}, unsniffable("input is not seekable and hint %s was not supplied", h)
			}
		}
		return records.DelimitedFormat(hints.Bluelabs, initial), nil
	}

	head, err := peek(rs, 4)
	if err != nil {
		return records.Format{}, err
	}
	if bytes.HasPrefix(head, []byte("PAR1")) {
		return records.ParquetFormat(), nil
	}

	sniffed := hints.Set{}
	if c, ok := compressionFromName(name); ok {
		sniffed[hints.Compression] = c
	} else {
		sniffed[hints.Compression] = compressionFromMagic(head)
	}
	compression := sniffed[hints.Compression]
	if initial.Has(hints.Compression) {
		compression = initial[hints.Compression]
	}
	ctype, _ := compression.(string)

	sample, complete, err := readSample(rs, hints.CompressionType(ctype), opt.SampleBytes)
	if err != nil {
		return records.Format{}, err
	}
	if err := ctx.Err(); err != nil {
		return records.Format{}, err
	}

	encoding, _ := initial[hints.Encoding].(string)
	if encoding == "" {
		encoding = detectEncoding(sample, log)
		sniffed[hints.Encoding] = encoding
	}
	text, err := decodeSample(sample, hints.EncodingType(encoding))
	if err != nil {
		return records.Format{}, err
	}

	if term := detectTerminator(text); term != "" {
		sniffed[hints.RecordTerminator] = term
	}
	term, _ := hints.Merge(sniffed, initial)[hints.RecordTerminator].(string)
	lines := splitLines(text, term, complete)

	d := sniffDialect(lines, initial)
	sniffed[hints.FieldDelimiter] = d.delimiter
	sniffed[hints.QuoteChar] = d.quote
	if d.doubleQuote {
		sniffed[hints.DoubleQuote] = true
	}
	sniffed[hints.HeaderRow] = d.header
	if d.escape {
		sniffed[hints.Escape] = `\`
	} else {
		sniffed[hints.Escape] = nil
	}

	merged := hints.Merge(sniffed, initial)
	if !initial.Has(hints.Quoting) {
		sniffed[hints.Quoting] = chooseQuoting(text, term, complete, merged)
		merged = hints.Merge(sniffed, initial)
	}

	f := records.DelimitedFormat(hints.Bluelabs, merged)
	log.Debugw("sniffed records format", "name", name, "format", f.String())
	return f, nil
}

func unsniffable(format string, args ...any) error {
	return errors.WithStack(&errors.UnsniffableStreamError{Reason: fmt.Sprintf(format, args...)})
}

// peek reads up to n bytes and rewinds.
func peek(rs io.ReadSeeker, n int) ([]byte, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, unsniffable("rewind: %v", err)
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(rs, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, unsniffable("read: %v", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, unsniffable("rewind: %v", err)
	}
	return buf[:got], nil
}

// readSample returns up to limit decompressed bytes and whether they are
// the whole stream. rs is rewound afterwards.
func readSample(rs io.ReadSeeker, c hints.CompressionType, limit int) ([]byte, bool, error) {
	defer rs.Seek(0, io.SeekStart)
	dr, err := delimited.Decompress(rs, c)
	if err != nil {
		return nil, false, err
	}
	defer dr.Close()
	buf := make([]byte, limit+1)
	n, err := io.ReadFull(dr, buf)
	switch err {
	case nil:
		return buf[:limit], false, nil
	case io.EOF, io.ErrUnexpectedEOF:
		return buf[:n], true, nil
	default:
		if n > 0 {
			return buf[:n], false, nil
		}
		return nil, false, unsniffable("read sample: %v", err)
	}
}

func formatFromName(name string) records.FormatType {
	if strings.HasSuffix(strings.ToLower(name), ".parquet") {
		return records.Parquet
	}
	return records.Delimited
}

func compressionFromName(name string) (any, bool) {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, ".gz"), strings.HasSuffix(n, ".gzip"):
		return "GZIP", true
	case strings.HasSuffix(n, ".bz2"):
		return "BZIP", true
	case strings.HasSuffix(n, ".lzo"):
		return "LZO", true
	case strings.HasSuffix(n, ".csv"), strings.HasSuffix(n, ".tsv"), strings.HasSuffix(n, ".txt"):
		return nil, true
	}
	return nil, false
}

func compressionFromMagic(head []byte) any {
	switch {
	case bytes.HasPrefix(head, []byte{0x1f, 0x8b}):
		return "GZIP"
	case bytes.HasPrefix(head, []byte("BZh")):
		return "BZIP"
	case bytes.HasPrefix(head, []byte{0x89, 'L', 'Z', 'O'}):
		return "LZO"
	}
	return nil
}

// detectEncoding maps a byte sample to a hint encoding, falling back to
// UTF8 when the detector is unsure.
func detectEncoding(sample []byte, log *zap.SugaredLogger) string {
	switch {
	case bytes.HasPrefix(sample, []byte{0xef, 0xbb, 0xbf}):
		return string(hints.UTF8BOM)
	case bytes.HasPrefix(sample, []byte{0xff, 0xfe}), bytes.HasPrefix(sample, []byte{0xfe, 0xff}):
		return string(hints.UTF16)
	}
	if utf8.Valid(trimPartialRune(sample)) {
		return string(hints.UTF8)
	}
	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil {
		log.Debugw("charset detection inconclusive; assuming UTF8", "error", err)
		return string(hints.UTF8)
	}
	switch strings.ToUpper(res.Charset) {
	case "UTF-8":
		return string(hints.UTF8)
	case "UTF-16LE":
		return string(hints.UTF16LE)
	case "UTF-16BE":
		return string(hints.UTF16BE)
	case "ISO-8859-1":
		return string(hints.LATIN1)
	case "WINDOWS-1252":
		return string(hints.CP1252)
	}
	log.Debugw("unmapped charset; assuming UTF8", "charset", res.Charset, "confidence", res.Confidence)
	return string(hints.UTF8)
}

// trimPartialRune drops an incomplete UTF-8 sequence cut off by sampling.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

func decodeSample(sample []byte, e hints.EncodingType) (string, error) {
	r, err := delimited.Decode(bytes.NewReader(sample), e)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return "", unsniffable("decode sample as %s: %v", e, err)
	}
	return string(out), nil
}

// detectTerminator reports the newline form ending the first line.
func detectTerminator(text string) string {
	i := strings.IndexAny(text, "\r\n")
	if i < 0 {
		return ""
	}
	if text[i] == '\r' {
		if i+1 < len(text) && text[i+1] == '\n' {
			return "\r\n"
		}
		if i+1 == len(text) {
			return ""
		}
		return "\r"
	}
	return "\n"
}

// splitLines cuts text into physical lines, dropping a trailing partial
// line unless the sample is the whole input.
func splitLines(text, term string, complete bool) []string {
	if term == "" {
		term = "\n"
	}
	lines := strings.Split(text, term)
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else if !complete && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// chooseQuoting trial-parses the sample with minimal quoting and keeps it
// when the parse succeeds.
func chooseQuoting(text, term string, complete bool, merged hints.Set) any {
	body := text
	if !complete && term != "" {
		if i := strings.LastIndex(text, term); i >= 0 {
			body = text[:i+len(term)]
		}
	}
	trial, err := hints.ApplyVariant(hints.Bluelabs)
	if err != nil {
		return nil
	}
	trial = hints.Merge(trial, merged)
	trial[hints.Quoting] = "minimal"
	trial[hints.Compression] = nil
	trial[hints.Encoding] = "UTF8"
	trial[hints.HeaderRow] = false
	v, err := hints.Validate(trial, hints.StrictPolicy{})
	if err != nil {
		return nil
	}
	r, err := delimited.NewReader(strings.NewReader(body), v)
	if err != nil {
		return nil
	}
	defer r.Close()
	if _, err := r.ReadAll(); err != nil {
		return nil
	}
	return "minimal"
}
