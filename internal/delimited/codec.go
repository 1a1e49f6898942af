package delimited

import (
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

// Decompress wraps r so reads yield the uncompressed stream.
// LZO has no codec here and is reported as an unsupported hint.
func Decompress(r io.Reader, c hints.CompressionType) (io.ReadCloser, error) {
	switch c {
	case hints.CompressionNone:
		return io.NopCloser(r), nil
	case hints.GZIP:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		return zr, nil
	case hints.BZIP:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, errors.Wrap(err, "open bzip2 stream")
		}
		return br, nil
	default:
		return nil, unsupportedCompression(c)
	}
}

// Compress wraps w so writes are compressed with c. Closing the result
// flushes the codec but leaves w open.
func Compress(w io.Writer, c hints.CompressionType) (io.WriteCloser, error) {
	switch c {
	case hints.CompressionNone:
		return nopWriteCloser{w}, nil
	case hints.GZIP:
		return gzip.NewWriter(w), nil
	case hints.BZIP:
		bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, errors.Wrap(err, "open bzip2 writer")
		}
		return bw, nil
	default:
		return nil, unsupportedCompression(c)
	}
}

func unsupportedCompression(c hints.CompressionType) error {
	return errors.WithStack(&errors.UnsupportedHintError{
		Hint:   string(hints.Compression),
		Value:  string(c),
		Reason: "no codec available",
	})
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Charset returns the text encoding for e. UTF8 maps to nil: bytes pass
// through untouched.
func Charset(e hints.EncodingType) (encoding.Encoding, error) {
	switch e {
	case hints.UTF8, "":
		return nil, nil
	case hints.UTF8BOM:
		return unicode.UTF8BOM, nil
	case hints.UTF16:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case hints.UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case hints.UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case hints.UTF16BOM:
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), nil
	case hints.LATIN1:
		return charmap.ISO8859_1, nil
	case hints.CP1252:
		return charmap.Windows1252, nil
	}
	return nil, errors.WithStack(&errors.UnsupportedHintError{
		Hint:   string(hints.Encoding),
		Value:  string(e),
		Reason: "unknown character set",
	})
}

// Decode wraps r so reads yield UTF-8.
func Decode(r io.Reader, e hints.EncodingType) (io.Reader, error) {
	enc, err := Charset(e)
	if err != nil || enc == nil {
		return r, err
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// Encode wraps w so UTF-8 written to the result lands in w as e. Close
// flushes any partial sequence.
func Encode(w io.Writer, e hints.EncodingType) (io.WriteCloser, error) {
	enc, err := Charset(e)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nopWriteCloser{w}, nil
	}
	return transform.NewWriter(w, enc.NewEncoder()), nil
}
