package sniff

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
)

func sniffString(t *testing.T, data, name string, initial hints.Set) records.Format {
	t.Helper()
	f, err := Sniff(context.Background(), strings.NewReader(data), name, initial, Options{})
	require.NoError(t, err)
	return f
}

func TestSniffUTF8WithQuotedField(t *testing.T) {
	f := sniffString(t, "Liberté,égalité,fraternité\n\"a\",2,3\n", "", nil)

	require.Equal(t, records.Delimited, f.Type)
	h := f.Hints
	assert.Equal(t, "UTF8", h[hints.Encoding])
	assert.Equal(t, ",", h[hints.FieldDelimiter])
	assert.Equal(t, "\n", h[hints.RecordTerminator])
	assert.Equal(t, `"`, h[hints.QuoteChar])
	assert.Equal(t, true, h[hints.HeaderRow])
	assert.Equal(t, "minimal", h[hints.Quoting])
	assert.False(t, h.Has(hints.DoubleQuote))
	assert.Nil(t, h[hints.Compression])
}

func TestSniffInitialHintsWin(t *testing.T) {
	initial := hints.Set{
		hints.FieldDelimiter: ";",
		hints.HeaderRow:      false,
		hints.Quoting:        nil,
	}
	f := sniffString(t, "a,b\n1,2\n", "data.csv", initial)

	assert.Equal(t, ";", f.Hints[hints.FieldDelimiter])
	assert.Equal(t, false, f.Hints[hints.HeaderRow])
	assert.Nil(t, f.Hints[hints.Quoting])
	assert.True(t, f.Hints.Has(hints.Quoting))
}

func TestSniffDelimiters(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		delim string
	}{
		{"tab", "id\tname\n1\tx\n2\ty\n", "\t"},
		{"pipe", "id|name|n\n1|x|2\n2|y|3\n", "|"},
		{"semicolon", "id;name\n1;a,b\n2;c,d\n", ";"},
		{"comma inside quotes", "id,name\n1,\"a;b\"\n2,\"c;d\"\n", ","},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := sniffString(t, tt.data, "", nil)
			assert.Equal(t, tt.delim, f.Hints[hints.FieldDelimiter])
		})
	}
}

func TestSniffTerminators(t *testing.T) {
	assert.Equal(t, "\r\n", sniffString(t, "a,b\r\n1,2\r\n", "", nil).Hints[hints.RecordTerminator])
	assert.Equal(t, "\r", sniffString(t, "a,b\r1,2\r", "", nil).Hints[hints.RecordTerminator])
	assert.False(t, sniffString(t, "a,b", "", nil).Hints.Has(hints.RecordTerminator))
}

func TestSniffHeaderAbsent(t *testing.T) {
	f := sniffString(t, "1,2020-01-01\n2,2020-01-02\n3,2020-01-03\n", "", nil)
	assert.Equal(t, false, f.Hints[hints.HeaderRow])
}

func TestSniffDoubleQuoteAndEscape(t *testing.T) {
	f := sniffString(t, "id,v\n1,\"say \"\"hi\"\"\"\n", "", nil)
	assert.Equal(t, true, f.Hints[hints.DoubleQuote])
	assert.Equal(t, "minimal", f.Hints[hints.Quoting])

	f = sniffString(t, "id,v\n1,a\\,b\n2,c\n", "", nil)
	assert.Equal(t, `\`, f.Hints[hints.Escape])
}

func TestSniffCompression(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	for _, name := range []string{"x.csv.gz", "unnamed"} {
		rs := bytes.NewReader(buf.Bytes())
		f, err := Sniff(context.Background(), rs, name, nil, Options{})
		require.NoError(t, err, name)
		assert.Equal(t, "GZIP", f.Hints[hints.Compression], name)
		assert.Equal(t, ",", f.Hints[hints.FieldDelimiter], name)

		pos, err := rs.Seek(0, io.SeekCurrent)
		require.NoError(t, err)
		assert.Zero(t, pos, "input rewound")
	}

	f := sniffString(t, "a,b\n", "x.csv.bz2", hints.Set{hints.Compression: nil})
	assert.Nil(t, f.Hints[hints.Compression])
}

func TestSniffParquet(t *testing.T) {
	f := sniffString(t, "not even parquet", "part-0.parquet", nil)
	assert.Equal(t, records.Parquet, f.Type)

	f = sniffString(t, "PAR1\x00\x00", "blob", nil)
	assert.Equal(t, records.Parquet, f.Type)
}

func TestSniffEncodings(t *testing.T) {
	f := sniffString(t, "\ufeffa,b\n1,2\n", "", nil)
	assert.Equal(t, "UTF8BOM", f.Hints[hints.Encoding])

	latin, err := charmap.ISO8859_1.NewEncoder().String(strings.Repeat("café,crème,brûlée,déjà vu\n", 20))
	require.NoError(t, err)
	f = sniffString(t, latin, "", nil)
	assert.Contains(t, []any{"LATIN1", "CP1252"}, f.Hints[hints.Encoding])
}

type onlyReader struct{ io.Reader }

func TestSniffNonSeekable(t *testing.T) {
	_, err := Sniff(context.Background(), onlyReader{strings.NewReader("a,b\n")}, "", nil, Options{})
	var us *errors.UnsniffableStreamError
	require.True(t, errors.As(err, &us))

	full := hints.Set{
		hints.Compression:      nil,
		hints.Encoding:         "UTF8",
		hints.FieldDelimiter:   ",",
		hints.RecordTerminator: "\n",
		hints.Quoting:          "minimal",
		hints.QuoteChar:        `"`,
		hints.DoubleQuote:      true,
		hints.Escape:           nil,
		hints.HeaderRow:        true,
	}
	f, err := Sniff(context.Background(), onlyReader{strings.NewReader("a,b\n")}, "", full, Options{})
	require.NoError(t, err)
	assert.True(t, hints.Equal(full, f.Hints))
}

func TestTrimPartialRune(t *testing.T) {
	b := []byte("ab\xc3")
	assert.Equal(t, []byte("ab"), trimPartialRune(b))
	assert.Equal(t, []byte("abé"), trimPartialRune([]byte("abé")))
}
