package sniff

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bluelabsio/records-mover-sub001/internal/records/hints"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// Lines considered when voting on delimiter and header.
const dialectLines = 20

// Delimiters tried in preference order when counts tie.
var preferredDelimiters = []string{",", "\t", ";", "|", ":", " ", "\x01"}

type dialect struct {
	delimiter   string
	quote       string
	doubleQuote bool
	escape      bool
	header      bool
}

// sniffDialect guesses delimiter, quote character, doublequote, escape and
// header presence from physical lines. Values present in initial are used
// as given and steer the remaining guesses.
func sniffDialect(lines []string, initial hints.Set) dialect {
	if len(lines) > dialectLines {
		lines = lines[:dialectLines]
	}
	var d dialect

	quoteVotes := map[rune]int{}
	delimVotes := map[string]int{}
	for _, line := range lines {
		countQuotedFields(line, quoteVotes, delimVotes)
	}

	d.quote = `"`
	if q, ok := initial[hints.QuoteChar].(string); ok && q != "" {
		d.quote = q
	} else if quoteVotes['\''] > quoteVotes['"'] {
		d.quote = "'"
	}

	if delim, ok := initial[hints.FieldDelimiter].(string); ok && delim != "" {
		d.delimiter = delim
	} else {
		d.delimiter = guessDelimiter(lines, d.quote, delimVotes)
	}

	d.doubleQuote = hasDoubledQuote(lines, d.quote, d.delimiter)
	d.escape = hasBackslashEscape(lines, d.quote, d.delimiter)

	if h, ok := initial[hints.HeaderRow].(bool); ok {
		d.header = h
	} else {
		d.header = guessHeader(lines, d.delimiter, d.quote)
	}
	return d
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// countQuotedFields votes for quote characters that open at a field start
// and close before a separator, and for the separators seen around them.
func countQuotedFields(line string, quoteVotes map[rune]int, delimVotes map[string]int) {
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		q := runes[i]
		if q != '"' && q != '\'' {
			continue
		}
		if i > 0 && (isWordRune(runes[i-1]) || runes[i-1] == q) {
			continue
		}
		j := i + 1
		for j < len(runes) && runes[j] != q {
			j++
		}
		if j >= len(runes) {
			return
		}
		if j+1 < len(runes) && isWordRune(runes[j+1]) {
			continue
		}
		quoteVotes[q]++
		if i > 0 {
			delimVotes[string(runes[i-1])]++
		}
		if j+1 < len(runes) {
			delimVotes[string(runes[j+1])]++
		}
		i = j
	}
}

// guessDelimiter picks the separator whose per-line count is the most
// consistent. Separators adjacent to quoted fields break ties first.
func guessDelimiter(lines []string, quote string, quotedVotes map[string]int) string {
	best, bestScore := ",", -1.0
	for _, cand := range candidates(lines) {
		counts := map[int]int{}
		for _, line := range lines {
			counts[len(splitFields(line, cand, quote))-1]++
		}
		mode, modeLines := 0, 0
		for n, c := range counts {
			if n > 0 && (c > modeLines || (c == modeLines && n > mode)) {
				mode, modeLines = n, c
			}
		}
		if mode == 0 {
			continue
		}
		score := float64(modeLines) / float64(len(lines))
		score += float64(quotedVotes[cand]) / float64(10*len(lines)+1)
		if score > bestScore {
			best, bestScore = cand, score
		}
	}
	return best
}

// candidates lists the preferred delimiters followed by any other
// punctuation present in the sample.
func candidates(lines []string) []string {
	out := append([]string(nil), preferredDelimiters...)
	seen := map[string]bool{}
	for _, c := range out {
		seen[c] = true
	}
	for _, line := range lines {
		for _, r := range line {
			s := string(r)
			if seen[s] || isWordRune(r) || r == '"' || r == '\'' || r >= utf8.RuneSelf {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// splitFields splits one physical line, treating delimiters inside quotes
// as data. Unquoted surrounding quotes are stripped from each field.
func splitFields(line, delim, quote string) []string {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
		start   = true
	)
	for i := 0; i < len(line); {
		switch {
		case quote != "" && strings.HasPrefix(line[i:], quote) && (start || inQuote):
			if inQuote && strings.HasPrefix(line[i+len(quote):], quote) {
				cur.WriteString(quote)
				i += 2 * len(quote)
				continue
			}
			inQuote = !inQuote
			i += len(quote)
			start = false
		case !inQuote && strings.HasPrefix(line[i:], delim):
			out = append(out, cur.String())
			cur.Reset()
			i += len(delim)
			start = true
		default:
			_, n := utf8.DecodeRuneInString(line[i:])
			cur.WriteString(line[i : i+n])
			i += n
			start = false
		}
	}
	return append(out, cur.String())
}

// hasDoubledQuote reports a doubled quote character inside a quoted field.
func hasDoubledQuote(lines []string, quote, delim string) bool {
	pair := quote + quote
	for _, line := range lines {
		for _, f := range rawFields(line, delim, quote) {
			if len(f) >= 2*len(quote) && strings.HasPrefix(f, quote) && strings.HasSuffix(f, quote) {
				if strings.Contains(f[len(quote):len(f)-len(quote)], pair) {
					return true
				}
			}
		}
	}
	return false
}

// hasBackslashEscape reports a backslash preceding a delimiter or quote.
func hasBackslashEscape(lines []string, quote, delim string) bool {
	for _, line := range lines {
		if strings.Contains(line, `\`+delim) || (quote != "" && strings.Contains(line, `\`+quote)) {
			return true
		}
	}
	return false
}

// rawFields splits like splitFields but keeps quotes in place.
func rawFields(line, delim, quote string) []string {
	var out []string
	inQuote := false
	last := 0
	for i := 0; i < len(line); {
		switch {
		case quote != "" && strings.HasPrefix(line[i:], quote):
			inQuote = !inQuote
			i += len(quote)
		case !inQuote && strings.HasPrefix(line[i:], delim):
			out = append(out, line[last:i])
			i += len(delim)
			last = i
		default:
			i++
		}
	}
	return append(out, line[last:])
}

// guessHeader votes column by column: a first-row value whose type or
// length differs from the consistent type or length of the rows below it
// counts toward a header.
func guessHeader(lines []string, delim, quote string) bool {
	if len(lines) < 2 {
		return false
	}
	header := splitFields(lines[0], delim, quote)
	columns := make([][]string, len(header))
	for _, line := range lines[1:] {
		row := splitFields(line, delim, quote)
		if len(row) != len(header) {
			continue
		}
		for i, v := range row {
			columns[i] = append(columns[i], v)
		}
	}

	votes := 0
	for i, values := range columns {
		if len(values) == 0 {
			continue
		}
		t := schema.InferValueType(values)
		if t != schema.String {
			if schema.InferValueType([]string{header[i]}) == t {
				votes--
			} else {
				votes++
			}
			continue
		}
		width := utf8.RuneCountInString(values[0])
		consistent := true
		for _, v := range values[1:] {
			if utf8.RuneCountInString(v) != width {
				consistent = false
				break
			}
		}
		if !consistent {
			continue
		}
		if utf8.RuneCountInString(header[i]) != width {
			votes++
		} else {
			votes--
		}
	}
	return votes > 0
}
