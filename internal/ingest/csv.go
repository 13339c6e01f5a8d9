package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
)

type csvLoader struct{}

func (csvLoader) Name() string { return "csv" }

func (csvLoader) CanLoad(path string) bool { return hasExt(path, ".csv", ".tsv", ".txt") }

func (csvLoader) Load(_ context.Context, path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	dec, err := decodeReader(f, opt.Encoding)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(dec)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(path, br)
	}
	return readDelimited(br, delim)
}

// ReadCSV reads delimited text from r. A zero delimiter is sniffed from the
// first line.
func ReadCSV(r io.Reader, delim rune) (*Table, error) {
	br := bufio.NewReader(r)
	if delim == 0 {
		delim = sniffDelimiter("", br)
	}
	return readDelimited(br, delim)
}

func readDelimited(r io.Reader, delim rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	tbl := &Table{Header: append([]string(nil), header...)}
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(tbl.Rows)+1, err)
		}
		row := make([]dataset.Value, len(rec))
		for j, cell := range rec {
			row[j] = textCell(cell)
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// sniffDelimiter uses the extension for .tsv and otherwise picks the most
// frequent candidate on the first line, defaulting to comma.
func sniffDelimiter(path string, br *bufio.Reader) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	peek, _ := br.Peek(4096)
	line := string(peek)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(c)); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

// decodeReader wraps r so it yields UTF-8. A byte order mark, when
// present, wins over the configured encoding.
func decodeReader(r io.Reader, name string) (io.Reader, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

var charmaps = map[string]encoding.Encoding{
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"cp1252":       charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
	"cp1250":       charmap.Windows1250,
	"windows-1250": charmap.Windows1250,
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"macintosh":    charmap.Macintosh,
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	}
	if enc, ok := charmaps[key]; ok {
		return enc, nil
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}
