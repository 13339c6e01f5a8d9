package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
)

type jsonLoader struct{}

func (jsonLoader) Name() string { return "json" }

func (jsonLoader) CanLoad(path string) bool { return hasExt(path, ".json") }

func (jsonLoader) Load(_ context.Context, path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open json: %w", err)
	}
	defer f.Close()
	r, err := decodeReader(f, opt.Encoding)
	if err != nil {
		return nil, err
	}
	return ReadJSON(r)
}

// ReadJSON reads an array of flat objects. Columns appear in the order keys
// are first seen; nested objects and arrays are kept as compact JSON text.
func ReadJSON(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	tbl := &Table{}
	index := map[string]int{}
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(tbl.Rows)+1, err)
		}
		row := make([]dataset.Value, len(tbl.Header))
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", len(tbl.Rows)+1, err)
			}
			key, _ := tok.(string)
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", len(tbl.Rows)+1, key, err)
			}
			j, ok := index[key]
			if !ok {
				j = len(tbl.Header)
				index[key] = j
				tbl.Header = append(tbl.Header, key)
			}
			for len(row) <= j {
				row = append(row, dataset.Null())
			}
			row[j] = jsonCell(raw)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	return tbl, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("unexpected end of input, want %q", want)
		}
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("unexpected token %v, want %q", tok, want)
	}
	return nil
}

func jsonCell(raw json.RawMessage) dataset.Value {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return dataset.Null()
	}
	switch raw[0] {
	case 'n':
		return dataset.Null()
	case 't', 'f':
		return dataset.Bool(raw[0] == 't')
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return textCell(s)
		}
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return dataset.String(buf.String())
		}
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if f, err := n.Float64(); err == nil {
				return dataset.Number(f)
			}
		}
	}
	return dataset.String(string(raw))
}
