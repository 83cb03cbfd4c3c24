// Package sheet reads spreadsheet exports into header-keyed rows.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Sheet is a parsed export: headers in file order, one map per data row
// keyed by header, and the 1-based line number of the first data row.
type Sheet struct {
	Headers      []string            `json:"headers"`
	Rows         []map[string]string `json:"rows"`
	DataStartRow int                 `json:"dataStartRow"`
}

// ReadCSV decodes UTF-8, UTF-8/UTF-16 with BOM, or Windows-1252 input and
// parses it as CSV. Blank lines before the header and fully blank data rows
// are dropped. Short rows are padded and long rows truncated to the header.
func ReadCSV(r io.Reader) (*Sheet, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	decoded, err := decode(raw)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var headers []string
	for headers == nil {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: no header row found")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read header row: %w", err)
		}
		if !blank(rec) {
			headers = rec
		}
	}
	headerLine, _ := reader.FieldPos(0)

	s := &Sheet{Headers: headers, DataStartRow: headerLine + 1}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read data row: %w", err)
		}
		if blank(rec) {
			continue
		}

		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		s.Rows = append(s.Rows, row)
	}
	return s, nil
}

func decode(raw []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(encoding.Nop.NewDecoder()), raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sheet: %w", err)
	}
	if utf8.Valid(out) {
		return out, nil
	}
	out, err = charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sheet as Windows-1252: %w", err)
	}
	return out, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
