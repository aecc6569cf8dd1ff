// Package feeds turns CSV and JSON exports of feeds or bookmarks into feed
// notes, and clips web pages into bookmark notes.
package feeds

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/DeuxFois/papervault/internal/frontmatter"
)

// ParseError describes one input row that was skipped.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseResult holds the decoded items in input order and the rows skipped
// along the way.
type ParseResult struct {
	Items   []frontmatter.Map
	Skipped []*ParseError
}

var errNoHeader = errors.New("missing header row")

// ParseCSV reads a header row and one item per following row. Keys come from
// the header, trimmed and lowercased. Rows with the wrong number of fields
// and blank rows are skipped.
func ParseCSV(r io.Reader) (ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return ParseResult{}, errNoHeader
	}
	if err != nil {
		return ParseResult{}, fmt.Errorf("read csv header: %w", err)
	}
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var result ParseResult
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				result.Skipped = append(result.Skipped, &ParseError{Line: csvErr.Line, Err: csvErr.Err})
				continue
			}
			return result, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) != len(keys) {
			result.Skipped = append(result.Skipped, &ParseError{
				Line: line,
				Err:  fmt.Errorf("expected %d fields, got %d", len(keys), len(record)),
			})
			continue
		}
		var item frontmatter.Map
		empty := true
		for i, key := range keys {
			if key == "" {
				continue
			}
			value := strings.TrimSpace(record[i])
			if value != "" {
				empty = false
			}
			item.Set(key, frontmatter.String(value))
		}
		if empty {
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// ParseJSON accepts an array of objects, or an object whose `items`,
// `entries` or `bookmarks` field holds that array. Key order of each object
// is kept. Elements that are not objects are skipped.
func ParseJSON(r io.Reader) (ParseResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ParseResult{}, fmt.Errorf("read json: %w", err)
	}
	data = bytes.TrimSpace(data)

	var elements []json.RawMessage
	switch {
	case len(data) == 0:
		return ParseResult{}, errors.New("empty json input")
	case data[0] == '[':
		if err := json.Unmarshal(data, &elements); err != nil {
			return ParseResult{}, fmt.Errorf("decode json: %w", err)
		}
	case data[0] == '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return ParseResult{}, fmt.Errorf("decode json: %w", err)
		}
		found := false
		for _, key := range []string{"items", "entries", "bookmarks"} {
			if raw, ok := wrapper[key]; ok {
				if err := json.Unmarshal(raw, &elements); err != nil {
					return ParseResult{}, fmt.Errorf("decode %s: %w", key, err)
				}
				found = true
				break
			}
		}
		if !found {
			return ParseResult{}, errors.New("json object has no items array")
		}
	default:
		return ParseResult{}, errors.New("json input must be an array or an object")
	}

	var result ParseResult
	for i, raw := range elements {
		var item frontmatter.Map
		if err := json.Unmarshal(raw, &item); err != nil {
			result.Skipped = append(result.Skipped, &ParseError{Line: i + 1, Err: err})
			continue
		}
		if item.Len() == 0 {
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// Parse picks the decoder from the file name's extension.
func Parse(name string, r io.Reader) (ParseResult, error) {
	switch ext := strings.ToLower(name[strings.LastIndex(name, ".")+1:]); ext {
	case "csv":
		return ParseCSV(r)
	case "json":
		return ParseJSON(r)
	default:
		return ParseResult{}, fmt.Errorf("unsupported feed format %q", ext)
	}
}
