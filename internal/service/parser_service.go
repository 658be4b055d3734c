package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
)

// Row is one untyped input row keyed by column name.
type Row map[string]string

// ParserService normalises uploaded files into ordered row maps. It does no
// semantic validation; an empty file is an empty sequence, not an error.
type ParserService struct{}

// NewParserService constructs the parser.
func NewParserService() *ParserService {
	return &ParserService{}
}

// Parse decodes the file by its declared extension: .json as a structured
// payload, everything else as header-keyed CSV. The returned column list
// preserves input order for report rendering.
func (s *ParserService) Parse(data []byte, filename string) ([]Row, []string, error) {
	if strings.ToLower(path.Ext(filename)) == ".json" {
		return s.parseJSON(data)
	}
	return s.parseCSV(data)
}

func (s *ParserService) parseCSV(data []byte) ([]Row, []string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, "failed to read csv header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, "failed to read csv row")
		}
		row := make(Row, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func (s *ParserService) parseJSON(data []byte) ([]Row, []string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, nil
	}

	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, "failed to parse json")
	}

	var items []interface{}
	switch v := payload.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		// Accept either a bare array or an object wrapping one.
		if data, ok := v["data"].([]interface{}); ok {
			items = data
		} else if records, ok := v["records"].([]interface{}); ok {
			items = records
		}
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrMalformedInput, "json payload must be an array or an object with a data/records field")
	}

	columnSeen := map[string]struct{}{}
	var columns []string
	rows := make([]Row, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("json record %d is not an object", i))
		}
		row := make(Row, len(obj))
		keys := make([]string, 0, len(obj))
		for key := range obj {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			row[key] = stringify(obj[key])
			if _, seen := columnSeen[key]; !seen {
				columnSeen[key] = struct{}{}
				columns = append(columns, key)
			}
		}
		rows = append(rows, row)
	}
	return rows, columns, nil
}

func stringify(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		if value {
			return "true"
		}
		return "false"
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	}
}
