package sink

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/aatumaykin/ytharvest/internal/retrieval"
)

func encodeJSON(records []retrieval.Record) ([]byte, error) {
	if records == nil {
		records = []retrieval.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeCSV writes one row per record. The header is the sorted union of
// all record keys; composite values are JSON-encoded into their cell.
func encodeCSV(records []retrieval.Record) ([]byte, error) {
	keys := map[string]struct{}{}
	for _, r := range records {
		for k := range r {
			keys[k] = struct{}{}
		}
	}
	header := slices.Sorted(maps.Keys(keys))

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			return nil, err
		}
	}
	row := make([]string, len(header))
	for _, r := range records {
		for i, k := range header {
			cell, err := csvCell(r[k])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			row[i] = cell
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func csvCell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(x), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
