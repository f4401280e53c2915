package datastore

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// column type labels inferred from the working dataset values
const (
	typeInteger   = "integer"
	typeReal      = "real"
	typeTimestamp = "timestamp"
	typeText      = "text"
)

// DescribeWorkingDataset renders the dataset's column names, inferred types,
// and representative values. Numeric and temporal columns show one sample;
// text columns show their distinct values in first-seen order. The output is
// byte-identical across calls while the file is unchanged.
func (s *Store) DescribeWorkingDataset() (string, error) {
	f, err := os.Open(s.WorkingDatasetPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open working dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read working dataset header: %w", err)
	}

	types := make([]string, len(header))
	distinct := make([]map[string]struct{}, len(header))
	samples := make([][]string, len(header))
	for i := range header {
		distinct[i] = make(map[string]struct{})
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read working dataset: %w", err)
		}
		for i, raw := range record {
			if i >= len(header) || raw == "" {
				continue
			}
			types[i] = widenType(types[i], inferType(raw))
			if _, seen := distinct[i][raw]; !seen {
				distinct[i][raw] = struct{}{}
				samples[i] = append(samples[i], raw)
			}
		}
	}

	var b strings.Builder
	for i, name := range header {
		typ := types[i]
		if typ == "" {
			typ = typeText
		}
		values := samples[i]
		if typ != typeText && len(values) > 1 {
			values = values[:1]
		}
		b.WriteString(fmt.Sprintf("- %s (%s): %v\n", name, typ, values))
	}
	return b.String(), nil
}

func inferType(raw string) string {
	if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return typeInteger
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return typeReal
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if _, err := time.Parse(layout, raw); err == nil {
			return typeTimestamp
		}
	}
	return typeText
}

// widenType merges the type observed so far with a new observation: integers
// widen to reals, anything conflicting collapses to text.
func widenType(current, observed string) string {
	switch {
	case current == "" || current == observed:
		return observed
	case current == typeInteger && observed == typeReal,
		current == typeReal && observed == typeInteger:
		return typeReal
	default:
		return typeText
	}
}
