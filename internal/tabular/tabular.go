// Package tabular extracts structured records from control tool output.
// Two grammars are supported: line-oriented whitespace-separated tables, and
// JSON bodies. Malformed table lines are skipped; a malformed JSON body is a
// hard error for the whole invocation.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one table row: the entity name followed by the remaining fields.
type Record struct {
	Name  string
	Attrs []string
}

// Records splits output into whitespace-separated rows. The first field of
// each line is the entity name, the rest are attributes. Lines with fewer
// than two fields are skipped. Empty output yields an empty slice.
func Records(output []byte) []Record {
	var records []Record
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		records = append(records, Record{Name: fields[0], Attrs: fields[1:]})
	}
	return records
}

// Column returns the first field of every non-empty line. Used for listings
// that report one name per line.
func Column(output []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
	}
	return names
}

// DecodeJSON decodes a JSON body into v. Unlike table parsing there is no
// partial recovery: a decode failure fails the invocation.
func DecodeJSON(output []byte, v any) error {
	if err := json.Unmarshal(output, v); err != nil {
		return fmt.Errorf("decode json output: %w", err)
	}
	return nil
}
