package domain

import (
	"bytes"
	"encoding/json"
)

// GeneratedQuery is the untrusted output of the text-generation service. It
// must pass through the validator before it may reach the database.
type GeneratedQuery struct {
	SQL             string   `json:"sql"`
	Explanation     string   `json:"explanation"`
	ExpectedColumns []string `json:"columns"`
}

// Empty reports whether the generator produced no SQL.
func (q GeneratedQuery) Empty() bool {
	return len(bytes.TrimSpace([]byte(q.SQL))) == 0
}

// ValidationResult is the validator's verdict. When Valid is true, SQL is the
// only statement permitted to reach the executor.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	SQL    string   `json:"sql"`
	Errors []string `json:"errors"`
}

// Field is a single named value in a result row.
type Field struct {
	Name  string
	Value interface{}
}

// Row is an ordered column → value mapping.
type Row []Field

// Columns returns the row's column names in order.
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i := range r {
		cols[i] = r[i].Name
	}
	return cols
}

// Get returns the value of the named column.
func (r Row) Get(name string) (interface{}, bool) {
	for i := range r {
		if r[i].Name == name {
			return r[i].Value, true
		}
	}
	return nil, false
}

// MarshalJSON renders the row as a JSON object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r[i].Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r[i].Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ExecutionResult holds the materialized output of one validated statement.
// Truncated is true exactly when RowCount reached the row cap.
type ExecutionResult struct {
	Success         bool     `json:"success"`
	Columns         []string `json:"columns"`
	Data            []Row    `json:"data"`
	RowCount        int      `json:"row_count"`
	Truncated       bool     `json:"truncated"`
	Error           *string  `json:"error"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
}
