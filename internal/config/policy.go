package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the YAML form of the query controls. Fields that are present
// override the environment.
type Policy struct {
	AllowedTables         []string `yaml:"allowed_tables"`
	BlockedColumns        []string `yaml:"blocked_columns"`
	TenantColumn          string   `yaml:"tenant_column"`
	MaxRows               int      `yaml:"max_rows"`
	QueryTimeoutSeconds   float64  `yaml:"query_timeout_seconds"`
	SchemaCacheTTLSeconds float64  `yaml:"schema_cache_ttl_seconds"`
}

// LoadPolicyFile reads and decodes a policy file. Unknown keys are rejected.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes policy YAML.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if p.MaxRows < 0 {
		return nil, fmt.Errorf("policy max_rows must not be negative")
	}
	return &p, nil
}

// Apply overlays the policy onto q.
func (p *Policy) Apply(q *QueryConfig) {
	if p.AllowedTables != nil {
		q.AllowedTables = p.AllowedTables
	}
	if p.BlockedColumns != nil {
		q.BlockedColumns = p.BlockedColumns
	}
	if p.TenantColumn != "" {
		q.TenantColumn = p.TenantColumn
	}
	if p.MaxRows > 0 {
		q.MaxRows = p.MaxRows
	}
	if p.QueryTimeoutSeconds > 0 {
		q.Timeout = time.Duration(p.QueryTimeoutSeconds * float64(time.Second))
	}
	if p.SchemaCacheTTLSeconds > 0 {
		q.SchemaCacheTTL = time.Duration(p.SchemaCacheTTLSeconds * float64(time.Second))
	}
}
