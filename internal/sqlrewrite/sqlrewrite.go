// Package sqlrewrite validates untrusted SELECT statements and rewrites them
// so they are scoped to a single tenant and bounded by a row cap.
package sqlrewrite

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"dynaquery/internal/domain"
	"dynaquery/internal/sqllex"
)

// Defaults applied by NewValidator.
const (
	DefaultTenantColumn = "store_id"
	DefaultMaxRows      = 1000
)

// dangerousKeywords are rejected wherever they appear as an unquoted word.
var dangerousKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"TRUNCATE": true, "ALTER": true, "CREATE": true, "REPLACE": true,
	"RENAME": true, "GRANT": true, "REVOKE": true, "LOCK": true,
	"UNLOCK": true, "LOAD": true, "CALL": true, "EXECUTE": true,
	"EXEC": true, "SET": true, "SLEEP": true, "BENCHMARK": true,
	"TABLE": true, "HANDLER": true, "ATTACH": true, "COPY": true,
	"PRAGMA": true, "INSTALL": true,
}

// dangerousFunctions can read the filesystem, reach other databases or stall
// the server.
var dangerousFunctions = map[string]bool{
	"pg_sleep":             true,
	"pg_read_file":         true,
	"pg_read_binary_file":  true,
	"pg_ls_dir":            true,
	"lo_import":            true,
	"lo_export":            true,
	"dblink":               true,
	"query_to_xml":         true,
	"table_to_xml":         true,
	"nextval":              true,
	"setval":               true,
	"load_file":            true,
	"sys_exec":             true,
	"read_csv":             true,
	"read_csv_auto":        true,
	"read_parquet":         true,
	"read_json":            true,
	"read_json_auto":       true,
	"read_text":            true,
	"read_blob":            true,
	"glob":                 true,
	"sqlite_scan":          true,
	"query_table":          true,
	"duckdb_settings":      true,
	"duckdb_secrets":       true,
	"pragma_database_list": true,
	"load_extension":       true,
	"readfile":             true,
	"writefile":            true,
}

// Config configures a Validator.
type Config struct {
	// AllowedTables is the complete set of readable tables. Empty rejects
	// every query.
	AllowedTables []string
	// BlockedColumns may never be referenced by name.
	BlockedColumns []string
	TenantColumn   string
	MaxRows        int
	// Dialect selects lexing rules: mysql, postgres, sqlite3 or duckdb.
	Dialect string
}

// Validator is the boundary between generated SQL and the database. It is
// safe for concurrent use.
type Validator struct {
	allowed      map[string]bool
	blocked      map[string]bool
	tenantColumn string
	maxRows      int
	lexOpts      sqllex.Options
	logger       *slog.Logger
}

// NewValidator creates a Validator from cfg.
func NewValidator(cfg Config, logger *slog.Logger) *Validator {
	v := &Validator{
		allowed:      make(map[string]bool, len(cfg.AllowedTables)),
		blocked:      make(map[string]bool, len(cfg.BlockedColumns)),
		tenantColumn: strings.ToLower(cfg.TenantColumn),
		maxRows:      cfg.MaxRows,
		lexOpts:      sqllex.OptionsFor(cfg.Dialect),
		logger:       logger.With("component", "validator"),
	}
	for _, t := range cfg.AllowedTables {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			v.allowed[t] = true
		}
	}
	for _, c := range cfg.BlockedColumns {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			v.blocked[c] = true
		}
	}
	if v.tenantColumn == "" {
		v.tenantColumn = DefaultTenantColumn
	}
	if v.maxRows <= 0 {
		v.maxRows = DefaultMaxRows
	}
	return v
}

// MaxRows returns the row cap applied to validated queries.
func (v *Validator) MaxRows() int { return v.maxRows }

// Validate checks sql and returns the tenant-scoped, row-capped statement.
// It never panics; malformed input yields Valid=false.
func (v *Validator) Validate(sql string, tenant domain.TenantID) (res domain.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validator panic", "panic", r)
			res = domain.ValidationResult{Valid: false, SQL: sql, Errors: []string{"query could not be validated"}}
		}
	}()

	out, errs := v.validate(sql, tenant)
	if len(errs) > 0 {
		v.logger.Info("query rejected", "tenant", int64(tenant), "errors", errs)
		return domain.ValidationResult{Valid: false, SQL: sql, Errors: errs}
	}
	return domain.ValidationResult{Valid: true, SQL: out, Errors: []string{}}
}

func (v *Validator) validate(sql string, tenant domain.TenantID) (string, []string) {
	if len(v.allowed) == 0 {
		return "", []string{"no tables are configured for querying"}
	}

	toks, err := sqllex.Tokenize(sql, v.lexOpts)
	if err != nil {
		return "", []string{"malformed SQL: " + err.Error()}
	}
	toks = trimSemicolons(toks)
	if len(toks) == 0 {
		return "", []string{"empty query"}
	}

	if v.lexOpts.BackslashSensitive && hasBackslashLiteral(toks) {
		return "", []string{"backslashes inside quoted strings or identifiers are not allowed"}
	}
	if errs := findDangerous(toks); len(errs) > 0 {
		return "", errs
	}

	if !toks[0].IsWord("SELECT") && !toks[0].IsWord("WITH") {
		return "", []string{"only SELECT queries are allowed"}
	}
	for _, t := range toks {
		if t.Kind == sqllex.Semicolon {
			return "", []string{"multiple statements are not allowed"}
		}
	}

	s, err := parseStatement(toks)
	if err != nil {
		return "", []string{err.Error()}
	}

	if errs := v.checkTables(s); len(errs) > 0 {
		return "", errs
	}
	if errs := v.checkColumns(toks); len(errs) > 0 {
		return "", errs
	}

	ed := newEdits()
	if errs := v.scopeTenant(s, ed, tenant); len(errs) > 0 {
		return "", errs
	}
	if errs := v.checkParams(s, ed); len(errs) > 0 {
		return "", errs
	}
	if err := capLimit(s, ed, v.maxRows); err != nil {
		return "", []string{err.Error()}
	}
	return sqllex.Render(ed.apply(toks)), nil
}

// findDangerous reports denylisted keywords and functions. Only unquoted word
// tokens are considered, so identifiers like insertion_date and string
// literals never match.
func findDangerous(toks []sqllex.Token) []string {
	var errs []string
	for i, t := range toks {
		if t.Kind != sqllex.Word {
			continue
		}
		up := t.Upper()
		var next sqllex.Token
		if i+1 < len(toks) {
			next = toks[i+1]
		}
		switch {
		case up == "INTO" && (next.IsWord("OUTFILE") || next.IsWord("DUMPFILE")):
			errs = append(errs, "dangerous keyword detected: INTO "+next.Upper())
		case dangerousKeywords[up]:
			errs = append(errs, "dangerous keyword detected: "+up)
		case dangerousFunctions[strings.ToLower(t.Text)] && next.Kind == sqllex.LParen:
			errs = append(errs, "prohibited function: "+strings.ToLower(t.Text))
		}
	}
	return dedupe(errs)
}

// hasBackslashLiteral reports a quoted token containing a backslash. Where the
// server's escape rules could differ from the lexer's, such a token might end
// somewhere else on the server.
func hasBackslashLiteral(toks []sqllex.Token) bool {
	for _, t := range toks {
		if (t.Kind == sqllex.String || t.Kind == sqllex.QuotedIdent) && strings.ContainsRune(t.Text, '\\') {
			return true
		}
	}
	return false
}

func (v *Validator) checkTables(s *statement) []string {
	tables := s.baseTables()
	if len(tables) == 0 {
		return []string{"query must read from at least one allowed table"}
	}
	var errs []string
	for _, t := range tables {
		if !v.allowed[t] {
			errs = append(errs, fmt.Sprintf("table %q is not allowed", t))
		}
	}
	sort.Strings(errs)
	return errs
}

func (v *Validator) checkColumns(toks []sqllex.Token) []string {
	if len(v.blocked) == 0 {
		return nil
	}
	var errs []string
	for _, t := range toks {
		if t.IsIdent() && v.blocked[t.Ident()] {
			errs = append(errs, fmt.Sprintf("column %q is not accessible", t.Ident()))
		}
	}
	return dedupe(errs)
}

// checkParams rejects placeholders left over after tenant substitution; the
// validated statement is executed without bind arguments.
func (v *Validator) checkParams(s *statement, ed *edits) []string {
	var errs []string
	for i, t := range s.toks {
		if t.Kind != sqllex.Param {
			continue
		}
		if _, ok := ed.replace[i]; ok {
			continue
		}
		if s.depth[i] == 0 && s.at(i-1).IsWord("LIMIT") {
			continue
		}
		errs = append(errs, fmt.Sprintf("unbound parameter %s", t.Text))
	}
	return dedupe(errs)
}

// ExtractTableNames returns the base tables a SELECT statement reads, sorted.
// CTE names and derived tables are excluded.
func ExtractTableNames(sql string, opts sqllex.Options) ([]string, error) {
	toks, err := sqllex.Tokenize(sql, opts)
	if err != nil {
		return nil, err
	}
	toks = trimSemicolons(toks)
	if len(toks) == 0 {
		return nil, nil
	}
	s, err := parseStatement(toks)
	if err != nil {
		return nil, err
	}
	tables := s.baseTables()
	sort.Strings(tables)
	return tables, nil
}
