// Package generator asks an external text-generation service to turn a
// natural-language request into SQL. Its output is untrusted and must be
// validated before execution.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"
	"github.com/kaptinlin/jsonschema"
	"github.com/spf13/cast"

	"dynaquery/internal/domain"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 30 * time.Second

const responseSchemaJSON = `{
	"type": "object",
	"properties": {
		"sql": {"type": "string", "minLength": 1},
		"explanation": {"type": "string"},
		"columns": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["sql"]
}`

var responseSchema = mustCompile(responseSchemaJSON)

func mustCompile(schema string) *jsonschema.Schema {
	s, err := jsonschema.NewCompiler().Compile([]byte(schema))
	if err != nil {
		panic(fmt.Sprintf("generator: invalid response schema: %v", err))
	}
	return s
}

// Config configures a Generator.
type Config struct {
	TenantColumn string
	Timeout      time.Duration
}

// Generator builds prompts from the tenant's schema and parses the model's
// JSON answer into a GeneratedQuery.
type Generator struct {
	schema       domain.SchemaSource
	llm          domain.TextGenerator
	tenantColumn string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(schema domain.SchemaSource, llm domain.TextGenerator, cfg Config, logger *slog.Logger) *Generator {
	g := &Generator{
		schema:       schema,
		llm:          llm,
		tenantColumn: cfg.TenantColumn,
		timeout:      cfg.Timeout,
		logger:       logger.With("component", "generator"),
	}
	if g.tenantColumn == "" {
		g.tenantColumn = "store_id"
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	return g
}

// Generate returns the model's proposed query. On any failure it returns an
// empty GeneratedQuery and a *domain.GenerationError.
func (g *Generator) Generate(ctx context.Context, request string, tenant domain.TenantID) (domain.GeneratedQuery, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return domain.GeneratedQuery{}, domain.ErrGeneration(nil, "failed to generate SQL: empty request")
	}

	schemaText, err := g.schema.GetSchemaForPrompt(ctx, tenant)
	if err != nil {
		return domain.GeneratedQuery{}, domain.ErrGeneration(err, "failed to generate SQL: load schema: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := g.llm.Complete(ctx, BuildSystemPrompt(schemaText, tenant, g.tenantColumn), request)
	if err != nil {
		g.logger.Warn("generation call failed", "tenant", int64(tenant), "error", err)
		return domain.GeneratedQuery{}, domain.ErrGeneration(err, "failed to generate SQL: %v", err)
	}

	q, err := ParseResponse(raw)
	if err != nil {
		g.logger.Warn("generation response rejected", "tenant", int64(tenant), "error", err)
		return domain.GeneratedQuery{}, domain.ErrGeneration(err, "failed to generate SQL: %v", err)
	}
	g.logger.Debug("query generated", "tenant", int64(tenant), "duration_ms", time.Since(start).Milliseconds())
	return q, nil
}

// BuildSystemPrompt renders the generation instructions for one tenant.
func BuildSystemPrompt(schemaText string, tenant domain.TenantID, tenantColumn string) string {
	var b strings.Builder
	b.WriteString("You translate questions from a store operator into a single read-only SQL query.\n\n")
	b.WriteString("Database schema:\n")
	b.WriteString(schemaText)
	b.WriteString("\nRules:\n")
	b.WriteString("1. Generate exactly one SELECT statement. Never modify data or schema.\n")
	fmt.Fprintf(&b, "2. Always filter every table that has a %s column with %s = %d.\n", tenantColumn, tenantColumn, tenant)
	b.WriteString("3. Only use the tables and columns listed above.\n")
	b.WriteString("4. Prefer explicit JOIN ... ON clauses over implicit joins.\n")
	b.WriteString("5. Add a sensible ORDER BY so results are stable.\n")
	b.WriteString("6. Use aggregate functions (SUM, COUNT, AVG) with GROUP BY when the question asks for totals or counts.\n")
	b.WriteString("\nRespond with a JSON object only, in this shape:\n")
	b.WriteString(`{"sql": "<query>", "explanation": "<one sentence for the operator>", "columns": ["<result column>", "..."]}`)
	b.WriteByte('\n')
	return b.String()
}

// ParseResponse extracts and validates the JSON answer. Markdown fences and
// minor JSON damage are tolerated; a missing or empty sql field is not.
func ParseResponse(raw string) (domain.GeneratedQuery, error) {
	text := extractJSON(raw)
	if text == "" {
		return domain.GeneratedQuery{}, fmt.Errorf("empty response")
	}

	var data map[string]interface{}
	if err := parseJSON(text, &data); err != nil {
		return domain.GeneratedQuery{}, fmt.Errorf("malformed response: %w", err)
	}

	result := responseSchema.Validate(data)
	if !result.IsValid() {
		var msgs []string
		for field, e := range result.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.Message))
		}
		sort.Strings(msgs)
		return domain.GeneratedQuery{}, fmt.Errorf("invalid response: %s", strings.Join(msgs, "; "))
	}

	q := domain.GeneratedQuery{
		SQL:             strings.TrimSpace(cast.ToString(data["sql"])),
		Explanation:     strings.TrimSpace(cast.ToString(data["explanation"])),
		ExpectedColumns: cast.ToStringSlice(data["columns"]),
	}
	if q.Empty() {
		return domain.GeneratedQuery{}, fmt.Errorf("response contains no SQL")
	}
	return q, nil
}

// extractJSON strips markdown fences and any prose around the outermost
// JSON object.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if start := strings.IndexByte(text, '{'); start > 0 {
		text = text[start:]
	}
	if end := strings.LastIndexByte(text, '}'); end >= 0 && end < len(text)-1 {
		text = text[:end+1]
	}
	return text
}

// parseJSON decodes model output, retrying with a closing brace and then
// with jsonrepair before giving up with the original error.
func parseJSON(text string, v interface{}) error {
	err := jsoniter.UnmarshalFromString(text, v)
	if err == nil {
		return nil
	}
	originalErr := err

	if err := jsoniter.UnmarshalFromString(text+"}", v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return originalErr
	}
	if err := jsoniter.UnmarshalFromString(repaired, v); err == nil {
		return nil
	}
	return originalErr
}
