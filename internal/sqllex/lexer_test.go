package sqllex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func texts(toks []Token) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Text
	}
	return out
}

func TestTokenize_Kinds(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		opts      Options
		wantKinds []Kind
		wantTexts []string
	}{
		{
			name:      "simple select",
			input:     "SELECT a, b FROM t",
			wantKinds: []Kind{Word, Word, Comma, Word, Word, Word},
			wantTexts: []string{"SELECT", "a", ",", "b", "FROM", "t"},
		},
		{
			name:      "qualified and quoted",
			input:     "select `o`.\"total\" from shop.orders",
			wantKinds: []Kind{Word, QuotedIdent, Dot, QuotedIdent, Word, Word, Dot, Word},
			wantTexts: []string{"select", "`o`", ".", "\"total\"", "from", "shop", ".", "orders"},
		},
		{
			name:      "string with doubled quote",
			input:     "'it''s DROP'",
			wantKinds: []Kind{String},
			wantTexts: []string{"'it''s DROP'"},
		},
		{
			name:      "placeholders",
			input:     "? $1 :store @sid",
			wantKinds: []Kind{Param, Param, Param, Param},
			wantTexts: []string{"?", "$1", ":store", "@sid"},
		},
		{
			name:      "numbers",
			input:     "12 1.50 .5 2e10",
			wantKinds: []Kind{Number, Number, Number, Number},
			wantTexts: []string{"12", "1.50", ".5", "2e10"},
		},
		{
			name:      "operators",
			input:     "a<>b<=c::text||d",
			wantKinds: []Kind{Word, Op, Word, Op, Word, Op, Word, Op, Word},
			wantTexts: []string{"a", "<>", "b", "<=", "c", "::", "text", "||", "d"},
		},
		{
			name:      "comments dropped",
			input:     "SELECT /* DROP */ a -- DELETE\nFROM t",
			wantKinds: []Kind{Word, Word, Word, Word},
			wantTexts: []string{"SELECT", "a", "FROM", "t"},
		},
		{
			name:      "hash comment in mysql",
			input:     "SELECT 1 # DROP TABLE x",
			opts:      Options{HashComments: true},
			wantKinds: []Kind{Word, Number},
			wantTexts: []string{"SELECT", "1"},
		},
		{
			name:      "backslash escape in mysql",
			input:     `'a\'b' x`,
			opts:      Options{BackslashEscapes: true},
			wantKinds: []Kind{String, Word},
			wantTexts: []string{`'a\'b'`, "x"},
		},
		{
			name:      "escape string in postgres",
			input:     `E'\'' AS x, e'a\\' y`,
			opts:      OptionsFor("postgres"),
			wantKinds: []Kind{String, Word, Word, Comma, String, Word},
			wantTexts: []string{`E'\''`, "AS", "x", ",", `e'a\\'`, "y"},
		},
		{
			name:      "escape string in duckdb ends before a comment",
			input:     `SELECT E'\'' AS x -- ' FROM orders`,
			opts:      OptionsFor("duckdb"),
			wantKinds: []Kind{Word, String, Word, Word},
			wantTexts: []string{"SELECT", `E'\''`, "AS", "x"},
		},
		{
			name:      "E prefix without escape rules is a word",
			input:     `E'x'`,
			wantKinds: []Kind{Word, String},
			wantTexts: []string{"E", "'x'"},
		},
		{
			name:      "identifier ending in e is not a prefix",
			input:     `name'x'`,
			opts:      OptionsFor("postgres"),
			wantKinds: []Kind{Word, String},
			wantTexts: []string{"name", "'x'"},
		},
		{
			name:      "double quoted string in mysql",
			input:     `"\" FROM orders " , password`,
			opts:      OptionsFor("mysql"),
			wantKinds: []Kind{String, Comma, Word},
			wantTexts: []string{`"\" FROM orders "`, ",", "password"},
		},
		{
			name:      "double quotes are identifiers in postgres",
			input:     `"\" FROM orders`,
			opts:      OptionsFor("postgres"),
			wantKinds: []Kind{QuotedIdent, Word, Word},
			wantTexts: []string{`"\"`, "FROM", "orders"},
		},
		{
			name:      "dollar quoted string",
			input:     "$tag$ DROP $tag$ y",
			opts:      Options{DollarQuotes: true},
			wantKinds: []Kind{String, Word},
			wantTexts: []string{"$tag$ DROP $tag$", "y"},
		},
		{
			name:      "statement separator",
			input:     "SELECT 1; SELECT 2;",
			wantKinds: []Kind{Word, Number, Semicolon, Word, Number, Semicolon},
			wantTexts: []string{"SELECT", "1", ";", "SELECT", "2", ";"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			toks, err := Tokenize(tc.input, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.wantKinds, kinds(toks))
			assert.Equal(t, tc.wantTexts, texts(toks))
		})
	}
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  Options
	}{
		{"unterminated string", "SELECT 'abc", Options{}},
		{"unterminated identifier", "SELECT \"abc", Options{}},
		{"unterminated backtick", "SELECT `abc", Options{}},
		{"unterminated block comment", "SELECT 1 /* DROP", Options{}},
		{"unterminated dollar quote", "SELECT $$abc", Options{DollarQuotes: true}},
		{"trailing backslash", `SELECT 'abc\`, Options{BackslashEscapes: true}},
		{"unterminated escape string", `SELECT E'abc\'`, OptionsFor("duckdb")},
		{"unterminated mysql double quoted string", `SELECT "abc\"`, OptionsFor("mysql")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Tokenize(tc.input, tc.opts)
			require.Error(t, err)
			var lexErr *Error
			assert.ErrorAs(t, err, &lexErr)
		})
	}
}

func TestRender_CollapsesWhitespaceAndComments(t *testing.T) {
	toks, err := Tokenize("SELECT  o.id,\n\tcount(*)  -- note\nFROM orders o /* x */ WHERE o.total>5", Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT o.id, count(*) FROM orders o WHERE o.total>5", Render(toks))
}

func TestToken_Ident(t *testing.T) {
	toks, err := Tokenize("Orders \"My\"\"Tbl\" `Back`", Options{})
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, "orders", toks[0].Ident())
	assert.Equal(t, "my\"tbl", toks[1].Ident())
	assert.Equal(t, "back", toks[2].Ident())
	assert.True(t, toks[0].IsWord("ORDERS"))
	assert.False(t, toks[1].IsWord("my\"tbl"))
}

func TestOptionsFor(t *testing.T) {
	assert.True(t, OptionsFor("mysql").HashComments)
	assert.True(t, OptionsFor("postgres").DollarQuotes)
	assert.True(t, OptionsFor("mysql").DoubleQuoteStrings)
	assert.True(t, OptionsFor("duckdb").EscapeStrings)
	assert.True(t, OptionsFor("pgx").BackslashSensitive)
	assert.False(t, OptionsFor("postgres").BackslashEscapes)
	assert.Equal(t, Options{}, OptionsFor("sqlite3"))
}
