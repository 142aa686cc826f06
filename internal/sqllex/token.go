// Package sqllex provides a comment- and quote-aware SQL tokenizer for the
// query validator.
//
// Tokens keep their raw source text so a token stream can be rendered back
// into executable SQL after targeted rewrites. Comments and whitespace are
// never emitted as tokens; a token only records whether it was separated
// from its predecessor.
package sqllex

import "strings"

// Kind classifies a token.
type Kind int

// Token kinds.
const (
	Word        Kind = iota // unquoted identifier or keyword
	QuotedIdent             // "x" or `x`
	String                  // 'x', E'x', $tag$x$tag$, MySQL "x"
	Number                  // 12, 1.5, 2e10
	Param                   // ?, $1, :name, @name
	Op                      // operators: = <> <= || ...
	Comma
	Dot
	LParen
	RParen
	Semicolon
)

var kindNames = map[Kind]string{
	Word:        "word",
	QuotedIdent: "quoted identifier",
	String:      "string",
	Number:      "number",
	Param:       "parameter",
	Op:          "operator",
	Comma:       "comma",
	Dot:         "dot",
	LParen:      "(",
	RParen:      ")",
	Semicolon:   ";",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Token is a lexical token with its raw source text.
type Token struct {
	Kind Kind
	Text string
	Pos  int // byte offset in the source, -1 for synthesized tokens
	// SpaceBefore is set when whitespace or a comment separated this token
	// from the previous one.
	SpaceBefore bool
}

// IsWord reports whether the token is the unquoted word kw (case-insensitive).
func (t Token) IsWord(kw string) bool {
	return t.Kind == Word && strings.EqualFold(t.Text, kw)
}

// IsOp reports whether the token is the operator op.
func (t Token) IsOp(op string) bool {
	return t.Kind == Op && t.Text == op
}

// Upper returns the upper-cased token text, used for keyword matching.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// IsIdent reports whether the token can name a table or column.
func (t Token) IsIdent() bool {
	return t.Kind == Word || t.Kind == QuotedIdent
}

// Ident returns the identifier with quoting removed, lowercased.
// Quoted identifiers keep escaped quote characters collapsed.
func (t Token) Ident() string {
	switch t.Kind {
	case Word:
		return strings.ToLower(t.Text)
	case QuotedIdent:
		if len(t.Text) < 2 {
			return ""
		}
		q := t.Text[:1]
		inner := t.Text[1 : len(t.Text)-1]
		return strings.ToLower(strings.ReplaceAll(inner, q+q, q))
	default:
		return ""
	}
}

// IsLiteral reports whether the token is a constant value or bind placeholder.
func (t Token) IsLiteral() bool {
	return t.Kind == String || t.Kind == Number || t.Kind == Param
}

// Synth builds a synthesized token for insertion into a stream.
func Synth(kind Kind, text string, spaceBefore bool) Token {
	return Token{Kind: kind, Text: text, Pos: -1, SpaceBefore: spaceBefore}
}

// Render joins tokens back into SQL. Tokens separated in the source are
// joined by a single space; adjacent tokens stay adjacent.
func Render(toks []Token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 && t.SpaceBefore {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
