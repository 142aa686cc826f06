package sqllex

import (
	"fmt"
)

// Options select dialect-specific lexing rules.
type Options struct {
	// HashComments treats '#' as a line comment (MySQL).
	HashComments bool
	// BackslashEscapes lets '\' escape the next character inside string
	// literals (MySQL default sql_mode).
	BackslashEscapes bool
	// DollarQuotes enables $tag$...$tag$ string literals (PostgreSQL, DuckDB).
	DollarQuotes bool
	// EscapeStrings lexes E'...' as a string literal with backslash escapes
	// (PostgreSQL, DuckDB).
	EscapeStrings bool
	// DoubleQuoteStrings lexes "..." as a string literal instead of a quoted
	// identifier (MySQL without ANSI_QUOTES).
	DoubleQuoteStrings bool
	// BackslashSensitive marks dialects where a backslash inside some quoted
	// form changes where the literal ends.
	BackslashSensitive bool
}

// OptionsFor returns the lexing options for a database dialect name.
func OptionsFor(dialect string) Options {
	switch dialect {
	case "mysql":
		return Options{HashComments: true, BackslashEscapes: true, DoubleQuoteStrings: true, BackslashSensitive: true}
	case "postgres", "pgx", "postgresql", "duckdb":
		return Options{DollarQuotes: true, EscapeStrings: true, BackslashSensitive: true}
	default:
		return Options{}
	}
}

// Error reports malformed input at a byte offset.
type Error struct {
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	opts    Options
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	spaced  bool // whitespace or a comment precedes the next token
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string, opts Options) *Lexer {
	l := &Lexer{input: input, opts: opts}
	l.readChar()
	return l
}

// Tokenize lexes the whole input. Unterminated strings, quoted identifiers
// and block comments are errors.
func Tokenize(input string, opts Options) ([]Token, error) {
	l := NewLexer(input, opts)
	var toks []Token
	for {
		tok, ok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) eof() bool {
	return l.pos >= len(l.input)
}

// Next returns the next token. ok is false at end of input.
func (l *Lexer) Next() (tok Token, ok bool, err error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return Token{}, false, err
	}
	if l.eof() {
		return Token{}, false, nil
	}

	start := l.pos
	kind, err := l.scan()
	if err != nil {
		return Token{}, false, err
	}
	tok = Token{Kind: kind, Text: l.input[start:l.pos], Pos: start, SpaceBefore: l.spaced}
	l.spaced = false
	return tok, true, nil
}

// scan consumes one token starting at l.pos and returns its kind.
func (l *Lexer) scan() (Kind, error) {
	switch ch := l.ch; {
	case ch == '\'':
		return String, l.readQuoted('\'', l.opts.BackslashEscapes, "unterminated string literal")
	case ch == '"' && l.opts.DoubleQuoteStrings:
		return String, l.readQuoted('"', l.opts.BackslashEscapes, "unterminated string literal")
	case ch == '"':
		return QuotedIdent, l.readQuoted('"', false, "unterminated quoted identifier")
	case ch == '`':
		return QuotedIdent, l.readQuoted('`', false, "unterminated quoted identifier")
	case ch == ',':
		l.readChar()
		return Comma, nil
	case ch == ';':
		l.readChar()
		return Semicolon, nil
	case ch == '(':
		l.readChar()
		return LParen, nil
	case ch == ')':
		l.readChar()
		return RParen, nil
	case ch == '.':
		if isDigit(l.peekChar()) {
			l.readNumber()
			return Number, nil
		}
		l.readChar()
		return Dot, nil
	case ch == '?':
		l.readChar()
		return Param, nil
	case ch == '$':
		return l.readDollar()
	case ch == '@':
		l.readChar()
		if l.ch == '@' {
			l.readChar()
		}
		l.readIdentifier()
		return Param, nil
	case ch == ':':
		if isIdentStart(l.peekChar()) {
			l.readChar()
			l.readIdentifier()
			return Param, nil
		}
		l.readOperator()
		return Op, nil
	case isDigit(ch):
		l.readNumber()
		return Number, nil
	case (ch == 'E' || ch == 'e') && l.peekChar() == '\'' && l.opts.EscapeStrings:
		l.readChar()
		return String, l.readQuoted('\'', true, "unterminated string literal")
	case isIdentStart(ch):
		l.readIdentifier()
		return Word, nil
	default:
		l.readOperator()
		return Op, nil
	}
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for {
		switch {
		case isSpace(l.ch) && !l.eof():
			l.spaced = true
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			l.spaced = true
			l.skipLine()
		case l.ch == '#' && l.opts.HashComments:
			l.spaced = true
			l.skipLine()
		case l.ch == '/' && l.peekChar() == '*':
			l.spaced = true
			start := l.pos
			l.readChar()
			l.readChar()
			for {
				if l.eof() {
					return &Error{Pos: start, Msg: "unterminated block comment"}
				}
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				l.readChar()
			}
		default:
			return nil
		}
	}
}

func (l *Lexer) skipLine() {
	for !l.eof() && l.ch != '\n' {
		l.readChar()
	}
}

// readQuoted consumes a quoted literal. A doubled quote is an escaped quote.
func (l *Lexer) readQuoted(q byte, backslash bool, msg string) error {
	start := l.pos
	l.readChar()
	for {
		if l.eof() {
			return &Error{Pos: start, Msg: msg}
		}
		switch {
		case backslash && l.ch == '\\':
			l.readChar()
			if l.eof() {
				return &Error{Pos: start, Msg: msg}
			}
			l.readChar()
		case l.ch == q && l.peekChar() == q:
			l.readChar()
			l.readChar()
		case l.ch == q:
			l.readChar()
			return nil
		default:
			l.readChar()
		}
	}
}

// readDollar handles $1 placeholders and $tag$...$tag$ strings.
func (l *Lexer) readDollar() (Kind, error) {
	start := l.pos
	if isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		return Param, nil
	}
	if !l.opts.DollarQuotes {
		l.readChar()
		return Op, nil
	}
	// Opening tag: $ [ident] $
	end := l.readPos
	for end < len(l.input) && isIdentPart(l.input[end]) {
		end++
	}
	if end >= len(l.input) || l.input[end] != '$' {
		l.readChar()
		return Op, nil
	}
	tag := l.input[start : end+1]
	for l.pos <= end {
		l.readChar()
	}
	for {
		if l.eof() {
			return 0, &Error{Pos: start, Msg: "unterminated dollar-quoted string"}
		}
		if l.ch == '$' && len(l.input)-l.pos >= len(tag) && l.input[l.pos:l.pos+len(tag)] == tag {
			for i := 0; i < len(tag); i++ {
				l.readChar()
			}
			return String, nil
		}
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() {
	for !l.eof() && isIdentPart(l.ch) {
		l.readChar()
	}
}

func (l *Lexer) readNumber() {
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if (l.ch == 'e' || l.ch == 'E') && (isDigit(l.peekChar()) || l.peekChar() == '+' || l.peekChar() == '-') {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
}

var multiCharOps = []string{"<=>", "->>", "<>", "<=", ">=", "!=", "||", "::", ":=", "->", "<<", ">>", "&&"}

// readOperator consumes the longest known operator, else a single byte.
func (l *Lexer) readOperator() {
	rest := l.input[l.pos:]
	for _, op := range multiCharOps {
		if len(rest) >= len(op) && rest[:len(op)] == op {
			for i := 0; i < len(op); i++ {
				l.readChar()
			}
			return
		}
	}
	l.readChar()
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Bytes >= 0x80 are treated as identifier characters so UTF-8 names lex as
// a single word.
func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}
