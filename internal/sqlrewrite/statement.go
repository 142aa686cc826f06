package sqlrewrite

import (
	"fmt"
	"strings"

	"dynaquery/internal/sqllex"
)

// statement is the structural view of one tokenized SELECT statement:
// paren depths, CTE names and the SELECT blocks it contains.
type statement struct {
	toks   []sqllex.Token
	depth  []int       // paren depth per token; parens carry the outer depth
	match  map[int]int // '(' index -> matching ')' index
	ctes   map[string]bool
	blocks []*block
}

// block is one SELECT ... query block: the top-level query, a UNION branch,
// a CTE body or a subquery.
type block struct {
	start, end int // [start, end), start is the SELECT keyword
	depth      int
	from       int // index of FROM, -1 when absent
	where      int // index of WHERE, -1 when absent
	tail       int // first trailing clause (GROUP BY, ORDER BY, LIMIT, ...) or end
	tables     []tableRef
}

// tableRef is one table reference after FROM or JOIN.
type tableRef struct {
	name      string // lowercased, unquoted, dot-joined
	raw       string // as written, used to qualify injected predicates
	alias     string // raw alias text, empty when absent
	aliasName string // lowercased, unquoted alias
	subquery  bool
}

// qualifier returns the text that names the reference in predicates.
func (r tableRef) qualifier() string {
	if r.alias != "" {
		return r.alias
	}
	return r.raw
}

var setOperators = map[string]bool{
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "MINUS": true,
}

// Clauses that end a WHERE clause or mark where a new WHERE goes.
var tailClauses = map[string]bool{
	"GROUP": true, "HAVING": true, "WINDOW": true, "QUALIFY": true,
	"ORDER": true, "LIMIT": true, "OFFSET": true, "FETCH": true,
}

// Words that cannot be a bare table alias.
var reservedAfterTable = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true, "LIMIT": true,
	"OFFSET": true, "FETCH": true, "JOIN": true, "INNER": true, "LEFT": true,
	"RIGHT": true, "FULL": true, "CROSS": true, "OUTER": true, "NATURAL": true,
	"ON": true, "USING": true, "UNION": true, "INTERSECT": true, "EXCEPT": true,
	"MINUS": true, "WINDOW": true, "QUALIFY": true, "FOR": true,
	"STRAIGHT_JOIN": true, "LATERAL": true, "USE": true, "FORCE": true,
	"IGNORE": true, "TABLESAMPLE": true, "PARTITION": true,
}

func parseStatement(toks []sqllex.Token) (*statement, error) {
	s := &statement{
		toks:  toks,
		depth: make([]int, len(toks)),
		match: make(map[int]int),
		ctes:  make(map[string]bool),
	}
	var stack []int
	for i, t := range toks {
		switch t.Kind {
		case sqllex.LParen:
			s.depth[i] = len(stack)
			stack = append(stack, i)
		case sqllex.RParen:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			s.match[open] = i
			s.depth[i] = len(stack)
		default:
			s.depth[i] = len(stack)
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}

	if toks[0].IsWord("WITH") {
		if err := s.parseCTEs(); err != nil {
			return nil, err
		}
	}
	if err := s.checkSetOperands(); err != nil {
		return nil, err
	}
	for i, t := range toks {
		if t.IsWord("SELECT") {
			b, err := s.parseBlock(i)
			if err != nil {
				return nil, err
			}
			s.blocks = append(s.blocks, b)
		}
	}
	return s, nil
}

func (s *statement) at(i int) sqllex.Token {
	if i < 0 || i >= len(s.toks) {
		return sqllex.Token{Kind: sqllex.Semicolon, Pos: -1}
	}
	return s.toks[i]
}

// parseCTEs records the names defined by a leading WITH clause and checks
// that the main query is a SELECT.
func (s *statement) parseCTEs() error {
	n := len(s.toks)
	i := 1
	if s.at(i).IsWord("RECURSIVE") {
		i++
	}
	for {
		if i >= n || !s.toks[i].IsIdent() {
			return fmt.Errorf("malformed WITH clause")
		}
		s.ctes[s.toks[i].Ident()] = true
		i++
		if s.at(i).Kind == sqllex.LParen {
			i = s.match[i] + 1
		}
		if !s.at(i).IsWord("AS") {
			return fmt.Errorf("malformed WITH clause")
		}
		i++
		for s.at(i).IsWord("NOT") || s.at(i).IsWord("MATERIALIZED") {
			i++
		}
		if s.at(i).Kind != sqllex.LParen {
			return fmt.Errorf("malformed WITH clause")
		}
		i = s.match[i] + 1
		if s.at(i).Kind == sqllex.Comma {
			i++
			continue
		}
		break
	}
	if !s.at(i).IsWord("SELECT") {
		return fmt.Errorf("WITH must be followed by SELECT")
	}
	return nil
}

// checkSetOperands requires every UNION/INTERSECT/EXCEPT operand to be a
// SELECT, optionally parenthesized.
func (s *statement) checkSetOperands() error {
	for i, t := range s.toks {
		if t.Kind != sqllex.Word || !setOperators[t.Upper()] {
			continue
		}
		j := i + 1
		if s.at(j).IsWord("ALL") || s.at(j).IsWord("DISTINCT") {
			j++
		}
		for s.at(j).Kind == sqllex.LParen {
			j++
		}
		if !s.at(j).IsWord("SELECT") {
			return fmt.Errorf("%s must be followed by SELECT", t.Upper())
		}
	}
	return nil
}

func (s *statement) parseBlock(start int) (*block, error) {
	d := s.depth[start]
	b := &block{start: start, depth: d, from: -1, where: -1}
	end := start + 1
	for end < len(s.toks) {
		if s.depth[end] < d {
			break
		}
		if s.depth[end] == d && s.toks[end].Kind == sqllex.Word && setOperators[s.toks[end].Upper()] {
			break
		}
		end++
	}
	b.end = end
	b.tail = end

	for i := start + 1; i < end; i++ {
		if s.depth[i] != d {
			continue
		}
		t := s.toks[i]
		switch {
		case t.IsWord("FROM") && b.from < 0 && !s.at(i-1).IsWord("DISTINCT"):
			b.from = i
			refs, err := s.parseFromList(i+1, end)
			if err != nil {
				return nil, err
			}
			b.tables = append(b.tables, refs...)
		case (t.IsWord("JOIN") || t.IsWord("STRAIGHT_JOIN")) && b.from >= 0:
			refs, err := s.parseFromList(i+1, end)
			if err != nil {
				return nil, err
			}
			b.tables = append(b.tables, refs...)
		case t.IsWord("WHERE") && b.where < 0 && b.from >= 0:
			b.where = i
		case t.Kind == sqllex.Word && tailClauses[t.Upper()] && b.tail == end && b.from >= 0:
			b.tail = i
		}
	}
	return b, nil
}

// parseFromList parses comma-separated table references starting at i.
func (s *statement) parseFromList(i, end int) ([]tableRef, error) {
	var refs []tableRef
	for {
		ref, next, err := s.parseTableRef(i, end)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
		if next < end && s.toks[next].Kind == sqllex.Comma {
			i = next + 1
			continue
		}
		return refs, nil
	}
}

func (s *statement) parseTableRef(i, end int) (tableRef, int, error) {
	var ref tableRef
	for i < end && (s.toks[i].IsWord("ONLY") || s.toks[i].IsWord("LATERAL")) {
		i++
	}
	if i >= end {
		return ref, i, fmt.Errorf("missing table name")
	}

	switch t := s.toks[i]; {
	case t.Kind == sqllex.LParen:
		inner := s.at(i + 1)
		if !inner.IsWord("SELECT") && !inner.IsWord("WITH") {
			return ref, i, fmt.Errorf("parenthesized table references are not supported")
		}
		ref.subquery = true
		i = s.match[i] + 1
	case t.IsIdent():
		parts := []string{t.Ident()}
		raw := []string{t.Text}
		i++
		for i+1 < end && s.toks[i].Kind == sqllex.Dot && s.toks[i+1].IsIdent() {
			parts = append(parts, s.toks[i+1].Ident())
			raw = append(raw, s.toks[i+1].Text)
			i += 2
		}
		if i < end && s.toks[i].Kind == sqllex.LParen {
			return ref, i, fmt.Errorf("table functions are not allowed: %s", strings.Join(parts, "."))
		}
		ref.name = strings.Join(parts, ".")
		ref.raw = strings.Join(raw, ".")
	default:
		return ref, i, fmt.Errorf("missing table name")
	}

	if i < end && s.toks[i].IsWord("AS") {
		i++
		if i < end && s.toks[i].IsIdent() {
			ref.alias, ref.aliasName = s.toks[i].Text, s.toks[i].Ident()
			i++
		}
	} else if i < end && (s.toks[i].Kind == sqllex.QuotedIdent ||
		(s.toks[i].Kind == sqllex.Word && !reservedAfterTable[s.toks[i].Upper()])) {
		ref.alias, ref.aliasName = s.toks[i].Text, s.toks[i].Ident()
		i++
	}
	// Derived-table column aliases: AS x(a, b)
	if ref.subquery && i < end && s.toks[i].Kind == sqllex.LParen {
		i = s.match[i] + 1
	}
	return ref, i, nil
}

// baseTables returns every non-CTE, non-subquery table referenced.
func (s *statement) baseTables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range s.blocks {
		for _, r := range b.tables {
			if r.subquery || s.isCTE(r) || seen[r.name] {
				continue
			}
			seen[r.name] = true
			out = append(out, r.name)
		}
	}
	return out
}

func (s *statement) isCTE(r tableRef) bool {
	return !strings.Contains(r.name, ".") && s.ctes[r.name]
}
