package sqlrewrite

import (
	"fmt"
	"strconv"

	"dynaquery/internal/sqllex"
)

// capLimit makes sure the top-level query carries exactly one LIMIT no
// larger than maxRows. LIMIT clauses inside subqueries are left alone.
func capLimit(s *statement, ed *edits, maxRows int) error {
	idx := -1
	for i, t := range s.toks {
		if s.depth[i] != 0 {
			continue
		}
		switch {
		case t.IsWord("LIMIT"):
			if idx >= 0 {
				return fmt.Errorf("multiple LIMIT clauses are not allowed")
			}
			idx = i
		case t.IsWord("FETCH"):
			return fmt.Errorf("FETCH clauses are not supported, use LIMIT")
		}
	}

	capText := strconv.Itoa(maxRows)
	if idx < 0 {
		n := len(s.toks)
		ed.insertBefore(n, sqllex.Synth(sqllex.Word, "LIMIT", true), sqllex.Synth(sqllex.Number, capText, true))
		return nil
	}

	count := idx + 1
	if s.at(count+1).Kind == sqllex.Comma {
		// MySQL "LIMIT offset, count"
		if !isLimitValue(s.at(count)) {
			return fmt.Errorf("unsupported LIMIT expression")
		}
		// Statements run without bind arguments.
		if off := s.at(count); off.Kind == sqllex.Param {
			ed.replace[count] = sqllex.Synth(sqllex.Number, "0", off.SpaceBefore)
		}
		count += 2
	}
	t := s.at(count)
	if !isLimitValue(t) && !t.IsWord("ALL") {
		return fmt.Errorf("unsupported LIMIT expression")
	}
	if after := s.at(count + 1); count+1 < len(s.toks) && !after.IsWord("OFFSET") {
		return fmt.Errorf("unsupported LIMIT expression")
	}

	if t.Kind == sqllex.Number {
		if n, err := strconv.Atoi(t.Text); err == nil && n <= maxRows {
			return nil
		}
	}
	ed.replace[count] = sqllex.Synth(sqllex.Number, capText, t.SpaceBefore)
	return nil
}

func isLimitValue(t sqllex.Token) bool {
	return t.Kind == sqllex.Number || t.Kind == sqllex.Param
}

// CapLimit rewrites sql so its top-level LIMIT is at most maxRows, appending
// one when absent. Applying it to already-capped SQL is a no-op.
func CapLimit(sql string, maxRows int, opts sqllex.Options) (string, error) {
	toks, err := sqllex.Tokenize(sql, opts)
	if err != nil {
		return "", err
	}
	toks = trimSemicolons(toks)
	if len(toks) == 0 {
		return "", fmt.Errorf("empty query")
	}
	s, err := parseStatement(toks)
	if err != nil {
		return "", err
	}
	ed := newEdits()
	if err := capLimit(s, ed, maxRows); err != nil {
		return "", err
	}
	return sqllex.Render(ed.apply(toks)), nil
}

func trimSemicolons(toks []sqllex.Token) []sqllex.Token {
	for len(toks) > 0 && toks[len(toks)-1].Kind == sqllex.Semicolon {
		toks = toks[:len(toks)-1]
	}
	return toks
}
