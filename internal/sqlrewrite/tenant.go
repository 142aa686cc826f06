package sqlrewrite

import (
	"fmt"
	"strings"

	"dynaquery/internal/domain"
	"dynaquery/internal/sqllex"
)

// tenantEq is a tenant-column equality against a single literal value,
// after rewriting the literal to the caller's tenant.
type tenantEq struct {
	start, end int    // token range covering "[q.]col = lit" or "lit = [q.]col"
	qualifier  string // lowercased qualifier, empty when unqualified
}

// Predicates following a tenant reference that are not a plain equality.
var nonEqualityWords = map[string]bool{
	"IN": true, "NOT": true, "LIKE": true, "ILIKE": true, "BETWEEN": true,
	"IS": true, "REGEXP": true, "RLIKE": true, "SIMILAR": true, "GLOB": true,
	"MATCH": true, "SOUNDS": true,
}

// Words inside a WHERE clause that make a conjunct-level tenant equality
// insufficient on its own.
var untrustingWords = map[string]bool{
	"OR": true, "XOR": true, "NOT": true, "BETWEEN": true, "CASE": true,
}

// scopeTenant rewrites every tenant equality to the tenant literal and makes
// sure each query block reading a base table is filtered to the tenant.
func (v *Validator) scopeTenant(s *statement, ed *edits, tenant domain.TenantID) []string {
	eqs, errs := v.rewriteTenantLiterals(s, ed, tenant)
	if len(errs) > 0 {
		return errs
	}

	for _, b := range s.blocks {
		if b.from < 0 || len(b.tables) == 0 {
			continue
		}
		primary := b.tables[0]
		if primary.subquery || s.isCTE(primary) {
			continue
		}
		if v.blockTrusted(s, b, primary, eqs) {
			continue
		}
		v.injectScope(s, ed, b, primary, tenant)
	}
	return nil
}

func (v *Validator) isTenantRef(t sqllex.Token) bool {
	return t.IsIdent() && t.Ident() == v.tenantColumn
}

// rewriteTenantLiterals finds every reference to the tenant column, rewrites
// literal and placeholder comparisons to the tenant value and rejects
// non-equality predicates on it.
func (v *Validator) rewriteTenantLiterals(s *statement, ed *edits, tenant domain.TenantID) ([]tenantEq, []string) {
	var eqs []tenantEq
	var errs []string
	lit := tenant.String()

	for i, t := range s.toks {
		if !v.isTenantRef(t) {
			continue
		}
		start, qualifier := i, ""
		if s.at(i-1).Kind == sqllex.Dot && s.at(i-2).IsIdent() {
			start, qualifier = i-2, s.at(i-2).Ident()
		}
		prev, next := s.at(start-1), s.at(i+1)

		switch {
		case next.IsOp("="):
			r := i + 2
			litStart, litEnd, ok := literalSpan(s, r)
			if !ok {
				// column-to-column comparison such as a join condition
				continue
			}
			if s.at(litEnd).Kind == sqllex.Op {
				errs = append(errs, fmt.Sprintf("tenant column %s must be compared with a single value", v.tenantColumn))
				continue
			}
			replaceLiteral(s, ed, litStart, litEnd, lit)
			eqs = append(eqs, tenantEq{start: start, end: litEnd, qualifier: qualifier})

		case prev.IsOp("="):
			litStart, litEnd, ok := literalSpanBackward(s, start-2)
			if !ok {
				continue
			}
			if before := s.at(litStart - 1); before.Kind == sqllex.Op {
				errs = append(errs, fmt.Sprintf("tenant column %s must be compared with a single value", v.tenantColumn))
				continue
			}
			if next.Kind == sqllex.Op {
				errs = append(errs, fmt.Sprintf("tenant column %s must be compared with '='", v.tenantColumn))
				continue
			}
			replaceLiteral(s, ed, litStart, litEnd, lit)
			eqs = append(eqs, tenantEq{start: litStart, end: i + 1, qualifier: qualifier})

		case next.Kind == sqllex.Op,
			next.Kind == sqllex.Word && nonEqualityWords[next.Upper()],
			prev.Kind == sqllex.Op:
			errs = append(errs, fmt.Sprintf("tenant column %s must be compared with '='", v.tenantColumn))
		}
	}
	return eqs, dedupe(errs)
}

// literalSpan returns the token range [start, end) of a literal beginning at
// i, accepting a leading unary minus on numbers.
func literalSpan(s *statement, i int) (int, int, bool) {
	t := s.at(i)
	if t.IsLiteral() {
		return i, i + 1, true
	}
	if t.IsOp("-") && s.at(i+1).Kind == sqllex.Number {
		return i, i + 2, true
	}
	return 0, 0, false
}

// literalSpanBackward returns the literal range ending at token i.
func literalSpanBackward(s *statement, i int) (int, int, bool) {
	if i < 0 {
		return 0, 0, false
	}
	t := s.toks[i]
	if !t.IsLiteral() {
		return 0, 0, false
	}
	if t.Kind == sqllex.Number && s.at(i-1).IsOp("-") {
		return i - 1, i + 1, true
	}
	return i, i + 1, true
}

func replaceLiteral(s *statement, ed *edits, start, end int, lit string) {
	ed.replace[start] = sqllex.Synth(sqllex.Number, lit, s.toks[start].SpaceBefore)
	for j := start + 1; j < end; j++ {
		ed.remove[j] = true
	}
}

// blockTrusted reports whether the block's WHERE clause already holds a
// conjunct-level equality on the primary table's tenant column.
func (v *Validator) blockTrusted(s *statement, b *block, primary tableRef, eqs []tenantEq) bool {
	if b.where < 0 {
		return false
	}
	for i := b.where + 1; i < b.tail; i++ {
		if s.depth[i] != b.depth {
			continue
		}
		t := s.toks[i]
		if (t.Kind == sqllex.Word && untrustingWords[t.Upper()]) || t.IsOp("||") || t.IsOp("!") {
			return false
		}
	}

	accepted := map[string]bool{"": true, primary.name: true}
	if primary.aliasName != "" {
		accepted[primary.aliasName] = true
	}
	if dot := strings.LastIndex(primary.name, "."); dot >= 0 {
		accepted[primary.name[dot+1:]] = true
	}

	for _, eq := range eqs {
		if eq.start <= b.where || eq.end > b.tail || s.depth[eq.start] != b.depth {
			continue
		}
		if !accepted[eq.qualifier] {
			continue
		}
		before, after := s.at(eq.start-1), s.at(eq.end)
		if !before.IsWord("WHERE") && !before.IsWord("AND") && !before.IsOp("&&") {
			continue
		}
		if eq.end != b.tail && !after.IsWord("AND") && !after.IsOp("&&") {
			continue
		}
		return true
	}
	return false
}

// injectScope adds "<qualifier>.<tenant column> = <tenant>" to the block,
// ANDed with a parenthesized existing WHERE or as a new WHERE clause.
func (v *Validator) injectScope(s *statement, ed *edits, b *block, primary tableRef, tenant domain.TenantID) {
	pred := []sqllex.Token{
		sqllex.Synth(sqllex.Word, primary.qualifier()+"."+v.tenantColumn, true),
		sqllex.Synth(sqllex.Op, "=", true),
		sqllex.Synth(sqllex.Number, tenant.String(), true),
	}
	if b.where >= 0 {
		ed.insertBefore(b.where+1, sqllex.Synth(sqllex.LParen, "(", true))
		ed.insertBefore(b.tail, sqllex.Synth(sqllex.RParen, ")", false), sqllex.Synth(sqllex.Word, "AND", true))
		ed.insertBefore(b.tail, pred...)
		return
	}
	ed.insertBefore(b.tail, sqllex.Synth(sqllex.Word, "WHERE", true))
	ed.insertBefore(b.tail, pred...)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
