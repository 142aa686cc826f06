package sqlrewrite

import "dynaquery/internal/sqllex"

// edits collects token-index keyed rewrites so several passes can change the
// same stream without recomputing offsets.
type edits struct {
	replace map[int]sqllex.Token
	remove  map[int]bool
	insert  map[int][]sqllex.Token // inserted before the index; len(toks) appends
}

func newEdits() *edits {
	return &edits{
		replace: make(map[int]sqllex.Token),
		remove:  make(map[int]bool),
		insert:  make(map[int][]sqllex.Token),
	}
}

func (e *edits) insertBefore(i int, toks ...sqllex.Token) {
	e.insert[i] = append(e.insert[i], toks...)
}

func (e *edits) apply(toks []sqllex.Token) []sqllex.Token {
	out := make([]sqllex.Token, 0, len(toks)+8)
	for i, t := range toks {
		out = append(out, e.insert[i]...)
		if e.remove[i] {
			continue
		}
		if r, ok := e.replace[i]; ok {
			t = r
		}
		out = append(out, t)
	}
	out = append(out, e.insert[len(toks)]...)
	for i := 1; i < len(out); i++ {
		if out[i-1].Kind == sqllex.LParen && out[i-1].Pos < 0 {
			out[i].SpaceBefore = false
		}
	}
	return out
}
