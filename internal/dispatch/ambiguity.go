package dispatch

// Ambiguity is a pair of methods for which some argument types would match
// both with neither more specific, and no third method covers the overlap.
type Ambiguity struct {
	A, B string
}

// meet returns the more specific of two intersecting constraints.
func (g *GenericFunction[B]) meet(a, b Constraint) (Constraint, bool) {
	switch {
	case g.leq(a, b):
		return a, true
	case g.leq(b, a):
		return b, true
	}
	return Constraint{}, false
}

// Ambiguities scans the table for method pairs whose overlap is ambiguous.
// Only methods with the same number of positionals and no variadic tail or
// defaults are compared; type parameters are judged by their bounds. The
// report is diagnostic and never prevents a definition.
func (g *GenericFunction[B]) Ambiguities() []Ambiguity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	plain := func(s *Signature) bool {
		return s.Variadic == nil && s.Required() == len(s.Params)
	}

	var out []Ambiguity
	for i, a := range g.methods {
		sa := a.Signature
		if !plain(sa) {
			continue
		}
		for _, b := range g.methods[i+1:] {
			sb := b.Signature
			if !plain(sb) || len(sa.Params) != len(sb.Params) {
				continue
			}
			n := len(sa.Params)
			if g.moreSpecific(sa, sb, n) || g.moreSpecific(sb, sa, n) {
				continue
			}

			overlap := make([]Constraint, n)
			intersects := true
			for k := 0; k < n; k++ {
				c, ok := g.meet(sa.Params[k].Constraint, sb.Params[k].Constraint)
				if !ok {
					intersects = false
					break
				}
				overlap[k] = c
			}
			if !intersects || g.covered(overlap) {
				continue
			}
			out = append(out, Ambiguity{A: g.Render(a), B: g.Render(b)})
		}
	}
	return out
}

// covered reports whether a plain method constrains exactly the overlap.
func (g *GenericFunction[B]) covered(overlap []Constraint) bool {
	for _, m := range g.methods {
		s := m.Signature
		if s.Variadic != nil || len(s.Params) != len(overlap) {
			continue
		}
		exact := true
		for k, c := range overlap {
			pc := s.Params[k].Constraint
			if !g.leq(pc, c) || !g.leq(c, pc) {
				exact = false
				break
			}
		}
		if exact {
			return true
		}
	}
	return false
}
