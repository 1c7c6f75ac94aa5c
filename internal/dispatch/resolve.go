package dispatch

import (
	"sort"
	"strconv"
	"strings"

	"github.com/funvibe/dispatch/internal/diagnostics"
	"github.com/funvibe/dispatch/internal/typesystem"
)

// Resolve selects the unique most specific method applicable to a call with
// the given positional argument types and keyword names.
func (g *GenericFunction[B]) Resolve(argTypes []typesystem.TypeID, kwNames []string) (*Method[B], error) {
	kws := append([]string(nil), kwNames...)
	sort.Strings(kws)
	for i := 1; i < len(kws); i++ {
		if kws[i] == kws[i-1] {
			return nil, diagnostics.Argument(g.Name, "keyword argument %s repeated in call to %s", kws[i], g.Name)
		}
	}
	key := cacheKey(argTypes, kws)

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.opts.Cache {
		g.cacheMu.Lock()
		m, ok := g.cache[key]
		g.cacheMu.Unlock()
		if ok {
			g.log.Debug("dispatch cache hit", "call", key)
			return m, nil
		}
	}

	var applicable []*Method[B]
	keywordRejected := false
	for _, m := range g.methods {
		if !g.positionalApplicable(m.Signature, argTypes) {
			continue
		}
		if !keywordsApplicable(m.Signature, kws) {
			keywordRejected = true
			continue
		}
		applicable = append(applicable, m)
	}

	if len(applicable) == 0 {
		if keywordRejected {
			return nil, diagnostics.Argument(g.Name, "unsupported keyword argument in %s", g.renderCall(argTypes, kws))
		}
		return nil, diagnostics.NoMethod(g.Name, g.renderCall(argTypes, kws), g.closest(argTypes, kws))
	}

	maximal := g.maximal(applicable, len(argTypes))
	if len(maximal) == 0 {
		// the tie-break rules can form a cycle across signatures of
		// different lengths; report every applicable method
		maximal = applicable
	}
	if len(maximal) != 1 {
		candidates := make([]string, len(maximal))
		for i, m := range maximal {
			candidates[i] = g.Render(m)
		}
		g.log.Debug("ambiguous call", "call", g.renderCall(argTypes, kws), "candidates", len(maximal))
		return nil, diagnostics.Ambiguous(g.Name, g.renderCall(argTypes, kws), candidates)
	}

	selected := maximal[0]
	if g.opts.Cache {
		g.cacheMu.Lock()
		g.cache[key] = selected
		g.cacheMu.Unlock()
		g.log.Debug("dispatch cache miss", "call", key, "selected", selected.seq)
	}
	return selected, nil
}

func cacheKey(argTypes []typesystem.TypeID, sortedKws []string) string {
	var sb strings.Builder
	for i, t := range argTypes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(t)))
	}
	sb.WriteByte(';')
	sb.WriteString(strings.Join(sortedKws, ","))
	return sb.String()
}

// satisfies checks one argument type against a constraint, recording the
// binding of a type parameter on first use.
func (g *GenericFunction[B]) satisfies(c Constraint, t typesystem.TypeID, vars map[string]typesystem.TypeID) bool {
	switch c.Kind {
	case Bounded:
		return g.types.IsSubtype(t, c.Type)
	case TypeParam:
		if c.Type != typesystem.NoType && !g.types.IsSubtype(t, c.Type) {
			return false
		}
		if prev, ok := vars[c.Var]; ok {
			return prev == t
		}
		vars[c.Var] = t
	}
	return true
}

func (g *GenericFunction[B]) positionalApplicable(sig *Signature, argTypes []typesystem.TypeID) bool {
	n := len(argTypes)
	fixed := len(sig.Params)
	if n < sig.Required() {
		return false
	}
	if n > fixed && sig.Variadic == nil {
		return false
	}

	vars := make(map[string]typesystem.TypeID)
	for i := 0; i < n && i < fixed; i++ {
		if !g.satisfies(sig.Params[i].Constraint, argTypes[i], vars) {
			return false
		}
	}
	for i := fixed; i < n; i++ {
		if !g.satisfies(sig.Variadic.Constraint, argTypes[i], vars) {
			return false
		}
	}
	return true
}

func keywordsApplicable(sig *Signature, kws []string) bool {
	for _, k := range kws {
		if !sig.HasKeyword(k) {
			return false
		}
	}
	return true
}

// leq reports whether a is at least as specific as b.
func (g *GenericFunction[B]) leq(a, b Constraint) bool {
	bb := b.bound()
	if bb == typesystem.NoType {
		return true
	}
	ab := a.bound()
	if ab == typesystem.NoType {
		return false
	}
	return g.types.IsSubtype(ab, bb)
}

// arityRank orders how a signature absorbs a call of n positionals:
// exactly, by filling defaults, or through a variadic tail.
func arityRank(sig *Signature, n int) int {
	switch {
	case sig.Variadic != nil:
		return 2
	case n < len(sig.Params):
		return 1
	}
	return 0
}

// diagonal lists the position pairs a signature forces to share a type.
func diagonal(sig *Signature, n int) map[[2]int]bool {
	pairs := make(map[[2]int]bool)
	limit := n
	if limit > len(sig.Params) {
		limit = len(sig.Params)
	}
	for i := 0; i < limit; i++ {
		ci := sig.Params[i].Constraint
		if ci.Kind != TypeParam {
			continue
		}
		for j := i + 1; j < limit; j++ {
			cj := sig.Params[j].Constraint
			if cj.Kind == TypeParam && cj.Var == ci.Var {
				pairs[[2]int{i, j}] = true
			}
		}
	}
	return pairs
}

func strictSuperset(a, b map[[2]int]bool) bool {
	if len(a) <= len(b) {
		return false
	}
	for k := range b {
		if !a[k] {
			return false
		}
	}
	return true
}

// moreSpecific reports whether a is strictly more specific than b for a
// call with n positional arguments. Only fixed positions present in both
// signatures are compared; variadic tails and keyword sets take no part.
// When every compared position is equal, a signature that matches the
// arity without a variadic tail or defaults wins, then one whose
// type-parameter equalities strictly include the other's.
func (g *GenericFunction[B]) moreSpecific(a, b *Signature, n int) bool {
	limit := n
	if len(a.Params) < limit {
		limit = len(a.Params)
	}
	if len(b.Params) < limit {
		limit = len(b.Params)
	}

	strict := false
	for i := 0; i < limit; i++ {
		ca, cb := a.Params[i].Constraint, b.Params[i].Constraint
		if !g.leq(ca, cb) {
			return false
		}
		if !g.leq(cb, ca) {
			strict = true
		}
	}
	if strict {
		return true
	}

	ra, rb := arityRank(a, n), arityRank(b, n)
	if ra != rb {
		return ra < rb
	}
	return strictSuperset(diagonal(a, n), diagonal(b, n))
}

func (g *GenericFunction[B]) maximal(applicable []*Method[B], n int) []*Method[B] {
	var out []*Method[B]
	for _, m := range applicable {
		dominated := false
		for _, o := range applicable {
			if o != m && g.moreSpecific(o.Signature, m.Signature, n) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, m)
		}
	}
	return out
}

// distance counts the positions (and keywords) at which sig fails to
// accept the call.
func (g *GenericFunction[B]) distance(sig *Signature, argTypes []typesystem.TypeID, kws []string) int {
	vars := make(map[string]typesystem.TypeID)
	d := 0
	n := len(argTypes)
	for i := 0; i < n; i++ {
		switch {
		case i < len(sig.Params):
			if !g.satisfies(sig.Params[i].Constraint, argTypes[i], vars) {
				d++
			}
		case sig.Variadic != nil:
			if !g.satisfies(sig.Variadic.Constraint, argTypes[i], vars) {
				d++
			}
		default:
			d++
		}
	}
	if req := sig.Required(); n < req {
		d += req - n
	}
	for _, k := range kws {
		if !sig.HasKeyword(k) {
			d++
		}
	}
	return d
}

// closest returns the near misses that differ from the call in the fewest
// positions.
func (g *GenericFunction[B]) closest(argTypes []typesystem.TypeID, kws []string) []string {
	if len(g.methods) == 0 {
		return nil
	}
	best := -1
	var near []*Method[B]
	for _, m := range g.methods {
		d := g.distance(m.Signature, argTypes, kws)
		switch {
		case best == -1 || d < best:
			best = d
			near = []*Method[B]{m}
		case d == best:
			near = append(near, m)
		}
	}
	if g.opts.MaxCandidates > 0 && len(near) > g.opts.MaxCandidates {
		near = near[:g.opts.MaxCandidates]
	}
	out := make([]string, len(near))
	for i, m := range near {
		out[i] = g.Render(m)
	}
	return out
}

func (g *GenericFunction[B]) renderCall(argTypes []typesystem.TypeID, kws []string) string {
	parts := make([]string, len(argTypes))
	for i, t := range argTypes {
		parts[i] = "::" + g.types.Name(t)
	}
	out := g.Name + "(" + strings.Join(parts, ", ")
	if len(kws) > 0 {
		out += "; " + strings.Join(kws, ", ")
	}
	return out + ")"
}
