package datalog

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/lpg"
)

// Binding maps variable names to node ids, edge labels or names.
type Binding map[string]string

// Result is the answer to a query: one row per distinct binding of Vars.
type Result struct {
	Vars []string   `json:"vars"`
	Rows [][]string `json:"rows"`
}

type predicate struct {
	arity int
	// generate extends b with every match of args; nil for filters.
	generate func(g *lpg.Graph, args []Term, b Binding) []Binding
	// test is applied once every argument is bound.
	test func(args []string) (bool, error)
}

var predicates = map[string]predicate{
	"edge":    {arity: 3, generate: edges},
	"triples": {arity: 3, generate: edges},
	"node":    {arity: 2, generate: nodes},
	"name":    {arity: 2, generate: names},
	"neq":     {arity: 2, test: func(a []string) (bool, error) { return a[0] != a[1], nil }},
	"regex":   {arity: 2, test: matches},
}

// Predicates returns the supported predicate names, sorted.
func Predicates() []string {
	out := make([]string, 0, len(predicates))
	for p := range predicates {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Query parses and evaluates query over g. limit <= 0 returns every row.
func Query(g *lpg.Graph, query string, limit int) (*Result, error) {
	atoms, err := Parse(query)
	if err != nil {
		return nil, err
	}
	return Evaluate(g, atoms, limit)
}

// Evaluate joins the generator atoms in order, then applies the filters.
// Rows are sorted and de-duplicated.
func Evaluate(g *lpg.Graph, atoms []Atom, limit int) (*Result, error) {
	var generators, filters []Atom
	for _, a := range atoms {
		p, ok := predicates[a.Predicate]
		if !ok {
			return nil, fmt.Errorf("%w: unknown predicate %q%s", errors.ErrInvalidInput, a.Predicate, suggest(a.Predicate))
		}
		if len(a.Args) != p.arity {
			return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", errors.ErrInvalidInput, a.Predicate, p.arity, len(a.Args))
		}
		if p.generate != nil {
			generators = append(generators, a)
		} else {
			filters = append(filters, a)
		}
	}
	if len(generators) == 0 {
		return nil, fmt.Errorf("%w: query needs at least one of %s", errors.ErrInvalidInput, "edge, triples, node, name")
	}

	vars := variables(atoms)
	bound := map[string]bool{}
	for _, a := range generators {
		for _, t := range a.Args {
			if t.Var {
				bound[t.Value] = true
			}
		}
	}
	for _, f := range filters {
		for _, t := range f.Args {
			if t.Var && !bound[t.Value] {
				return nil, fmt.Errorf("%w: variable %s in %s is never bound", errors.ErrInvalidInput, t.Value, f)
			}
		}
	}

	rows := []Binding{{}}
	for _, a := range generators {
		gen := predicates[a.Predicate].generate
		var next []Binding
		for _, b := range rows {
			next = append(next, gen(g, a.Args, b)...)
		}
		rows = next
		if len(rows) == 0 {
			break
		}
	}

	res := &Result{Vars: vars, Rows: [][]string{}}
	seen := map[string]bool{}
	for _, b := range rows {
		ok, err := accept(filters, b)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		row := make([]string, len(vars))
		for i, v := range vars {
			row[i] = b[v]
		}
		key := strings.Join(row, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		res.Rows = append(res.Rows, row)
	}
	sort.Slice(res.Rows, func(i, j int) bool {
		return strings.Join(res.Rows[i], "\x00") < strings.Join(res.Rows[j], "\x00")
	})
	if limit > 0 && len(res.Rows) > limit {
		res.Rows = res.Rows[:limit]
	}
	slog.Debug("query evaluated", "atoms", len(atoms), "rows", len(res.Rows))
	return res, nil
}

func accept(filters []Atom, b Binding) (bool, error) {
	for _, f := range filters {
		args := make([]string, len(f.Args))
		for i, t := range f.Args {
			args[i] = resolve(t, b)
		}
		ok, err := predicates[f.Predicate].test(args)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// variables returns the variables of atoms in order of first appearance.
func variables(atoms []Atom) []string {
	var out []string
	seen := map[string]bool{}
	for _, a := range atoms {
		for _, t := range a.Args {
			if t.Var && t.Value != "_" && !seen[t.Value] {
				seen[t.Value] = true
				out = append(out, t.Value)
			}
		}
	}
	return out
}

func resolve(t Term, b Binding) string {
	if t.Var {
		return b[t.Value]
	}
	return t.Value
}

// unify binds t to value in b, returning false on a conflict. b is copied
// on write.
func unify(t Term, value string, b Binding) (Binding, bool) {
	if !t.Var {
		return b, t.Value == value
	}
	if t.Value == "_" {
		return b, true
	}
	if cur, ok := b[t.Value]; ok {
		return b, cur == value
	}
	out := make(Binding, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out[t.Value] = value
	return out, true
}

func unifyAll(terms []Term, values []string, b Binding) (Binding, bool) {
	ok := true
	for i := range terms {
		if b, ok = unify(terms[i], values[i], b); !ok {
			return nil, false
		}
	}
	return b, true
}

func edges(g *lpg.Graph, args []Term, b Binding) []Binding {
	var out []Binding
	for _, e := range g.Edges() {
		if nb, ok := unifyAll(args, []string{g.ID(e.Source), e.Label, g.ID(e.Target)}, b); ok {
			out = append(out, nb)
		}
	}
	return out
}

func nodes(g *lpg.Graph, args []Term, b Binding) []Binding {
	if !args[0].Var || b[args[0].Value] != "" {
		n, ok := g.NodeByID(resolve(args[0], b))
		if !ok {
			return nil
		}
		if nb, ok := unify(args[1], n.Label, b); ok {
			return []Binding{nb}
		}
		return nil
	}
	var out []Binding
	for _, n := range g.Nodes() {
		if nb, ok := unifyAll(args, []string{n.ID, n.Label}, b); ok {
			out = append(out, nb)
		}
	}
	return out
}

func names(g *lpg.Graph, args []Term, b Binding) []Binding {
	var out []Binding
	for _, n := range g.Nodes() {
		if nb, ok := unifyAll(args, []string{n.ID, n.Name()}, b); ok {
			out = append(out, nb)
		}
	}
	return out
}

// regexCacheSize bounds the compiled patterns kept across queries.
const regexCacheSize = 256

var regexCache, _ = lru.New[string, *regexp.Regexp](regexCacheSize)

func matches(args []string) (bool, error) {
	if re, ok := regexCache.Get(args[1]); ok {
		return re.MatchString(args[0]), nil
	}
	re, err := regexp.Compile(args[1])
	if err != nil {
		return false, fmt.Errorf("%w: regex %q: %v", errors.ErrInvalidInput, args[1], err)
	}
	regexCache.Add(args[1], re)
	return re.MatchString(args[0]), nil
}

func suggest(name string) string {
	best, bestDist := "", -1
	for _, p := range Predicates() {
		d := levenshtein.Distance(strings.ToLower(name), p, nil)
		if bestDist < 0 || d < bestDist {
			best, bestDist = p, d
		}
	}
	if bestDist < 0 || bestDist > 3 {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}
