package datalog

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/duynguyendang/mbe/pkg/common/errors"
)

// Term is one atom argument. Unquoted identifiers starting with an upper
// case letter or an underscore are variables; everything else is a
// constant with its quotes stripped.
type Term struct {
	Value string `json:"value"`
	Var   bool   `json:"var,omitempty"`
}

func (t Term) String() string {
	if t.Var {
		return t.Value
	}
	return fmt.Sprintf("%q", t.Value)
}

// Atom represents a single unit in a query (e.g., edge(S, "FeatureTyping", T) or neq(A, B)).
type Atom struct {
	Predicate string `json:"predicate"`
	Args      []Term `json:"args"`
}

func (a Atom) String() string {
	parts := make([]string, len(a.Args))
	for i, t := range a.Args {
		parts[i] = t.String()
	}
	return a.Predicate + "(" + strings.Join(parts, ", ") + ")"
}

// Parse parses a query string which may contain multiple atoms.
// It supports generator predicates like 'edge', constraints like 'regex', and syntactic sugar like '!='.
func Parse(query string) ([]Atom, error) {
	query = strings.TrimSpace(query)
	// "Head :- Body": the head is only the goal.
	if idx := strings.Index(query, ":-"); idx != -1 {
		query = query[idx+2:]
	}
	query = strings.TrimSpace(query)
	query = strings.TrimSuffix(query, ".")
	query = strings.TrimPrefix(query, "?")

	rawAtoms := SmartSplit(query)
	if len(rawAtoms) == 0 {
		return nil, fmt.Errorf("%w: empty query", errors.ErrInvalidInput)
	}

	var parsedAtoms []Atom
	for _, raw := range rawAtoms {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		// Syntactic sugar: A != B
		if !strings.Contains(raw, "(") && strings.Contains(raw, "!=") {
			parts := strings.SplitN(raw, "!=", 2)
			parsedAtoms = append(parsedAtoms, Atom{
				Predicate: "neq",
				Args:      []Term{parseTerm(parts[0]), parseTerm(parts[1])},
			})
			continue
		}

		pred, args, err := parseAtomString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: atom '%s': %v", errors.ErrInvalidInput, raw, err)
		}
		parsedAtoms = append(parsedAtoms, Atom{Predicate: pred, Args: args})
	}
	if len(parsedAtoms) == 0 {
		return nil, fmt.Errorf("%w: empty query", errors.ErrInvalidInput)
	}

	return parsedAtoms, nil
}

// parseAtomString parses "predicate(arg1, arg2, ...)"
func parseAtomString(s string) (string, []Term, error) {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "(")
	end := strings.LastIndex(s, ")")

	if start == -1 || end == -1 || start >= end {
		return "", nil, fmt.Errorf("expected format 'predicate(args...)' but got '%s'", s)
	}

	predicate := strings.TrimSpace(s[:start])
	if predicate == "" {
		return "", nil, fmt.Errorf("missing predicate in '%s'", s)
	}

	raw := SmartSplit(s[start+1 : end])
	args := make([]Term, len(raw))
	for i, arg := range raw {
		args[i] = parseTerm(arg)
	}
	return predicate, args, nil
}

func parseTerm(s string) Term {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return Term{Value: s[1 : len(s)-1]}
	}
	if s == "" {
		return Term{}
	}
	first := []rune(s)[0]
	return Term{Value: s, Var: unicode.IsUpper(first) || first == '_'}
}

// SmartSplit splits a string by comma, correctly handling quotes and parentheses.
// e.g. "a, b, 'c,d'" -> ["a", "b", "'c,d'"]
func SmartSplit(s string) []string {
	var results []string
	var current strings.Builder
	depth := 0
	inQuote := false
	var quoteChar rune

	for _, r := range s {
		switch r {
		case '"', '\'':
			if inQuote {
				if r == quoteChar {
					inQuote = false
				}
			} else {
				inQuote = true
				quoteChar = r
			}
			current.WriteRune(r)
		case '(':
			if !inQuote {
				depth++
			}
			current.WriteRune(r)
		case ')':
			if !inQuote {
				depth--
			}
			current.WriteRune(r)
		case ',':
			if !inQuote && depth == 0 {
				results = append(results, strings.TrimSpace(current.String()))
				current.Reset()
				continue
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		results = append(results, strings.TrimSpace(current.String()))
	}
	return results
}
