package interpret

import (
	"fmt"
	"sort"
	"strings"

	"github.com/duynguyendang/mbe/pkg/model"
)

// Item is anything that can appear in a Sequence.
type Item interface {
	fmt.Stringer
	Base() *Instance
}

// Holder is an Item carrying a computed value.
type Holder interface {
	Item
	Get() any
	Set(v any)
}

// Instance is one M0 occurrence of a classifier or feature. Name has the
// form "<short-name>#<index>"; indices count up per element.
type Instance struct {
	Name    string         `json:"name"`
	Index   int            `json:"index"`
	Element *model.Element `json:"-"`
}

func (i *Instance) String() string  { return i.Name }
func (i *Instance) Base() *Instance { return i }

// ElementID returns the id of the instantiated element.
func (i *Instance) ElementID() string {
	if i.Element == nil {
		return ""
	}
	return i.Element.ID
}

// ValueHolder is an Instance of a value-carrying feature. Value is nil
// until computed.
type ValueHolder struct {
	Instance
	Value any `json:"value"`
}

func (v *ValueHolder) Get() any  { return v.Value }
func (v *ValueHolder) Set(x any) { v.Value = x }

// Feature returns the feature element the holder represents.
func (v *ValueHolder) Feature() *model.Element { return v.Element }

func (v *ValueHolder) String() string {
	if v.Value == nil {
		return v.Name
	}
	return fmt.Sprintf("%s = %s", v.Name, FormatValue(v.Value))
}

// LiveExpressionNode is an M0 node of an expression tree.
type LiveExpressionNode struct {
	ValueHolder
	Label string `json:"label"`
}

// Expression returns the expression element.
func (n *LiveExpressionNode) Expression() *model.Element { return n.Element }

func (n *LiveExpressionNode) String() string {
	if n.Value == nil {
		return fmt.Sprintf("%s (%s)", n.Name, n.Label)
	}
	return fmt.Sprintf("%s (%s) = %s", n.Name, n.Label, FormatValue(n.Value))
}

// Sequence is one nesting path of instances, outermost first.
type Sequence []Item

// Last returns the final item, or nil for an empty sequence.
func (s Sequence) Last() Item {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// HasPrefix reports whether p is a prefix of s, comparing instance identity.
func (s Sequence) HasPrefix(p Sequence) bool {
	if len(p) > len(s) {
		return false
	}
	for i := range p {
		if s[i].Base() != p[i].Base() {
			return false
		}
	}
	return true
}

// Extend returns a new sequence with item appended.
func (s Sequence) Extend(item Item) Sequence {
	out := make(Sequence, len(s)+1)
	copy(out, s)
	out[len(s)] = item
	return out
}

func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, it := range s {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// InstanceDict maps element ids to their sequences.
type InstanceDict map[string][]Sequence

// Keys returns the sorted ids.
func (d InstanceDict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the sequences of id.
func (d InstanceDict) Lookup(id string) ([]Sequence, bool) {
	s, ok := d[id]
	return s, ok
}

// Add appends sequences to id, creating the entry when absent.
func (d InstanceDict) Add(id string, seqs ...Sequence) {
	d[id] = append(d[id], seqs...)
}

// Holders returns the final items of the sequences of id that carry values.
func (d InstanceDict) Holders(id string) []Holder {
	var out []Holder
	for _, s := range d[id] {
		if h, ok := s.Last().(Holder); ok {
			out = append(out, h)
		}
	}
	return out
}

// FormatValue renders a computed value.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case float64:
		return fmt.Sprintf("%g", x)
	case []Sequence:
		parts := make([]string, len(x))
		for i, s := range x {
			if last := s.Last(); last != nil {
				parts[i] = last.String()
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}
