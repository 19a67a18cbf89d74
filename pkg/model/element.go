package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Element is one model element. Relationship elements carry Source and
// Target id lists; every other key of the serialized form is an attribute.
type Element struct {
	ID         string         `json:"@id"`
	Type       string         `json:"@type"`
	Metatype   Metatype       `json:"-"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Source     []string       `json:"source,omitempty"`
	Target     []string       `json:"target,omitempty"`
}

// NewElement creates an element and resolves its metatype from typ.
func NewElement(id, typ string, attrs map[string]any) *Element {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Element{ID: id, Type: typ, Metatype: ParseMetatype(typ), Attributes: attrs}
}

// NewRelationship creates a relationship element.
func NewRelationship(id, typ string, source, target []string, attrs map[string]any) *Element {
	e := NewElement(id, typ, attrs)
	e.Source = source
	e.Target = target
	return e
}

// Name returns the declared name, the plain name, or the id.
func (e *Element) Name() string {
	for _, k := range []string{"declaredName", "name"} {
		if s, ok := e.Attributes[k].(string); ok && s != "" {
			return s
		}
	}
	return e.ID
}

// ShortName returns the last segment of a qualified name.
func (e *Element) ShortName() string {
	n := e.Name()
	if i := strings.LastIndex(n, "::"); i >= 0 {
		return n[i+2:]
	}
	return n
}

// Attr returns the attribute named key.
func (e *Element) Attr(key string) (any, bool) {
	v, ok := e.Attributes[key]
	return v, ok
}

// StringAttr returns a string attribute, or "".
func (e *Element) StringAttr(key string) string {
	switch v := e.Attributes[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

// BoolAttr returns a boolean attribute, accepting "true"/"false" strings.
func (e *Element) BoolAttr(key string) bool {
	switch v := e.Attributes[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Value returns the literal value of a literal element. Numbers are float64.
func (e *Element) Value() any {
	switch e.Metatype {
	case LiteralInfinity:
		return math.Inf(1)
	case NullExpression:
		return nil
	}
	v, ok := e.Attributes["value"]
	if !ok {
		return nil
	}
	switch e.Metatype {
	case LiteralReal, LiteralInteger, LiteralRational:
		if f, ok := toFloat(v); ok {
			return f
		}
	case LiteralBoolean:
		if s, ok := v.(string); ok {
			b, _ := strconv.ParseBool(s)
			return b
		}
	}
	return v
}

func (e *Element) String() string {
	return fmt.Sprintf("%s <%s>", e.Name(), e.Metatype)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
