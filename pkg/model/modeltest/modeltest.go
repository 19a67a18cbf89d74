// Package modeltest builds small models for tests.
package modeltest

import (
	"fmt"

	"github.com/duynguyendang/mbe/pkg/model"
)

// Builder accumulates elements in declaration order.
type Builder struct {
	elems []*model.Element
	rels  int
}

func New() *Builder {
	return &Builder{}
}

// Add appends an arbitrary element.
func (b *Builder) Add(id, typ string, attrs map[string]any) *Builder {
	if attrs == nil {
		attrs = map[string]any{}
	}
	if _, ok := attrs["declaredName"]; !ok {
		attrs["declaredName"] = id
	}
	b.elems = append(b.elems, model.NewElement(id, typ, attrs))
	return b
}

// Rel appends a relationship with a generated id.
func (b *Builder) Rel(typ, source, target string) *Builder {
	b.rels++
	id := fmt.Sprintf("%s-%d", typ, b.rels)
	b.elems = append(b.elems, model.NewRelationship(id, typ, []string{source}, []string{target}, nil))
	return b
}

// Package appends a package.
func (b *Builder) Package(id string) *Builder {
	return b.Add(id, "Package", nil)
}

// Definition appends a classifier, optionally owned by a package.
func (b *Builder) Definition(pkg, id, typ string, abstract bool) *Builder {
	b.Add(id, typ, map[string]any{"isAbstract": abstract})
	if pkg != "" {
		b.Rel("OwningMembership", pkg, id)
	}
	return b
}

// Specializes records specific :> general.
func (b *Builder) Specializes(specific, general string) *Builder {
	return b.Rel("Subclassification", specific, general)
}

// Usage appends a feature with inline bounds. An owner of metatype Package
// gets an OwningMembership, any other owner a FeatureMembership. An empty
// typeID leaves the feature untyped. hi may be model.Unbounded.
func (b *Builder) Usage(owner, id, typ, typeID string, lo, hi int) *Builder {
	b.Add(id, typ, map[string]any{"lowerBound": float64(lo), "upperBound": float64(hi)})
	if owner != "" {
		if b.isPackage(owner) {
			b.Rel("OwningMembership", owner, id)
		} else {
			b.Rel("FeatureMembership", owner, id)
		}
	}
	if typeID != "" {
		b.Rel("FeatureTyping", id, typeID)
	}
	return b
}

// Literal appends a literal element.
func (b *Builder) Literal(id, typ string, value any) *Builder {
	return b.Add(id, typ, map[string]any{"value": value})
}

// Value binds expr as the value of feature.
func (b *Builder) Value(feature, expr string) *Builder {
	return b.Rel("FeatureValue", feature, expr)
}

// Reference appends a feature reference expression to referent.
func (b *Builder) Reference(id, referent string) *Builder {
	return b.Add(id, "FeatureReferenceExpression", map[string]any{"referent": referent})
}

// Operator appends an operator expression with one parameter per operand
// and a result parameter. Operand i is bound to operands[i].
func (b *Builder) Operator(id, op string, operands ...string) *Builder {
	b.Add(id, "OperatorExpression", map[string]any{"operator": op})
	for i, operand := range operands {
		param := fmt.Sprintf("%s.p%d", id, i+1)
		b.Add(param, "Feature", nil)
		b.Rel("ParameterMembership", id, param)
		b.Value(param, operand)
	}
	result := id + ".result"
	b.Add(result, "Feature", nil)
	b.Rel("ReturnParameterMembership", id, result)
	return b
}

func (b *Builder) isPackage(id string) bool {
	for _, e := range b.elems {
		if e.ID == id {
			return e.Metatype.IsNamespace()
		}
	}
	return false
}

// Elements returns the accumulated elements.
func (b *Builder) Elements() []*model.Element {
	return b.elems
}

// Memory returns a Memory holding the accumulated elements.
func (b *Builder) Memory() *model.Memory {
	return model.NewMemory(b.elems...)
}

// Tanks is one PartDefinition Tank and a package-level feature tanks: Tank[1..3].
func Tanks() *Builder {
	return New().
		Package("P").
		Definition("P", "Tank", "PartDefinition", false).
		Usage("P", "tanks", "PartUsage", "Tank", 1, 3)
}

// Engines is an abstract Engine with two concrete specializations and a
// package-level feature engines: Engine[10].
func Engines() *Builder {
	return New().
		Package("P").
		Definition("P", "Engine", "PartDefinition", true).
		Definition("P", "LiquidEngine", "PartDefinition", false).
		Definition("P", "SolidEngine", "PartDefinition", false).
		Specializes("LiquidEngine", "Engine").
		Specializes("SolidEngine", "Engine").
		Usage("P", "engines", "PartUsage", "Engine", 10, 10)
}

// Impulse is a part definition Engine whose attribute "Specific Impulse"
// is bound to LiteralReal 170.0, with two engines in the package.
func Impulse() *Builder {
	b := New().
		Package("P").
		Definition("P", "Real", "DataType", false).
		Definition("P", "Engine", "PartDefinition", false).
		Usage("Engine", "isp", "AttributeUsage", "Real", 1, 1).
		Literal("isp.value", "LiteralReal", 170.0).
		Value("isp", "isp.value").
		Usage("P", "engines", "PartUsage", "Engine", 2, 2)
	for _, e := range b.elems {
		if e.ID == "isp" {
			e.Attributes["declaredName"] = "Specific Impulse"
		}
	}
	return b
}

// Sum is a part definition Calc with attributes a = 2.0, b = 3.0 and
// total = a + b.
func Sum() *Builder {
	return New().
		Package("P").
		Definition("P", "Calc", "PartDefinition", false).
		Usage("Calc", "a", "AttributeUsage", "", 1, 1).
		Literal("a.value", "LiteralReal", 2.0).
		Value("a", "a.value").
		Usage("Calc", "b", "AttributeUsage", "", 1, 1).
		Literal("b.value", "LiteralReal", 3.0).
		Value("b", "b.value").
		Usage("Calc", "total", "AttributeUsage", "", 1, 1).
		Reference("ref.a", "a").
		Reference("ref.b", "b").
		Operator("plus", "+", "ref.a", "ref.b").
		Value("total", "plus")
}

// Rocket nests rocket: Rocket[1], Rocket::stages: Stage[2] and
// Stage::engines: Engine[3].
func Rocket() *Builder {
	return New().
		Package("P").
		Definition("P", "Rocket", "PartDefinition", false).
		Definition("P", "Stage", "PartDefinition", false).
		Definition("P", "Engine", "PartDefinition", false).
		Usage("Rocket", "stages", "PartUsage", "Stage", 2, 2).
		Usage("Stage", "engines", "PartUsage", "Engine", 3, 3).
		Usage("P", "rocket", "PartUsage", "Rocket", 1, 1)
}
