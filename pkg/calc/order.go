// Package calc evaluates the expressions of a model over an M0 population.
package calc

import (
	"fmt"
	"log/slog"

	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model"
)

// Kind classifies an execution edge.
type Kind int

const (
	// Assignment binds an expression result to the feature it values.
	Assignment Kind = iota
	// Redefinition propagates a redefined feature's value to its redefinition.
	Redefinition
	// ValueBinding is an implied data flow edge.
	ValueBinding
	// Input feeds an operand parameter into its expression.
	Input
	// Output feeds an expression into its result parameter.
	Output
)

func (k Kind) String() string {
	switch k {
	case Assignment:
		return "Assignment"
	case Redefinition:
		return "Redefinition"
	case ValueBinding:
		return "ValueBinding"
	case Input:
		return "Input"
	case Output:
		return "Output"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ExecutionEdge is one producer to consumer dependency.
type ExecutionEdge struct {
	Producer string `json:"producer"`
	Consumer string `json:"consumer"`
	Kind     Kind   `json:"kind"`
	Label    string `json:"label"`
}

func (e ExecutionEdge) String() string {
	return fmt.Sprintf("%s -%s-> %s", e.Producer, e.Kind, e.Consumer)
}

// Engine evaluates expressions against the expression inferred projection
// of a graph store.
type Engine struct {
	graphs *lpg.Store
}

// NewEngine creates an engine over graphs.
func NewEngine(graphs *lpg.Store) *Engine {
	return &Engine{graphs: graphs}
}

// GenerateExecutionOrder computes the execution order of the expression
// inferred projection.
func (e *Engine) GenerateExecutionOrder() ([]ExecutionEdge, error) {
	g, err := e.graphs.GetProjection(lpg.ProjectionExpressionInferred)
	if err != nil {
		return nil, err
	}
	return ExecutionOrder(g), nil
}

// ExecutionOrder walks g breadth first from every root, in index order,
// visiting each node once. Edges the walk did not use are appended in edge
// order, so every edge of g appears exactly once.
func ExecutionOrder(g *lpg.Graph) []ExecutionEdge {
	visited := make([]bool, g.NodeCount())
	used := make([]bool, g.EdgeCount())
	out := make([]ExecutionEdge, 0, g.EdgeCount())

	for _, root := range g.Roots() {
		if visited[root] {
			continue
		}
		visited[root] = true
		queue := []int{root}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, edge := range g.OutEdges(u) {
				if visited[edge.Target] {
					continue
				}
				visited[edge.Target] = true
				used[edge.Index] = true
				out = append(out, executionEdge(g, edge))
				queue = append(queue, edge.Target)
			}
		}
	}

	extra := 0
	for i := range used {
		if !used[i] {
			out = append(out, executionEdge(g, g.Edge(i)))
			extra++
		}
	}
	slog.Debug("execution order", "edges", len(out), "unvisited", extra)
	return out
}

func executionEdge(g *lpg.Graph, e *lpg.Edge) ExecutionEdge {
	return ExecutionEdge{
		Producer: g.ID(e.Source),
		Consumer: g.ID(e.Target),
		Kind:     classify(g.Node(e.Source), g.Node(e.Target), e),
		Label:    e.Label,
	}
}

// classify derives the kind of an edge from its relationship metatype and
// the metatypes of its endpoints.
func classify(src, tgt *lpg.Node, e *lpg.Edge) Kind {
	if e.Implied {
		return ValueBinding
	}
	switch e.Metatype {
	case model.ParameterMembership:
		return Input
	case model.ReturnParameterMembership, model.ResultExpressionMembership:
		return Output
	case model.Redefinition, model.Subsetting, model.ReferenceSubsetting:
		return Redefinition
	case model.FeatureValue:
		return Assignment
	}
	switch {
	case src.Metatype.IsExpression() && tgt.Metatype.IsFeature():
		return Output
	case src.Metatype.IsLiteral():
		return Assignment
	case src.Metatype.IsFeature() && tgt.Metatype.IsExpression():
		return Input
	}
	return ValueBinding
}
