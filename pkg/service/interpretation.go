package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/duynguyendang/mbe/pkg/calc"
	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/export"
	"github.com/duynguyendang/mbe/pkg/interpret"
)

// InterpretRequest selects how a run samples and what it returns.
type InterpretRequest struct {
	// Seed fixes the sampling seed; 0 uses the project seed, then the
	// service seed, then the clock.
	Seed      int64             `json:"seed"`
	NameHints map[string]string `json:"nameHints,omitempty"`
	// Solve evaluates expressions after the population is built.
	Solve bool `json:"solve"`
	// Graph includes the population as a D3 graph.
	Graph bool `json:"graph"`
	// Features restricts the rendered instances to these ids.
	Features []string `json:"features,omitempty"`
}

// Run is the outcome of one interpretation.
type Run struct {
	ID          string                `json:"id"`
	Project     string                `json:"project"`
	Seed        int64                 `json:"seed"`
	StartedAt   time.Time             `json:"startedAt"`
	Duration    time.Duration         `json:"duration"`
	Instances   map[string][]string   `json:"instances"`
	Phases      []interpret.Phase     `json:"phases"`
	Partitions  []interpret.Partition `json:"partitions,omitempty"`
	Diagnostics []errors.Diagnostic   `json:"diagnostics"`
	Calculation *calc.Report          `json:"calculation,omitempty"`
	Population  *export.D3Graph       `json:"population,omitempty"`
	// Error is the joined fatal diagnostics, if any.
	Error string `json:"error,omitempty"`

	dict interpret.InstanceDict
}

// Dict returns the raw population.
func (r *Run) Dict() interpret.InstanceDict { return r.dict }

// InterpretationService builds and solves populations for projects.
type InterpretationService struct {
	manager ProjectManager
	cfg     interpret.Config
	seed    int64
}

// NewInterpretationService creates a service. seed 0 means time based.
func NewInterpretationService(manager ProjectManager, cfg interpret.Config, seed int64) *InterpretationService {
	return &InterpretationService{manager: manager, cfg: cfg, seed: seed}
}

// Interpret runs the four phases for projectID and optionally solves the
// expressions. Structural problems are reported on the Run; the returned
// error is reserved for request and lookup failures.
func (s *InterpretationService) Interpret(ctx context.Context, projectID string, req InterpretRequest) (*Run, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: missing project ID", errors.ErrInvalidInput)
	}
	p, err := s.manager.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	seed := req.Seed
	if seed == 0 && p.Metadata != nil {
		seed = p.Metadata.Seed
	}
	if seed == 0 {
		seed = s.seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	hints := req.NameHints
	if hints == nil && p.Metadata != nil {
		hints = p.Metadata.NameHints
	}

	run := &Run{ID: uuid.NewString(), Project: projectID, Seed: seed, StartedAt: time.Now().UTC()}
	logger := slog.With("run", run.ID, "project", projectID)

	b, err := interpret.NewBuilder(p.Graphs, p.Resolver, interpret.NewRand(seed), s.cfg)
	if err != nil {
		return nil, err
	}
	res, runErr := b.Interpret(hints)
	if res == nil {
		return nil, runErr
	}
	run.dict = res.Instances
	run.Phases = res.Phases
	run.Partitions = res.Partitions
	run.Diagnostics = res.Diagnostics

	if req.Solve && ctx.Err() == nil {
		engine := calc.NewEngine(p.Graphs)
		order, err := engine.GenerateExecutionOrder()
		if err != nil {
			return nil, err
		}
		rep, solveErr := engine.Solve(res.Instances, order)
		run.Calculation = rep
		run.Diagnostics = append(run.Diagnostics, rep.Diagnostics...)
		runErr = stderrors.Join(runErr, solveErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run.Instances = render(res.Instances, req.Features)
	if req.Graph {
		run.Population = export.NewD3Transformer(p.Model).FromPopulation(res.Instances)
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	run.Duration = time.Since(run.StartedAt)
	logger.Info("interpretation finished",
		"seed", seed,
		"features", len(res.Instances),
		"diagnostics", len(run.Diagnostics),
		"duration", run.Duration,
	)
	return run, nil
}

func render(dict interpret.InstanceDict, only []string) map[string][]string {
	keep := map[string]bool{}
	for _, id := range only {
		keep[id] = true
	}
	out := make(map[string][]string, len(dict))
	for _, key := range dict.Keys() {
		if len(keep) > 0 && !keep[key] {
			continue
		}
		seqs := dict[key]
		lines := make([]string, len(seqs))
		for i, seq := range seqs {
			lines[i] = seq.String()
		}
		out[key] = lines
	}
	return out
}
