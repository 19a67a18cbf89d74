package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duynguyendang/mbe/internal/manager"
	"github.com/duynguyendang/mbe/pkg/export"
	"github.com/duynguyendang/mbe/pkg/ingest"
	"github.com/duynguyendang/mbe/pkg/mcp"
	"github.com/duynguyendang/mbe/pkg/model"
	"github.com/duynguyendang/mbe/pkg/server"
	"github.com/duynguyendang/mbe/pkg/service"
	"github.com/duynguyendang/mbe/pkg/store"
)

// session is one model loaded behind the services.
type session struct {
	project   string
	manager   *manager.ModelManager
	graph     *service.GraphService
	interpret *service.InterpretationService
}

// open loads the model at path (a JSON file or a project directory), or
// the snapshot named path when storeDir is set.
func (o *Options) open(ctx context.Context, path, storeDir string) (*session, error) {
	mm := manager.NewModelManager("", nil, o.cfg.Manager())

	var (
		project string
		mem     *model.Memory
		meta    *ingest.ProjectMetadata
	)
	if storeDir != "" {
		cfg := store.DefaultConfig(storeDir)
		cfg.ReadOnly = true
		s, err := store.Open(cfg)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		elems, err := s.LoadElements(path)
		if err != nil {
			return nil, err
		}
		project, mem = path, model.NewMemory(elems...)
	} else {
		p, err := ingest.LoadDir(ctx, path)
		if err != nil {
			return nil, err
		}
		project, mem, meta = p.Metadata.Name, p.Memory(), p.Metadata
	}
	if _, err := mm.Register(project, mem, meta); err != nil {
		return nil, err
	}
	return &session{
		project:   project,
		manager:   mm,
		graph:     service.NewGraphService(mm),
		interpret: service.NewInterpretationService(mm, o.cfg.Interpret(), o.cfg.Seed),
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- interpret ---

type Interpret struct {
	cmd      *cobra.Command
	mainopts *Options

	store    string
	solve    bool
	output   string
	graph    string
	features []string
}

func NewInterpret(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interpret <model> <options>",
		Short: "generate a population of instances for a model",
		Args:  requireArgs(1, "interpret <model.json|dir>"),
	}
	c := &Interpret{cmd: cmd, mainopts: opts}
	c.cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(cmd.Context(), args) }
	flags := cmd.Flags()
	flags.StringVar(&c.store, "store", "", "read the model from the snapshot store in this directory")
	flags.BoolVar(&c.solve, "solve", true, "evaluate expressions after sampling")
	flags.StringVarP(&c.output, "output", "o", "text", "output format (text, json)")
	flags.StringVar(&c.graph, "graph", "", "write the population as a D3 graph to this file")
	flags.StringSliceVarP(&c.features, "feature", "f", nil, "only print these feature ids")
	return cmd
}

func (c *Interpret) Run(ctx context.Context, args []string) error {
	s, err := c.mainopts.open(ctx, args[0], c.store)
	if err != nil {
		return err
	}
	run, err := s.interpret.Interpret(ctx, s.project, service.InterpretRequest{
		Seed:     c.mainopts.seed,
		Solve:    c.solve,
		Graph:    c.graph != "",
		Features: c.features,
	})
	if err != nil {
		return err
	}
	if c.graph != "" {
		if err := export.SaveD3Graph(run.Population, c.graph); err != nil {
			return err
		}
		slog.Info("population graph written", "file", c.graph, "nodes", len(run.Population.Nodes))
	}

	out := c.cmd.OutOrStdout()
	if c.output == "json" {
		return writeJSON(out, run)
	}
	keys := make([]string, 0, len(run.Instances))
	for k := range run.Instances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s:\n", k)
		for _, seq := range run.Instances[k] {
			fmt.Fprintf(out, "  %s\n", seq)
		}
	}
	for _, d := range run.Diagnostics {
		fmt.Fprintf(c.cmd.ErrOrStderr(), "%s\n", d)
	}
	if run.Error != "" {
		return fmt.Errorf("interpretation incomplete (seed %d): %s", run.Seed, run.Error)
	}
	return nil
}

// --- projection ---

type Projection struct {
	cmd      *cobra.Command
	mainopts *Options

	packages []string
	output   string
}

func NewProjection(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projection <model> <name> <options>",
		Short: "print a named projection of the model graph as a D3 graph",
		Args:  requireArgs(2, "projection <model> <name>"),
	}
	c := &Projection{cmd: cmd, mainopts: opts}
	c.cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(cmd.Context(), args) }
	flags := cmd.Flags()
	flags.StringSliceVarP(&c.packages, "package", "p", nil, "restrict to elements of these packages")
	flags.StringVarP(&c.output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func (c *Projection) Run(ctx context.Context, args []string) error {
	s, err := c.mainopts.open(ctx, args[0], "")
	if err != nil {
		return err
	}
	g, err := s.graph.ExportProjection(ctx, s.project, args[1], c.packages)
	if err != nil {
		return err
	}
	if c.output != "" {
		return export.SaveD3Graph(g, c.output)
	}
	return writeJSON(c.cmd.OutOrStdout(), g)
}

// --- rollup ---

type Rollup struct {
	cmd      *cobra.Command
	mainopts *Options
}

func NewRollup(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollup <model> <feature>",
		Short: "print the declared and effective multiplicity of a feature",
		Args:  requireArgs(2, "rollup <model> <feature>"),
	}
	c := &Rollup{cmd: cmd, mainopts: opts}
	c.cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(cmd.Context(), args) }
	return cmd
}

func (c *Rollup) Run(ctx context.Context, args []string) error {
	s, err := c.mainopts.open(ctx, args[0], "")
	if err != nil {
		return err
	}
	r, err := s.graph.Rollup(ctx, s.project, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.cmd.OutOrStdout(), "%s\tdeclared [%d..%d]\teffective [%d..%d]\n",
		r.Feature, r.DeclaredLower, r.DeclaredUpper, r.Lower, r.Upper)
	return nil
}

// --- query ---

type Query struct {
	cmd      *cobra.Command
	mainopts *Options

	projection string
	limit      int
}

func NewQuery(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <model> <query> <options>",
		Short: "evaluate a query such as edge(F, \"FeatureTyping\", T) over a projection",
		Args:  requireArgs(2, "query <model> <query>"),
	}
	c := &Query{cmd: cmd, mainopts: opts}
	c.cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(cmd.Context(), args) }
	flags := cmd.Flags()
	flags.StringVarP(&c.projection, "projection", "p", "", "projection name (default: base graph)")
	flags.IntVarP(&c.limit, "limit", "n", 0, "max number of rows")
	return cmd
}

func (c *Query) Run(ctx context.Context, args []string) error {
	s, err := c.mainopts.open(ctx, args[0], "")
	if err != nil {
		return err
	}
	res, err := s.graph.ExecuteQuery(ctx, s.project, c.projection, args[1], c.limit)
	if err != nil {
		return err
	}
	out := c.cmd.OutOrStdout()
	fmt.Fprintln(out, strings.Join(res.Vars, "\t"))
	for _, row := range res.Rows {
		fmt.Fprintln(out, strings.Join(row, "\t"))
	}
	return nil
}

// --- import ---

type Import struct {
	cmd      *cobra.Command
	mainopts *Options

	project string
}

func NewImport(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <model> <data dir> <options>",
		Short: "store a model's elements as a snapshot",
		Args:  requireArgs(2, "import <model.json|dir> <data dir>"),
	}
	c := &Import{cmd: cmd, mainopts: opts}
	c.cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(cmd.Context(), args) }
	cmd.Flags().StringVar(&c.project, "project", "", "snapshot name (default: project name)")
	return cmd
}

func (c *Import) Run(ctx context.Context, args []string) error {
	cfg := store.DefaultConfig(args[1])
	cfg.SyncWrites = true
	s, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := ingest.Run(ctx, s, c.project, args[0])
	if err != nil {
		return err
	}
	name := c.project
	if name == "" {
		name = p.Metadata.Name
	}
	fmt.Fprintf(c.cmd.OutOrStdout(), "imported %d elements from %d files as %q\n", len(p.Elements), len(p.Files), name)
	return nil
}

// --- serve ---

type Serve struct {
	cmd      *cobra.Command
	mainopts *Options
}

func NewServe(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the REST API server over the model and snapshot directories",
		Args:  requireArgs(0, "serve"),
	}
	c := &Serve{cmd: cmd, mainopts: opts}
	c.cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run() }
	return cmd
}

func (c *Serve) Run() error {
	cfg := c.mainopts.cfg

	var snapshots *store.Store
	if cfg.DataDir != "" {
		s, err := store.Open(cfg.Store())
		if err != nil {
			return err
		}
		defer s.Close()
		snapshots = s
	}
	mgr := manager.NewModelManager(cfg.ModelDir, snapshots, cfg.Manager())
	defer mgr.CloseAll()

	srv := server.NewServer(
		service.NewGraphService(mgr),
		service.NewInterpretationService(mgr, cfg.Interpret(), cfg.Seed),
	)
	addr := ":" + cfg.Port
	slog.Info("starting REST API server", "addr", addr, "models", cfg.ModelDir, "data", cfg.DataDir)
	return srv.Run(addr)
}

// --- mcp ---

type MCP struct {
	cmd      *cobra.Command
	mainopts *Options

	store string
}

func NewMCP(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp <model>",
		Short: "serve one model as MCP tools on stdio",
		Args:  requireArgs(1, "mcp <model.json|dir>"),
	}
	c := &MCP{cmd: cmd, mainopts: opts}
	c.cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(cmd.Context(), args) }
	cmd.Flags().StringVar(&c.store, "store", "", "read the model from the snapshot store in this directory")
	return cmd
}

func (c *MCP) Run(ctx context.Context, args []string) error {
	s, err := c.mainopts.open(ctx, args[0], c.store)
	if err != nil {
		return err
	}
	return mcp.Run(ctx, mcp.New(s.project, s.graph, s.interpret))
}
