package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/duynguyendang/mbe/pkg/config"
)

// Options are shared by every subcommand.
type Options struct {
	configPath string
	logLevel   string
	seed       int64

	cfg *config.Config
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &Options{}

	maincmd := &cobra.Command{
		Use:   "mbe <options> <cmd> <args>",
		Short: "interpret KerML/SysML models",
		Long: `
This command builds populations of instances for a KerML/SysML model,
evaluates its expressions and exposes the model graph over REST and MCP.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}

	flags := maincmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv("MBE_CONFIG"), "configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.Int64Var(&opts.seed, "seed", 0, "sampling seed; 0 uses the configured seed")

	maincmd.AddCommand(NewInterpret(opts))
	maincmd.AddCommand(NewProjection(opts))
	maincmd.AddCommand(NewRollup(opts))
	maincmd.AddCommand(NewQuery(opts))
	maincmd.AddCommand(NewImport(opts))
	maincmd.AddCommand(NewServe(opts))
	maincmd.AddCommand(NewMCP(opts))
	return maincmd
}

func (o *Options) init(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.seed != 0 {
		cfg.Seed = o.seed
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	// logs on stderr, results on stdout
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	o.cfg = cfg
	slog.Debug("configuration loaded", "file", o.configPath, "seed", cfg.Seed, "max_multiplicity", cfg.MaxMultiplicity)
	return nil
}

func requireArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("usage: %s", usage)
		}
		return nil
	}
}
