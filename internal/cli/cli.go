// Package cli builds the qtt command tree.
//
//	qtt
//	├── run [input.json]        scripted playback, SimulationLog JSON on stdout
//	├── validate [spec.json]    per-edge kinematics report
//	│   ├── --warned-only
//	│   └── --labels            one human-readable line per edge instead of JSON
//	├── infer [spec.json]       absolute node epochs from partial timing data
//	├── serve                   HTTP API, background ticker, /metrics
//	└── --config, -c            YAML config (default configs/default.yaml)
//
// Input files default to stdin when no argument is given. A .env file in the
// working directory is loaded before the config so QTT_* overrides apply.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cxd309/spacetime-engine/internal/api"
	"github.com/cxd309/spacetime-engine/internal/config"
	"github.com/cxd309/spacetime-engine/internal/engine"
	"github.com/cxd309/spacetime-engine/internal/graph"
	"github.com/cxd309/spacetime-engine/internal/kinematics"
	"github.com/cxd309/spacetime-engine/internal/logging"
	"github.com/cxd309/spacetime-engine/internal/metrics"
	"github.com/cxd309/spacetime-engine/internal/store"
	"github.com/cxd309/spacetime-engine/internal/timeline"
	"github.com/cxd309/spacetime-engine/internal/validation"
)

const defaultConfigPath = "configs/default.yaml"

func BuildCLI() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "qtt",
		Short: "qtt: space-time trajectory reconstruction and playback",
		Long: `qtt turns a planned path through a travel graph into a playable route:
- relativistic kinematics per edge
- absolute epochs inferred from partial timing data
- looping playback with a throttled HUD and a follow camera`,
		Version:       api.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		return loadConfig(configFile, cmd.Flags().Changed("config"))
	}

	rootCmd.AddCommand(buildRunCommand(load))
	rootCmd.AddCommand(buildValidateCommand())
	rootCmd.AddCommand(buildInferCommand())
	rootCmd.AddCommand(buildServeCommand(load))
	return rootCmd
}

type configLoader func(cmd *cobra.Command) (*config.Config, error)

// loadConfig reads path over the defaults. A missing file is only an error
// when the path was given explicitly.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	return logging.New(w, cfg.Log.Level, cfg.Log.Format)
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) > 0 {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(cmd.InOrStdin())
}

func readGraph(cmd *cobra.Command, args []string) (*graph.Graph, error) {
	data, err := readInput(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	spec, err := graph.ParseSpec(data)
	if err != nil {
		return nil, err
	}
	return graph.NewGraph(spec)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func buildRunCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "run [input.json]",
		Short: "Run a scripted playback and print the frame log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return fmt.Errorf("error reading input: %w", err)
			}
			result, err := engine.RunJSONWithConfig(string(data), cfg, engine.WithLogger(log))
			if err != nil {
				return fmt.Errorf("simulation error: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
			return err
		},
	}
}

func buildValidateCommand() *cobra.Command {
	var warnedOnly, labels bool

	cmd := &cobra.Command{
		Use:   "validate [spec.json]",
		Short: "Report per-edge kinematics and warnings for a spec",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readGraph(cmd, args)
			if err != nil {
				return err
			}
			if !labels {
				return writeJSON(cmd.OutOrStdout(), validation.Build(g, warnedOnly))
			}
			for _, e := range g.Edges() {
				k := kinematics.Compute(e.Attributes)
				warnings := kinematics.Warnings(e.Attributes, k)
				if warnedOnly && len(warnings) == 0 {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s→%s  %s  [%s]\n", e.Src, e.Dst, kinematics.Label(e.Attributes, k), kinematics.BandOf(k.VelocityFractionC))
				for _, w := range warnings {
					fmt.Fprintf(cmd.OutOrStdout(), "    ! %s\n", w)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&warnedOnly, "warned-only", false, "only list edges with warnings")
	cmd.Flags().BoolVar(&labels, "labels", false, "print one human-readable line per edge")
	return cmd
}

func buildInferCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "infer [spec.json]",
		Short: "Infer absolute node epochs from partial timing data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readGraph(cmd, args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), timeline.Infer(g.Edges()))
		},
	}
}

func buildServeCommand(load configLoader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with a real-time playback ticker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	log, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var m *metrics.Collector
	if cfg.Server.MetricsEnabled {
		m = metrics.NewCollector(nil)
	}

	e := engine.New(cfg, engine.WithLogger(log), engine.WithMetrics(m))
	srv := api.NewServer(e, api.Options{Store: st, Metrics: m, Logger: log, TickHz: cfg.Server.TickHz})

	log.Info("starting",
		slog.String("version", api.Version),
		slog.String("addr", cfg.Server.Addr),
		slog.String("store", cfg.Store.Path),
		slog.Bool("metrics", m != nil),
	)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
