package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fractal-lba/quantcore/internal/analysis"
	"github.com/fractal-lba/quantcore/internal/causal"
	"github.com/fractal-lba/quantcore/internal/config"
	"github.com/fractal-lba/quantcore/internal/dedup"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/logging"
	"github.com/fractal-lba/quantcore/internal/points"
)

var (
	// Global flags
	configFile   string
	outputFormat string
	inputFormat  string
	useStore     bool
	verbose      bool
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "quantctl",
		Short: "Run quantitative analyses from the command line",
		Long: `quantctl runs point analysis, forecasting, scenario simulation and causal
reasoning locally with the same engines and defaults as the server.
Inputs are JSON request bodies or CSV files; results are printed as JSON or YAML.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (TOML; default $QC_CONFIG or config/quantcore.toml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json or yaml (journal replay also accepts table)")
	rootCmd.PersistentFlags().StringVar(&inputFormat, "input-format", "", "Input format: json or csv (default from file extension)")
	rootCmd.PersistentFlags().BoolVar(&useStore, "use-store", false, "Read and write results through the configured result store")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Debug logging to stderr")

	rootCmd.AddCommand(pointsCmd())
	rootCmd.AddCommand(neighborsCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(causalCmd())
	rootCmd.AddCommand(journalCmd())
	rootCmd.AddCommand(storeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.PathFromEnv()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// env is what every analysis command needs.
type env struct {
	cfg    *config.Config
	svc    *analysis.Service
	logger *zap.Logger
	store  dedup.Store
}

func (e *env) Close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn("error closing result store", zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

// newEnv builds an in-process service from the config defaults.
func newEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Logging
	logCfg.Output = "stderr"
	if verbose {
		logCfg.Level = "debug"
		logCfg.Format = "console"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}
	deps := analysis.Deps{
		Analyzer:  points.NewAnalyzer(cfg.Defaults.PointsOptions()),
		Engine:    forecast.NewEngine(cfg.Defaults.ForecastParams()),
		Reasoner:  causal.NewReasoner(cfg.Defaults.CausalParams()),
		ResultTTL: cfg.Store.ResultTTL.Duration,
		Logger:    logger,
	}
	if useStore {
		e.store, err = dedup.Open(ctx, cfg.Store.DedupOptions())
		if err != nil {
			return nil, fmt.Errorf("result store: %w", err)
		}
		deps.Store = e.store
	}
	e.svc = analysis.New(deps)
	return e, nil
}
