// Backtest runner CLI: executes one backtest or a parameter sweep from
// a YAML job file, against a live provider or an offline fixture
// directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/executor"
	"github.com/ajitpratap0/stockfunk/internal/indicators"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/risk"
	"github.com/ajitpratap0/stockfunk/internal/scoring"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

var (
	jobFile     = flag.String("job", "", "Path to the YAML job file (required)")
	fixturesDir = flag.String("fixtures", "", "Offline fixture directory; omits the live provider")
	configPath  = flag.String("config", "", "Path to config.yaml (live provider mode)")
	outputFile  = flag.String("output", "", "Write the full result as JSON to this path")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
)

// jobSpec is the YAML shape of one backtest job.
type jobSpec struct {
	Name           string            `yaml:"name"`
	Universe       []string          `yaml:"universe"`
	Start          string            `yaml:"start"` // YYYY-MM-DD
	End            string            `yaml:"end"`
	Frequency      string            `yaml:"frequency"`
	TopN           int               `yaml:"top_n"`
	MinComposite   float64           `yaml:"min_composite"`
	MaxPerSector   int               `yaml:"max_per_sector"`
	InitialCapital float64           `yaml:"initial_capital"`
	CostBps        float64           `yaml:"cost_bps"`
	KellySizing    bool              `yaml:"kelly_sizing"`
	Sectors        map[string]string `yaml:"sectors"`

	// Optional grid sweep; when present every combination runs and the
	// report covers the sweep instead of a single run.
	Sweep *struct {
		TopN         []int     `yaml:"top_n"`
		MinComposite []float64 `yaml:"min_composite"`
		Frequency    []string  `yaml:"frequency"`
	} `yaml:"sweep"`
}

func main() {
	flag.Parse()

	config.InitLogger("info", "console")
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *jobFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -job flag is required")
		flag.Usage()
		os.Exit(1)
	}

	spec, cfg, err := loadJob(*jobFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading job file failed")
	}

	provider, err := buildProvider()
	if err != nil {
		log.Fatal().Err(err).Msg("Building provider failed")
	}

	exec := executor.New(nil, executor.DefaultConfig())
	scorer, err := scoring.New(provider, exec, scoring.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Building scorer failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if spec.Sweep != nil {
		runSweep(ctx, spec, cfg, provider, scorer)
		return
	}
	runSingle(ctx, cfg, provider, scorer)
}

// loadJob parses the YAML job file into an engine config.
func loadJob(path string) (*jobSpec, backtest.Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, backtest.Config{}, fmt.Errorf("reading job file: %w", err)
	}
	var spec jobSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, backtest.Config{}, fmt.Errorf("parsing job file: %w", err)
	}

	start, err := time.Parse("2006-01-02", spec.Start)
	if err != nil {
		return nil, backtest.Config{}, fmt.Errorf("invalid start date (use YYYY-MM-DD): %w", err)
	}
	end, err := time.Parse("2006-01-02", spec.End)
	if err != nil {
		return nil, backtest.Config{}, fmt.Errorf("invalid end date (use YYYY-MM-DD): %w", err)
	}

	cfg := backtest.Config{
		Universe:       spec.Universe,
		StartDate:      start,
		EndDate:        end,
		Frequency:      backtest.Frequency(spec.Frequency),
		TopN:           spec.TopN,
		MinComposite:   spec.MinComposite,
		MaxPerSector:   spec.MaxPerSector,
		InitialCapital: spec.InitialCapital,
		CostBps:        spec.CostBps,
		KellySizing:    spec.KellySizing,
		Sectors:        spec.Sectors,
	}
	return &spec, cfg, nil
}

// buildProvider serves fixtures offline or the configured vendor live.
func buildProvider() (marketdata.Provider, error) {
	if *fixturesDir != "" {
		log.Info().Str("dir", *fixturesDir).Msg("Running offline against fixtures")
		return marketdata.LoadFixtureDir(*fixturesDir, indicators.BuildSet)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	return marketdata.NewHTTPProvider(marketdata.HTTPProviderConfig{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		Timeout:           time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		RequestsPerSecond: float64(cfg.Provider.RatePerSecond),
		Burst:             cfg.Provider.RatePerSecond,
	})
}

func runSingle(ctx context.Context, cfg backtest.Config, provider marketdata.Provider, scorer backtest.Scorer) {
	engine, err := backtest.New(cfg, provider, scorer, risk.NewManager(cfg.Risk))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid backtest configuration")
	}

	result, err := engine.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	fmt.Println(backtest.GenerateReport(result))
	if *outputFile != "" {
		if err := backtest.SaveJSON(result, *outputFile); err != nil {
			log.Fatal().Err(err).Msg("Writing result file failed")
		}
		log.Info().Str("path", *outputFile).Msg("Result written")
	}
}

func runSweep(ctx context.Context, spec *jobSpec, base backtest.Config, provider marketdata.Provider, scorer backtest.Scorer) {
	sweepSpec := backtest.SweepSpec{
		TopN:         spec.Sweep.TopN,
		MinComposite: spec.Sweep.MinComposite,
	}
	for _, f := range spec.Sweep.Frequency {
		sweepSpec.Frequency = append(sweepSpec.Frequency, backtest.Frequency(f))
	}

	summary, err := backtest.RunSweep(ctx, base, sweepSpec, provider, scorer)
	if err != nil {
		log.Fatal().Err(err).Msg("Sweep failed")
	}

	fmt.Printf("Sweep complete: %d runs\n", len(summary.Runs))
	for _, run := range summary.Runs {
		if run.Err != "" {
			fmt.Printf("  top_n=%d min_composite=%.0f freq=%-9s FAILED: %s\n",
				run.Config.TopN, run.Config.MinComposite, run.Config.Frequency, run.Err)
			continue
		}
		fmt.Printf("  top_n=%d min_composite=%.0f freq=%-9s sharpe=%.2f return=%.1f%% maxdd=%.1f%%\n",
			run.Config.TopN, run.Config.MinComposite, run.Config.Frequency,
			run.Metrics.SharpeRatio, run.Metrics.TotalReturnPct, run.Metrics.MaxDrawdownPct)
	}
	if summary.Best != nil {
		fmt.Printf("\nBest by Sharpe: top_n=%d min_composite=%.0f freq=%s (%.2f)\n",
			summary.Best.Config.TopN, summary.Best.Config.MinComposite,
			summary.Best.Config.Frequency, summary.Best.Metrics.SharpeRatio)
	}
}
