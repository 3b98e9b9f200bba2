package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/palantir/contact-enrichment/internal/app"
	"github.com/palantir/contact-enrichment/internal/config"
	"github.com/palantir/contact-enrichment/internal/logging"
	"github.com/palantir/contact-enrichment/internal/pipeline"
)

type localFlags struct {
	input       string
	output      string
	userID      string
	incremental bool
	development bool
}

func newLocalCmd() *cobra.Command {
	var lf localFlags
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Enrich a local contacts CSV into an output CSV",
		Example: `  enricher local --input contacts.csv --output enriched.csv
  enricher local --input contacts.csv --output enriched.csv --db enrich.db --incremental`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLocal(cmd, lf)
		},
	}
	f := cmd.Flags()
	f.StringVar(&lf.input, "input", "", "Input CSV file path (must include an 'id' column)")
	f.StringVar(&lf.output, "output", "", "Output CSV file path")
	f.StringVar(&lf.userID, "user", "local", "Owner of the records written to the database")
	f.BoolVar(&lf.incremental, "incremental", false, "Reuse ok rows from an existing output file")
	f.BoolVar(&lf.development, "dev", false, "Human-readable development logging")
	addOverrideFlags(cmd)
	return cmd
}

// addOverrideFlags registers the flags that override config values. Defaults
// shown in help are the built-in ones; unset flags leave the config alone.
func addOverrideFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()
	f.String("db", d.Database, "SQLite database file, empty disables persistence (env: ENRICH_DB)")
	f.Int("workers", d.Pipeline.Workers, "Number of concurrent contacts (env: WORKERS)")
	f.Int("max-retries", d.Pipeline.MaxRetries, "Max retries per contact for transient failures (env: MAX_RETRIES)")
	f.Duration("request-timeout", d.Pipeline.RequestTimeout, "Per-contact timeout (env: REQUEST_TIMEOUT)")
	f.Float64("rate-limit-rps", d.Pipeline.RateLimitRPS, "Global contact rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	f.Bool("fail-fast", d.Pipeline.FailFast, "Stop on the first failed contact (env: FAIL_FAST)")
	f.Int("max-rounds", d.MaxRounds, "Resolver rounds per contact (env: MAX_ROUNDS)")
	f.String("log-level", d.LogLevel, "Log level (env: LOG_LEVEL)")
	f.String("gemini-model", d.Resolvers.Gemini.Model, "Gemini model name (env: GEMINI_MODEL)")
}

// loadConfig reads --config and the environment, then applies the flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, &usageError{err: err}
	}

	// Lookups cannot fail: every flag below is registered by addOverrideFlags
	// with the type it is read back as.
	f := cmd.Flags()
	if f.Changed("db") {
		cfg.Database, _ = f.GetString("db")
	}
	if f.Changed("workers") {
		cfg.Pipeline.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("max-retries") {
		cfg.Pipeline.MaxRetries, _ = f.GetInt("max-retries")
	}
	if f.Changed("request-timeout") {
		cfg.Pipeline.RequestTimeout, _ = f.GetDuration("request-timeout")
	}
	if f.Changed("rate-limit-rps") {
		cfg.Pipeline.RateLimitRPS, _ = f.GetFloat64("rate-limit-rps")
	}
	if f.Changed("fail-fast") {
		cfg.Pipeline.FailFast, _ = f.GetBool("fail-fast")
	}
	if f.Changed("max-rounds") {
		cfg.MaxRounds, _ = f.GetInt("max-rounds")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("gemini-model") {
		cfg.Resolvers.Gemini.Model, _ = f.GetString("gemini-model")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, &usageError{err: err}
	}
	return cfg, nil
}

func runLocal(cmd *cobra.Command, lf localFlags) error {
	if lf.input == "" || lf.output == "" {
		return usagef("local requires --input and --output")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, lf.development)
	if err != nil {
		return &usageError{err: err}
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("close runtime", zap.Error(err))
		}
	}()

	return app.RunLocal(ctx, app.LocalOptions{
		InputPath:   lf.input,
		OutputPath:  lf.output,
		Incremental: lf.incremental,
	}, pipeline.Options{
		UserID:         lf.userID,
		Workers:        cfg.Pipeline.Workers,
		MaxRetries:     cfg.Pipeline.MaxRetries,
		RequestTimeout: cfg.Pipeline.RequestTimeout,
		RateLimitRPS:   cfg.Pipeline.RateLimitRPS,
		FailFast:       cfg.Pipeline.FailFast,
		Logger:         log.Named("pipeline"),
	}, rt.Engine, log)
}
