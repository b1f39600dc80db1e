// Command fundingpulse runs the funding-rate signal-detection pipeline.
// Its startup sequence (zerolog console writer, Prometheus registry,
// cobra root command with subcommands) follows cmd/cryptorun/main.go.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dynastyquant/fundingpulse/internal/config"
	"github.com/dynastyquant/fundingpulse/internal/dispatch"
	"github.com/dynastyquant/fundingpulse/internal/exchange"
	"github.com/dynastyquant/fundingpulse/internal/market"
	"github.com/dynastyquant/fundingpulse/internal/metrics"
	"github.com/dynastyquant/fundingpulse/internal/notify"
	"github.com/dynastyquant/fundingpulse/internal/persistence"
	"github.com/dynastyquant/fundingpulse/internal/persistence/postgres"
	"github.com/dynastyquant/fundingpulse/internal/scheduler"
	"github.com/dynastyquant/fundingpulse/internal/universe"
)

const version = "v1.0.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "fundingpulse",
		Short:   "Real-time funding-rate signal detection for perpetual futures",
		Version: version,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the streaming signal pipeline",
		RunE:  runPipeline,
	}

	universeCmd := &cobra.Command{
		Use:   "universe",
		Short: "Load and print the monitored symbol universe, then exit",
		RunE:  runUniverse,
	}

	healthcheckCmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Verify configuration and exchange connectivity, then exit",
		RunE:  runHealthcheck,
	}

	rootCmd.AddCommand(runCmd, universeCmd, healthcheckCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("fundingpulse exited with error")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, parseErr := zerolog.ParseLevel(cfg.LogLevel); parseErr == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg, nil
}

func runUniverse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	client := exchange.NewRESTClient(exchange.Config{BaseURL: cfg.KrakenBaseURL})
	loader := universe.NewLoader(client, cfg)

	symbols, err := loader.Load(cmd.Context())
	if err != nil {
		return err
	}
	for _, sym := range symbols {
		log.Info().Str("symbol", string(sym)).Msg("monitored")
	}
	log.Info().Int("count", len(symbols)).Msg("universe loaded")
	return nil
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	client := exchange.NewRESTClient(exchange.Config{BaseURL: cfg.KrakenBaseURL})
	if _, err := client.GetInstruments(cmd.Context()); err != nil {
		return err
	}
	log.Info().Msg("exchange reachable")
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	reg := metrics.NewRegistry()
	metricsServer := metrics.NewServer(cfg.MetricsPort)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsServer.Run(ctx)

	client := exchange.NewRESTClient(exchange.Config{BaseURL: cfg.KrakenBaseURL})
	store := market.NewStore(client)

	loader := universe.NewLoader(client, cfg)
	symbols, err := loader.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("universe load failed")
	}
	reg.UniverseSize.Set(float64(len(symbols)))

	seedTickers := make(map[market.Symbol]market.Ticker, len(symbols))
	seedFundings := make(map[market.Symbol]*market.Funding, len(symbols))
	if snapshots, err := client.GetTickers(ctx); err == nil {
		for _, snap := range snapshots {
			sym := market.Symbol(snap.Symbol)
			seedTickers[sym] = market.Ticker{
				Symbol:       sym,
				LastPrice:    snap.LastPrice,
				Turnover24h:  snap.Turnover24h,
				OpenInterest: snap.OpenInterestValue,
				Timestamp:    time.Now(),
			}
			if snap.HasFundingField {
				seedFundings[sym] = &market.Funding{
					Symbol:          sym,
					RatePercent:     snap.FundingRatePct,
					NextFundingTime: snap.NextFundingTime,
					Timestamp:       time.Now(),
				}
			}
		}
	} else {
		log.Warn().Err(err).Msg("bulk ticker seed fetch failed")
	}
	store.InitSymbolsBatched(ctx, symbols, seedTickers, seedFundings)

	sink := notify.NewWebhookSink(cfg.NotifyWebhookURL)

	var governorStore dispatch.Store
	if cfg.RedisAddr != "" {
		governorStore = dispatch.NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
	}
	governor := dispatch.NewGovernor(cfg.CooldownWindow(), cfg.MaxAlertsPerHour, sink, governorStore)

	var persistStore *persistence.Store
	if cfg.PostgresEnabled {
		db, err := sqlx.Connect("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Warn().Err(err).Msg("postgres connect failed, running without persistence")
		} else {
			persistStore = &persistence.Store{
				Signals:          postgres.NewSignalsRepo(db, 5*time.Second),
				FundingSnapshots: postgres.NewFundingSnapshotsRepo(db, 5*time.Second),
			}
		}
	}

	stream := exchange.NewStream(cfg.KrakenWSURL)
	sched := scheduler.New(store, stream, governor, persistStore, cfg, reg)

	log.Info().Int("symbols", len(symbols)).Msg("fundingpulse pipeline starting")
	sched.Run(ctx, symbols)
	log.Info().Msg("fundingpulse pipeline stopped")
	return nil
}
