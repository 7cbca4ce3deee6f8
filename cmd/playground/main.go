package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fluxbase-eu/playground/internal/api"
	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/compiler"
	"github.com/fluxbase-eu/playground/internal/config"
	"github.com/fluxbase-eu/playground/internal/diagnostics"
	"github.com/fluxbase-eu/playground/internal/observability"
	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/pubsub"
	"github.com/fluxbase-eu/playground/internal/realtime"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Playground %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	observability.ServiceVersion = Version

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting playground")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Playground exited with error")
	}
	log.Info().Msg("Server exited")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	invoker := compiler.NewInvoker(loadCompiler(cfg.Compiler),
		compiler.WithRootDir(cfg.Pipeline.RootDir),
		compiler.WithInputPath(cfg.Pipeline.InputPath),
		compiler.WithMetrics(metrics),
	)
	bun := bundler.NewPipeline(
		bundler.WithEntry(cfg.Pipeline.Entry),
		bundler.WithMetrics(metrics),
	)

	ps, err := pubsub.NewPubSub(cfg.PubSub.Backend, cfg.PubSub.BufferSize)
	if err != nil {
		return err
	}
	defer ps.Close()

	mapper := diagnostics.NewMapper()
	port := api.NewBroadcastPort(cfg.Fragment, ps)

	orch := pipeline.New(pipeline.Deps{
		Compiler: invoker,
		Bundler:  bun,
		Mapper:   mapper,
		Port:     port,
		PubSub:   ps,
		Metrics:  metrics,
	}, pipeline.Options{
		DebounceWindow: cfg.Pipeline.DebounceWindow,
		Bundle:         cfg.Pipeline.Bundle,
	})

	var manager *realtime.Manager
	if cfg.Realtime.Enabled {
		manager = realtime.NewManager(ctx,
			realtime.WithPubSub(ps),
			realtime.WithMapper(mapper),
			realtime.WithMetrics(metrics),
			realtime.WithMaxConnections(cfg.Realtime.MaxConnections),
			realtime.WithConnectionConfig(realtime.ConnectionConfig{
				QueueSize:    cfg.Realtime.SendBufferSize,
				WriteTimeout: cfg.Realtime.WriteTimeout,
			}),
		)
		if err := manager.Start(); err != nil {
			return fmt.Errorf("failed to start realtime hub: %w", err)
		}
	}

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	server := api.NewServer(cfg, api.ServerDeps{
		Playground: orch,
		Compiler:   invoker,
		Bundler:    bun,
		Realtime:   manager,
		Metrics:    metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting playground server")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	stop()
	<-orch.Stopped()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loadCompiler returns the configured optimizer. A missing external binary
// leaves the playground running without a compiler.
func loadCompiler(cfg config.CompilerConfig) compiler.Compiler {
	switch cfg.Provider {
	case "process":
		pc, err := compiler.NewProcessCompiler(cfg.ProcessPath, cfg.ProcessTimeout, cfg.ProcessArgs...)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load optimizer, compiles are disabled")
			return nil
		}
		log.Info().Str("path", cfg.ProcessPath).Msg("Using external optimizer")
		return pc
	default:
		log.Info().Msg("Using esbuild optimizer")
		return compiler.NewEsbuildCompiler()
	}
}
