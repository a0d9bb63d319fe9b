package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"romrando/engine"
	"romrando/metrics"
	"romrando/store"
	"romrando/util"
	"romrando/webui"
)

func main() {
	initConsole()
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	defer func() {
		if err := recover(); err != nil {
			util.LogPanic(err)
			os.Exit(2)
		}
	}()

	ctx = withSignalCancel(ctx)
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error("command failed", "err", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "randod",
		Short:         "randod accepts ROM uploads, identifies the game and serves randomized copies",
		SilenceErrors: true,
		Example: `
  # serve the web UI on port 5000 with the randomizer under ./randomizer
  randod

  # keep uploads elsewhere and expose a gRPC health check
  RANDOD_UPLOADS_DIR=/var/lib/randod/uploads randod --grpc-listen :5001
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			// .env is optional; real environment variables take precedence:
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}

			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	addFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg config) error {
	sink, err := util.OpenLogSink(cfg.LogFile)
	logger, lerr := util.NewLogger(sink, cfg.LogLevel)
	if lerr != nil {
		return fmt.Errorf("parse log-level: %w", lerr)
	}
	if err != nil {
		logger.Warn("logging to stderr only", "err", err)
	} else {
		logger.Info("logging to file", "path", cfg.LogFile)
		defer func() { _ = util.FlushLogger() }()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var m metrics.Metrics = metrics.Noop{}
	srvCfg := webui.Config{MaxUpload: cfg.MaxUpload, CORSOrigins: cfg.CORSOrigins}
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewProm("randod", reg)
		srvCfg.Metrics = metrics.Handler(reg)
	}

	fs := afero.NewOsFs()
	st, err := store.New(fs, store.Config{
		Root:       cfg.UploadsDir,
		HashBytes:  cfg.HashBytes,
		Extensions: cfg.Extensions,
	}, store.WithLogger(logger), store.WithMetrics(m))
	if err != nil {
		return err
	}

	ctl, err := engine.NewController(st, engine.ExecRunner{}, engine.Config{
		PresetsDir: cfg.PresetsDir,
		PresetExt:  cfg.PresetExt,
		OutputsDir: cfg.OutputsDir,
		Engine:     cfg.Engine,
	}, engine.WithLogger(logger), engine.WithMetrics(m))
	if err != nil {
		return err
	}

	if !provisioned(fs, cfg) {
		logger.Warn("randomizer is not fully provisioned", "jar", cfg.Engine.Jar, "presets", cfg.PresetsDir)
	}

	errc := make(chan error, 2)
	if cfg.GRPCListen != "" {
		hs := newHealthServer(fs, cfg)
		go func() {
			if err := serveHealth(ctx, cfg.GRPCListen, hs, util.Named(logger, "grpc")); err != nil {
				errc <- err
			}
		}()
	}

	srv := webui.NewServer(srvCfg, st, ctl, logger)
	go func() {
		errc <- srv.Serve(ctx, cfg.Listen)
	}()

	url := browserURL(cfg.Listen)
	if cfg.Tray {
		// blocks until the tray is quit or ctx is done:
		createSystray(ctx, cancel, url, logger)
		cancel()
	} else if cfg.OpenBrowser {
		openWebUI(url, logger)
	}

	select {
	case err = <-errc:
		cancel()
	case <-ctx.Done():
		err = <-errc
	}
	logger.Info("stopped")
	return err
}

func openWebUI(url string, logger *log.Logger) {
	if err := open.Start(url); err != nil {
		logger.Warn("could not open browser", "url", url, "err", err)
	}
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
