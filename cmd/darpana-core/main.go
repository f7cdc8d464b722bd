// Package main provides the CLI entry point for the orchestration core.
//
// The orchestration core runs four cooperating subsystems behind a single
// process: kaala (agent lifecycle), sutra (message bus and deadlock-safe
// resource allocation), dharma/lokapala (policy enforcement and post-hoc
// guardian scanning), and darpana (the LLM proxy router).
//
// # Basic Usage
//
// Start the server:
//
//	darpana-core serve --config darpana-core.yaml
//
// # Environment Variables
//
//   - DARPANA_CONFIG: path to the configuration file (default: darpana-core.yaml)
//   - DARPANA_API_KEY: client-facing API key for the proxy
//   - DARPANA_PROVIDER_<NAME>_API_KEY: per-provider upstream API key override
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darpana-core/darpana-core/internal/coreconfig"
	"github.com/darpana-core/darpana-core/internal/darpana"
	"github.com/darpana-core/darpana-core/internal/dharma"
	"github.com/darpana-core/darpana-core/internal/kaala"
	"github.com/darpana-core/darpana-core/internal/lokapala"
	"github.com/darpana-core/darpana-core/internal/sutra"
	"github.com/darpana-core/darpana-core/internal/sutra/banker"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "darpana-core",
		Short:        "Agent orchestration and coordination core",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration core",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = resolveConfigPath()
			}
			if debug {
				slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func resolveConfigPath() string {
	if v := os.Getenv("DARPANA_CONFIG"); v != "" {
		return v
	}
	return "darpana-core.yaml"
}

// core bundles the four subsystems so they can be wired together and torn
// down in the right order.
type core struct {
	kaala    *kaala.Manager
	bus      *sutra.Bus
	banker   *banker.Banker
	engine   *dharma.Engine
	guardian *lokapala.Scanner
	proxy    *darpana.Server
	watcher  *coreconfig.Watcher
}

func runServe(ctx context.Context, configPath string) error {
	slog.Info("starting orchestration core", "version", version, "config", configPath)

	cfg, err := coreconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	c, err := buildCore(cfg)
	if err != nil {
		return fmt.Errorf("build core: %w", err)
	}

	c.watcher = coreconfig.NewWatcher(configPath, 250*time.Millisecond, slog.Default(), func(newCfg *coreconfig.Config) {
		newEngine, err := buildDharmaEngine(newCfg)
		if err != nil {
			slog.Warn("orchestration core: failed to rebuild policy engine on reload", "error", err)
			return
		}
		c.engine = newEngine
		c.proxy.SetEngine(newEngine)
		slog.Info("orchestration core: policy engine reloaded", "preset", newCfg.Policy.Preset)
	})
	if err := c.watcher.Start(); err != nil {
		slog.Warn("orchestration core: config hot-reload disabled", "error", err)
	} else {
		defer c.watcher.Stop()
	}

	if err := c.proxy.Start(); err != nil {
		return fmt.Errorf("start proxy: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slog.Info("orchestration core: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()

	c.kaala.Dispose()
	c.bus.Destroy()
	return c.proxy.Shutdown(shutdownCtx)
}

func buildCore(cfg *coreconfig.Config) (*core, error) {
	km := kaala.New(kaala.DefaultConfig(), slog.Default())

	bus := sutra.New(sutra.Config{
		HistoryCapacity: cfg.Bus.HistoryCapacity,
		MaxTopics:       cfg.Bus.MaxTopics,
	}, slog.Default())

	bk := banker.New()

	engine, err := buildDharmaEngine(cfg)
	if err != nil {
		return nil, err
	}

	guardian := lokapala.New(cfg.LokapalaConfig(), time.Now().Unix)

	upstream := darpana.NewHTTPUpstream(60 * time.Second)
	proxy := darpana.NewServer(darpana.ServerConfig{
		Addr:            cfg.Server.Addr(),
		APIKey:          cfg.Auth.APIKey,
		AllowedOrigin:   cfg.CORS.AllowedOrigin,
		Routing:         cfg.DarpanaRouting(),
		MetricsRegistry: km.Registry(),
	}, upstream, engine, guardian, bus, slog.Default())

	return &core{
		kaala:    km,
		bus:      bus,
		banker:   bk,
		engine:   engine,
		guardian: guardian,
		proxy:    proxy,
	}, nil
}

func buildDharmaEngine(cfg *coreconfig.Config) (*dharma.Engine, error) {
	preset, err := cfg.DharmaPreset()
	if err != nil {
		return nil, err
	}
	return dharma.BuildEngine(preset), nil
}
