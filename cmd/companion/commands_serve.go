package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/companion/internal/companionrt"
	"github.com/haasonsaas/companion/internal/config"
	"github.com/haasonsaas/companion/internal/connectors"
	"github.com/haasonsaas/companion/internal/contextfiles"
	"github.com/haasonsaas/companion/internal/discovery"
	"github.com/haasonsaas/companion/internal/httpapi"
	"github.com/haasonsaas/companion/internal/modules"
	"github.com/haasonsaas/companion/internal/observer"
	"github.com/haasonsaas/companion/internal/orchestrator"
	"github.com/haasonsaas/companion/internal/permission"
	"github.com/haasonsaas/companion/internal/sandbox"
	"github.com/haasonsaas/companion/internal/sessions"
	"github.com/haasonsaas/companion/internal/vault"
	"github.com/haasonsaas/companion/internal/workspaces"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the companion HTTP/SSE server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "companion.yaml", "Path to configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

// runServe loads configuration, wires every component, and serves
// until a shutdown signal arrives. Grounded on
// _examples/haasonsaas-nexus/cmd/nexus/handlers_serve.go's
// load-config/start/graceful-shutdown structure.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded", "vault_root", cfg.VaultRoot, "port", cfg.Server.Port)

	v := vault.New(cfg.VaultRoot)
	if err := os.MkdirAll(v.Root(), 0o755); err != nil {
		return fmt.Errorf("create vault root: %w", err)
	}

	chatDir := filepath.Join(v.Root(), "Chat")
	if err := os.MkdirAll(chatDir, 0o755); err != nil {
		return fmt.Errorf("create Chat directory: %w", err)
	}
	sessionStore, err := sessions.NewSQLiteStore(filepath.Join(chatDir, "sessions.db"), &sessions.FileTranscriptLocator{
		HomeDir:   os.Getenv("HOME"),
		VaultRoot: v.Root(),
	})
	if err != nil {
		return fmt.Errorf("open sessions.db: %w", err)
	}
	defer sessionStore.Close()
	workspaceStore := workspaces.New(v.Root())
	brokers := permission.NewRegistry()
	sandboxController := sandbox.NewController(cfg.ToSandboxConfig())
	sandboxController.SetSessionStore(sessionStore)
	capDiscoverer := discovery.New(v.Root())
	contextResolver := contextfiles.New(v.Root())

	var direct orchestrator.AgentRuntime
	if cfg.LLM.AnthropicAPIKey != "" {
		direct = orchestrator.NewAnthropicRuntime(cfg.LLM.AnthropicAPIKey, cfg.LLM.AnthropicModel)
	}

	exchanges := &noopExchangeRecorder{}
	var analyzer observer.Analyzer
	if cfg.LLM.OpenAIAPIKey != "" {
		analyzer = observer.NewOpenAIAnalyzer(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIObserverModel)
	}
	postTurn := observer.New(sessionStore, analyzer, exchanges, v.Root(), logger)
	observerCtx, stopObserver := context.WithCancel(context.Background())
	defer stopObserver()
	go postTurn.Run(observerCtx)

	orch := orchestrator.New(orchestrator.Dependencies{
		Sessions:        sessionStore,
		Brokers:         brokers,
		Sandbox:         sandboxController,
		Direct:          direct,
		Discoverer:      capDiscoverer,
		Workspaces:      workspaceStore,
		ContextResolver: contextResolver,
		PostTurn:        postTurn,
		VaultRoot:       v.Root(),
	})

	pairingStore := connectors.NewPairingStore(connectors.PairingFilePath(v.Root()))
	runner := &companionrt.OrchestratorRunner{Orchestrator: orch}
	gateway := connectors.NewGateway(runner, pairingStore)
	registry := connectors.NewRegistry()
	registerConnectors(registry, gateway, v.Root(), logger)

	moduleLoader := modules.New(v.Root())
	if err := os.MkdirAll(filepath.Join(v.Root(), ".modules"), 0o755); err != nil {
		return fmt.Errorf("create .modules directory: %w", err)
	}
	if _, err := moduleLoader.Scan(); err != nil {
		logger.Warn("initial module scan failed", "error", err)
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		if err := moduleLoader.Watch(watchCtx, logger); err != nil {
			logger.Warn("module watcher stopped", "error", err)
		}
	}()

	server := httpapi.New(httpapi.Dependencies{
		Sessions:     sessionStore,
		Workspaces:   workspaceStore,
		Orchestrator: orch,
		Brokers:      brokers,
		Sandbox:      sandboxController,
		Connectors:   registry,
		Gateway:      gateway,
		Pairing:      pairingStore,
		VaultRoot:    v.Root(),
		Logger:       logger,
		Tokens:       httpapi.NewTokenService(cfg.Server.APISecret, 0),
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Handler(),
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := registry.StartAll(ctx); err != nil {
		logger.Warn("one or more connectors failed to start", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("companion server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	registry.StopAll(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("companion server stopped gracefully")
	return nil
}

// registerConnectors loads persisted bots.yaml and registers an
// adapter for every platform carrying a non-empty token. Adapters are
// registered but not started here; StartAll (or a per-platform
// /bots/{platform}/start call) brings them up.
func registerConnectors(registry *connectors.Registry, gateway *connectors.Gateway, vaultRoot string, logger *slog.Logger) {
	cfg, err := connectors.LoadBotsConfig(vaultRoot)
	if err != nil {
		logger.Warn("failed to load bots config", "error", err)
		return
	}
	if pc, ok := cfg.Platforms["telegram"]; ok && pc.Token != "" {
		registry.Register(connectors.NewTelegramAdapter(pc, gateway, logger))
	}
	if pc, ok := cfg.Platforms["discord"]; ok && pc.Token != "" {
		registry.Register(connectors.NewDiscordAdapter(pc, gateway, logger))
	}
	if pc, ok := cfg.Platforms["matrix"]; ok && pc.Token != "" {
		registry.Register(connectors.NewMatrixAdapter(pc, gateway, logger))
	}
}

// noopExchangeRecorder satisfies observer.ExchangeRecorder without a
// knowledge-graph module, which spec.md scopes out as an external
// collaborator (see DESIGN.md).
type noopExchangeRecorder struct{}

func (noopExchangeRecorder) RecordExchange(ctx context.Context, sessionID, description string) error {
	return nil
}
