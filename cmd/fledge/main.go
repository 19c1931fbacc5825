// Command fledge is an interactive chat front end with MCP tool calling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/fledge/internal/chat"
	"github.com/MrWong99/fledge/internal/config"
	"github.com/MrWong99/fledge/internal/health"
	"github.com/MrWong99/fledge/internal/mcp"
	"github.com/MrWong99/fledge/internal/mcp/mcphost"
	"github.com/MrWong99/fledge/internal/observe"
	"github.com/MrWong99/fledge/internal/resilience"
	"github.com/MrWong99/fledge/internal/ui"
	"github.com/MrWong99/fledge/pkg/provider/llm"
	"github.com/MrWong99/fledge/pkg/provider/llm/anyllm"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Configuration (watched for hot reload) ────────────────────────────────
	// The watcher polls in a background goroutine; the session does not exist
	// yet at construction time, so it is handed over via an atomic pointer.
	var sessionRef atomic.Pointer[chat.Session]
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(sessionRef.Load(), config.Diff(old, new))
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fledge: config file %q not found (set -config to point at your YAML file)\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fledge: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("fledge starting",
		"config", *configPath,
		"provider", cfg.Chat.Name,
		"model", cfg.Chat.Model,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "fledge",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── MCP host ──────────────────────────────────────────────────────────────
	host := mcphost.New(
		mcphost.WithDuplicatePolicy(cfg.MCP.DuplicatePolicy),
		mcphost.WithMetrics(metrics),
		mcphost.WithLogger(logger),
	)
	defer func() {
		if err := host.Close(); err != nil {
			slog.Warn("mcp host close error", "err", err)
		}
	}()

	if err := host.RegisterArithmetic(); err != nil {
		slog.Error("failed to register arithmetic tools", "err", err)
		return 1
	}

	serverConfigs := make(map[string]mcp.ServerConfig, len(cfg.MCP.Servers))
	for _, srv := range cfg.MCP.Servers {
		serverConfigs[srv.Name] = srv.ServerConfig()
		if err := host.RegisterServer(ctx, srv.ServerConfig()); err != nil {
			// A dead server should not block startup; /enable can retry it.
			slog.Warn("failed to connect MCP server", "server", srv.Name, "err", err)
		}
	}

	// ── LLM provider ──────────────────────────────────────────────────────────
	provider, err := buildProvider(cfg)
	if err != nil {
		slog.Error("failed to build LLM provider", "err", err)
		return 1
	}

	// ── Session ───────────────────────────────────────────────────────────────
	session := chat.NewSession(provider, host,
		chat.WithLimits(chat.Limits{
			MaxToolCallIterations: cfg.Chat.MaxToolCallIterations,
			MaxWorkingTime:        cfg.Chat.MaxWorkingTime.Std(),
		}),
		chat.WithSystemPrompt(cfg.Chat.SystemPrompt),
		chat.WithProviderName(cfg.Chat.Name),
		chat.WithSessionMetrics(metrics),
		chat.WithSessionLogger(logger),
	)
	sessionRef.Store(session)

	// ── Operational endpoints ─────────────────────────────────────────────────
	var opsServer *http.Server
	if cfg.MetricsAddr != "" {
		opsServer = health.NewServer(cfg.MetricsAddr,
			health.Checker{Name: "mcp", Check: func(context.Context) error {
				if len(host.Tools()) == 0 {
					return errors.New("no tools registered")
				}
				return nil
			}},
		)
		go func() {
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
	}

	// ── REPL ──────────────────────────────────────────────────────────────────
	printStartupSummary(cfg, len(host.Tools()))

	repl := ui.New(session, ui.WithServers(serverConfigs), ui.WithLogger(logger))
	if err := repl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("repl error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProvider constructs the LLM provider chain: the configured primary,
// optionally wrapped with a fallback backend, optionally wrapped with a rate
// limiting pacer.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	primary, err := newBackend(cfg.Chat.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("primary provider %q: %w", cfg.Chat.Name, err)
	}
	provider := llm.Provider(primary)

	if cfg.Fallback != nil {
		secondary, err := newBackend(*cfg.Fallback)
		if err != nil {
			return nil, fmt.Errorf("fallback provider %q: %w", cfg.Fallback.Name, err)
		}
		fb := resilience.NewLLMFallback(provider, cfg.Chat.Name, resilience.FallbackConfig{})
		fb.AddFallback(cfg.Fallback.Name, secondary)
		provider = fb
		slog.Info("fallback provider configured", "name", cfg.Fallback.Name, "model", cfg.Fallback.Model)
	}

	if cfg.Chat.RequestsPerMinute > 0 {
		provider = resilience.NewPacer(provider, cfg.Chat.RequestsPerMinute)
		slog.Info("request pacing enabled", "requests_per_minute", cfg.Chat.RequestsPerMinute)
	}

	return provider, nil
}

// newBackend creates a single any-llm-go backed provider from a config entry.
func newBackend(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// ── Hot reload ────────────────────────────────────────────────────────────────

// applyConfigChange adopts the hot-reloadable parts of a config diff. Limits
// land between turns; if a turn is in flight the change is skipped with a
// warning and the user can touch the file again or use /set.
func applyConfigChange(session *chat.Session, d config.ConfigDiff) {
	if session == nil {
		return
	}
	if d.LimitsChanged {
		err := session.SetLimits(chat.Limits{
			MaxToolCallIterations: d.NewIterations,
			MaxWorkingTime:        d.NewWorkingTime,
		})
		if err != nil {
			slog.Warn("could not apply new limits", "err", err)
		} else {
			slog.Info("limits updated from config file",
				"max_tool_call_iterations", d.NewIterations,
				"max_working_time", d.NewWorkingTime,
			)
		}
	}
	if d.SystemPromptChanged {
		if err := session.SetSystemPrompt(d.NewSystemPrompt); err != nil {
			slog.Warn("could not apply new system prompt", "err", err)
		} else {
			slog.Info("system prompt updated from config file")
		}
	}
	if d.LogLevelChanged {
		slog.SetDefault(newLogger(d.NewLogLevel))
		slog.Info("log level updated from config file", "log_level", d.NewLogLevel)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, toolCount int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Fledge — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Provider", cfg.Chat.Name+" / "+cfg.Chat.Model)
	if cfg.Fallback != nil {
		printEntry("Fallback", cfg.Fallback.Name+" / "+cfg.Fallback.Model)
	} else {
		printEntry("Fallback", "(disabled)")
	}
	printEntry("MCP servers", fmt.Sprintf("%d", len(cfg.MCP.Servers)))
	printEntry("Tools", fmt.Sprintf("%d", toolCount))
	printEntry("Tool budget", fmt.Sprintf("%d calls / %s", cfg.Chat.MaxToolCallIterations, cfg.Chat.MaxWorkingTime))
	if cfg.MetricsAddr != "" {
		printEntry("Metrics", cfg.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
	fmt.Println("Type /help for commands.")
}

func printEntry(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
