package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/internal/adapter/inbound/http"
	accesslogstore "github.com/mcpgate/mcpgate/internal/adapter/outbound/accesslog"
	"github.com/mcpgate/mcpgate/internal/adapter/outbound/backup"
	"github.com/mcpgate/mcpgate/internal/adapter/outbound/settings"
	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/domain/auth"
	"github.com/mcpgate/mcpgate/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway server",
	Long: `Start the mcpgate HTTP server.

The server authenticates tool-invocation routes (/mcp, /mcp/{group},
/mcp/server/{server}), serves the admin API for access logs and settings
backups, and exposes Prometheus metrics on /metrics.

On first start with no users configured, an admin user is created and its
initial password is printed once to stderr.

Examples:
  # Start with config file settings
  mcpgate run

  # Start with a specific config file
  mcpgate --config /path/to/mcpgate.yaml run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	if used := config.ConfigFileUsed(); used != "" {
		logger.Info("configuration loaded", "file", used)
	}

	// signal context for graceful shutdown; stop() restores default signal
	// handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	// Outbound adapters.
	store := settings.NewFileStore(cfg.Settings.Path, logger)
	if !store.Exists() {
		logger.Info("no settings file yet, one will be created", "path", store.Path())
	}
	backups := backup.NewManager(store, cfg.Backup.Dir, cfg.Backup.Retention, logger)
	store.SetOnSave(func(*settings.Document) { backups.CreateQuiet() })

	logStore, err := accesslogstore.NewSQLiteStore(cfg.AccessLog.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open access log: %w", err)
	}
	defer logStore.Close()

	// Session secret: configured, or generated per process.
	secret := []byte(cfg.Session.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		logger.Warn("no session secret configured; sessions will not survive a restart")
	}

	hasher := auth.Argon2idVerifier{}
	if err := seedAdminUser(store, hasher, logger); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	// Services.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := http.NewMetrics(registry)

	tokens := service.NewTokenService(store, logger)
	sessions := auth.NewSessionSigner(secret, cfg.SessionTTL())
	gateway := service.NewGatewayService(store, tokens, sessions, hasher, logger)
	logs := service.NewAccessLogService(logStore, metrics.AccessLogDrops, logger)

	handler := http.NewHandler(gateway, logs, backups, store, noForwarder{}, metrics, registry, logger)
	transport := http.NewTransport(handler,
		http.WithAddr(cfg.Server.Addr),
		http.WithLogger(logger),
	)

	logger.Info("mcpgate starting",
		"version", Version,
		"addr", cfg.Server.Addr,
		"settings", cfg.Settings.Path,
	)
	return transport.Start(ctx)
}

// seedAdminUser creates an initial admin account when no users exist yet.
// The generated password is printed once to stderr and never stored in
// plaintext.
func seedAdminUser(store *settings.FileStore, hasher auth.PasswordHasher, logger *slog.Logger) error {
	doc, err := store.Load()
	if err != nil {
		return err
	}
	if len(doc.Users) > 0 {
		return nil
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	password := hex.EncodeToString(raw)

	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}

	err = store.Update(func(doc *settings.Document) error {
		if len(doc.Users) > 0 {
			return nil
		}
		doc.Users = append(doc.Users, settings.UserEntry{
			Username:     "admin",
			PasswordHash: hash,
			IsAdmin:      true,
		})
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Created initial admin user %q with password: %s\n", "admin", password)
	fmt.Fprintln(os.Stderr, "Store this password now; it will not be shown again.")
	logger.Info("initial admin user created")
	return nil
}

// noForwarder answers tool calls when no downstream transport is wired.
type noForwarder struct{}

func (noForwarder) Forward(w stdhttp.ResponseWriter, r *stdhttp.Request, scope string) {
	stdhttp.Error(w, "no downstream MCP transport configured", stdhttp.StatusBadGateway)
}

// newLogger builds the process logger writing to stderr.
func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
