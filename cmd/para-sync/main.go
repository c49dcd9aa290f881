// ABOUTME: Entry point for the para-sync operator CLI
// ABOUTME: Drives the sync layer against a local store: tokens, seeding, snapshots, live watch

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/para-sync/internal/auth"
	"github.com/2389/para-sync/internal/config"
	"github.com/2389/para-sync/internal/dataservice"
	"github.com/2389/para-sync/internal/metrics"
	"github.com/2389/para-sync/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _ __   __ _ _ __ __ _       ___ _   _ _ __   ___
| '_ \ / _' | '__/ _' |_____/ __| | | | '_ \ / __|
| |_) | (_| | | | (_| |_____\__ \ |_| | | | | (__
| .__/ \__,_|_|  \__,_|     |___/\__, |_| |_|\___|
|_|                              |___/
`

// getConfigPath returns the path to the config file.
// Priority: PARA_CONFIG env var > XDG_CONFIG_HOME/para/sync.yaml > ~/.config/para/sync.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "sync.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "para", "sync.yaml")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "token":
		err = runToken(args)
	case "seed":
		err = runSeed(ctx, args)
	case "snapshot":
		err = runSnapshot(ctx, args)
	case "watch":
		err = runWatch(ctx, args)
	case "show":
		err = runShow(ctx, args)
	case "archive":
		err = runArchive(ctx, args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: para-sync <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  token --user ID              Issue a session token for a user")
	fmt.Println("  seed                         Create a demo workspace")
	fmt.Println("  snapshot [--json]            Load all collections and print them")
	fmt.Println("  watch [--refresh 30s]        Follow changes and serve metrics")
	fmt.Println("  show --type T --id ID        Render one entity with its children")
	fmt.Println("  archive --type T --id ID     Move an entity into archives")
	fmt.Println("  version                      Print the version")
	fmt.Println()
	fmt.Println("Commands acting on data take --user ID or --token TOKEN (or PARA_TOKEN).")
}

// loadConfig reads the config file, falling back to defaults when there is none.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Defaults(), "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

// resolveUser picks the user to act as. A token wins over a bare user id.
func resolveUser(cfg *config.Config, userID, token string) (string, error) {
	if token == "" {
		token = os.Getenv("PARA_TOKEN")
	}
	if token != "" {
		sessions, err := auth.NewSessions([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return "", fmt.Errorf("auth.jwt_secret: %w", err)
		}
		sub, err := sessions.Verify(token)
		if err != nil {
			return "", fmt.Errorf("verifying token: %w", err)
		}
		return sub, nil
	}
	if userID == "" {
		return "", fmt.Errorf("--user or --token is required")
	}
	return userID, nil
}

// session is an initialized service over the local store.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.SQLiteStore
	service *dataservice.Service
}

func (s *session) Close() {
	if err := s.service.Close(); err != nil {
		s.logger.Warn("closing service", "error", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing store", "error", err)
	}
}

// openSession opens the store and binds a service to the resolved user.
func openSession(ctx context.Context, common *commonFlags, m *metrics.Metrics) (*session, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if common.verbose {
		cfg.Logging.Level = "debug"
	}
	logger := setupLogger(cfg.Logging)

	userID, err := resolveUser(cfg, common.user, common.token)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	st.SetSuppressEcho(cfg.Sync.EchoSuppressed)

	svc := dataservice.New(st, serviceOptions(cfg, logger, m))
	if err := svc.Initialize(ctx, userID); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, store: st, service: svc}, nil
}

func serviceOptions(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) dataservice.Options {
	return dataservice.Options{
		LoadTimeout:        cfg.Sync.LoadTimeout,
		MutationTimeout:    cfg.Sync.MutationTimeout,
		EchoSuppressed:     cfg.Sync.EchoSuppressed,
		ReloadOnReconnect:  cfg.Sync.ReloadOnReconnect,
		QueueSize:          cfg.Sync.QueueSize,
		ResubscribeInitial: cfg.Sync.ResubscribeInitial,
		ResubscribeMax:     cfg.Sync.ResubscribeMax,
		DedupeTTL:          cfg.Sync.DedupeTTL,
		DedupeSize:         cfg.Sync.DedupeSize,
		Metrics:            m,
		Logger:             logger,
	}
}

func printBanner() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)
}
