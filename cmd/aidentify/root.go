package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/liliang-cn/aidentify/internal/backend"
	"github.com/liliang-cn/aidentify/internal/config"
	"github.com/liliang-cn/aidentify/internal/notify"
	"github.com/liliang-cn/aidentify/internal/repository"
	"github.com/liliang-cn/aidentify/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootOptions struct {
	configPath string
	debug      bool
	email      string
	server     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "aidentify",
		Short: "AIdentify client - detect AI-generated images, video and audio",
		Long: `AIdentify client core.

Keeps the chat history of the signed-in user in sync with the detection
backend and uploads media for analysis. Run "aidentify serve" to expose the
session to a local UI, or use the one-shot commands from a terminal.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVarP(&opts.email, "email", "e", "", "user email (overrides user.email)")
	flags.StringVarP(&opts.server, "server", "s", "", "backend base URL (overrides backend.base_url)")

	cmd.AddCommand(
		newServeCmd(opts),
		newHistoryCmd(opts),
		newShowCmd(opts),
		newDetectCmd(opts),
		newDeleteCmd(opts),
	)
	return cmd
}

// app is the wired client core shared by all commands
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *repository.DB
	client  *backend.Client
	store   *service.SessionStore
	uploads *service.UploadOrchestrator
}

func newApp(opts *rootOptions, notifier notify.Notifier) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.email != "" {
		cfg.User.Email = opts.email
	}
	if opts.server != "" {
		cfg.Backend.BaseURL = strings.TrimRight(opts.server, "/")
	}

	logger, err := newLogger(cfg.Log.Level, opts.debug)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.client = backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, cfg.Backend.UploadTimeout, logger)

	if notifier == nil {
		notifier = notify.NewLog(logger)
	}

	var cache service.HistoryCache
	if cfg.Cache.Enabled {
		db, err := repository.NewDB(cfg.Cache.Path)
		if err != nil {
			// the cache is optional, run without it
			logger.Warn("History cache unavailable", zap.String("path", cfg.Cache.Path), zap.Error(err))
		} else {
			a.db = db
			cache = repository.NewHistoryRepository(db)
		}
	}

	a.store = service.NewSessionStore(a.client, cache, notifier, logger)
	a.uploads = service.NewUploadOrchestrator(a.store, a.client, notifier, logger)
	return a, nil
}

// signIn applies the configured identity, falling back to the cached history when the backend is down
func (a *app) signIn(ctx context.Context) error {
	if a.cfg.User.Email == "" {
		return fmt.Errorf("no user configured: pass --email or set user.email")
	}
	err := a.store.SetUser(ctx, a.cfg.User.Email)
	if err == nil {
		return nil
	}
	n, rerr := a.store.Restore(ctx)
	if rerr != nil || n == 0 {
		return err
	}
	a.logger.Warn("Backend unavailable, showing cached history", zap.Int("chats", n), zap.Error(err))
	return nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}

func newLogger(level string, debug bool) (*zap.Logger, error) {
	if debug || strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// printer writes notifications to the terminal
type printer struct {
	w io.Writer
}

func (p printer) Notify(level notify.Level, message string) {
	switch level {
	case notify.LevelError:
		fmt.Fprintf(p.w, "✗ %s\n", message)
	case notify.LevelSuccess:
		fmt.Fprintf(p.w, "✓ %s\n", message)
	default:
		fmt.Fprintln(p.w, message)
	}
}
