package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/aidentify/internal/api"
	"github.com/liliang-cn/aidentify/internal/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local API for a presentation layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	// the feed and log notifier need the loaded config, so the fan-out is filled after wiring
	var multi notify.Multi
	a, err := newApp(opts, &multi)
	if err != nil {
		return err
	}
	defer a.Close()

	feed := serveNotifiers(a, &multi)
	defer feed.Close()

	if !opts.debug {
		gin.SetMode(gin.ReleaseMode)
	}

	if a.cfg.User.Email != "" {
		if err := a.signIn(ctx); err != nil {
			a.logger.Warn("Initial history fetch failed", zap.Error(err))
		}
	}

	router := api.SetupRouter(a.store, a.uploads, feed, a.logger, api.RouterConfig{
		APIKey:       a.cfg.Server.APIKey,
		AllowOrigins: a.cfg.Server.AllowOrigins,
	})

	srv := &http.Server{
		Addr:        a.cfg.Address(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// submissions wait for the backend verdict
		WriteTimeout: a.cfg.Backend.UploadTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Starting AIdentify API",
			zap.String("address", srv.Addr),
			zap.String("backend", a.cfg.Backend.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down server...")

		// SSE streams end when the feed closes
		feed.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("Server exited")
	return nil
}

// serveNotifiers creates the SSE feed sized by notify.buffer and adds it to the fan-out with the log sink
func serveNotifiers(a *app, multi *notify.Multi) *notify.Feed {
	feed := notify.NewFeed(a.cfg.Notify.Buffer)
	*multi = append(*multi, feed, notify.NewLog(a.logger))
	return feed
}
