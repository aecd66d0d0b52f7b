package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gallery/internal/api"
	"gallery/internal/mcp"
	"gallery/internal/upload"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var noMCP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the gallery page, JSON API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			return a.serve(cmd.Context(), !noMCP)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "do not mount the MCP endpoint at /mcp")
	return cmd
}

func (a *app) serve(ctx context.Context, withMCP bool) error {
	pipeline := upload.New(a.repo, upload.Config{
		Concurrency: a.cfg.Upload.Concurrency,
		MaxBytes:    a.cfg.Upload.MaxBytes,
	}, a.logger.Named("upload"))

	opts := api.Options{
		ThumbnailEdge: a.cfg.Thumbnail.MaxEdge,
		AuthUser:      a.cfg.Auth.Username,
		AuthHash:      a.cfg.Auth.PasswordHash,
	}
	if a.cfg.Upload.MaxBytes > 0 {
		// Room for several files of the per-file limit plus form overhead.
		opts.MaxUploadBytes = a.cfg.Upload.MaxBytes*int64(max(a.cfg.Upload.Concurrency, 1))*4 + 1<<20
	}
	if withMCP {
		opts.MCP = mcp.Handler(mcp.NewServer(a.repo, version))
	}
	handlers := api.NewHandlers(a.repo, pipeline, a.logger.Named("http"), opts)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handlers.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server started",
			zap.String("addr", srv.Addr),
			zap.Bool("auth", a.cfg.Auth.Enabled()),
			zap.Bool("mcp", withMCP))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	watching, err := a.docs.Watch(ctx, func() {
		a.logger.Debug("store changed on disk, reloading")
		a.repo.Reload(ctx)
	})
	if err != nil {
		a.logger.Warn("cannot watch store for external changes", zap.Error(err))
	} else if watching {
		a.logger.Info("watching store for external changes")
	}
	return g.Wait()
}
