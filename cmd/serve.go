package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/config"
)

// newServeCmd creates the 'serve' subcommand, which exposes the crawl API over HTTP.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			} else if p := os.Getenv("PORT"); p != "" {
				if cfg.Server.Port, err = strconv.Atoi(p); err != nil {
					return fmt.Errorf("parse PORT: %w", err)
				}
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(ctx, lis, cfg, e.logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (defaults to server.port or $PORT)")
	return cmd
}

// serve builds the application and runs the API on lis until ctx is canceled.
func serve(ctx context.Context, lis net.Listener, cfg config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger, os.Stdout)
	if err != nil {
		_ = lis.Close()
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	srv := &http.Server{
		Handler:           api.NewServer(a, a, cfg, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server started", zap.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := a.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		logger.Info("shutdown complete")
		return errors.Join(errs...)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
