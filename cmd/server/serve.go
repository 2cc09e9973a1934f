package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jrsteele09/go-oidc-provider/internal/cleanup"
	"github.com/jrsteele09/go-oidc-provider/internal/config"
	"github.com/jrsteele09/go-oidc-provider/server"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "Port to bind the HTTP server")
	serveCmd.Flags().String("issuer", "", "Fixed OIDC issuer URL. If empty, derived from each request")
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "Apply database migrations before serving")
	if err := v.BindPFlag(config.KeyPort, serveCmd.Flags().Lookup("port")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag(config.KeyIssuer, serveCmd.Flags().Lookup("issuer")); err != nil {
		panic(err)
	}
}

func serve(ctx context.Context) error {
	displayAppname(cfg.GetAppName())

	a, err := newApp(ctx, cfg, autoMigrate)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Dependencies{
		Config:     cfg,
		Auth:       a.service,
		Principals: a.principals,
		Clients:    a.registry,
		Discovery:  a.discovery,
		Metrics:    a.metrics,
		Health:     a.Health,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           srv,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	job := cleanup.New(a, cfg.GetCleanupInterval(), cfg.GetCleanupRetention(),
		cleanup.WithOnDeleted(a.metrics.CleanupDeleted))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "[serve] ListenAndServe")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "[serve] Shutdown")
		}
		log.Info().Msg("server stopped")
		return nil
	})
	g.Go(func() error {
		return job.Run(gctx)
	})
	return g.Wait()
}
