package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/guard"
	"github.com/ttsmith21/sheetmetal-engine/internal/ipc"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, db, err := a.openTracker()
			if err != nil {
				return err
			}
			defer db.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			p := a.newPipeline(tr, reg)

			h, err := ipc.NewHandler(p, tr, a.cfg.CacheSize, a.logger)
			if err != nil {
				return err
			}
			h.Guard = guard.NewGuard(a.cfg.Guard)
			h.MaxBodyBytes = a.cfg.MaxBodyBytes
			h.Version = version
			srv := ipc.NewServer(h, a.cfg.ListenAddr, reg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.Warn("server shutdown", zap.Error(err))
				}
			}()

			a.logger.Info("sheet-metal engine listening", zap.String("url", ipc.FormatListenURL(a.cfg.ListenAddr)))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}
