package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ultradar/internal/catalog"
	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/metrics"
	"github.com/sells-group/ultradar/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ultradar HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		reg := metrics.New()
		svc, err := initService(ctx, reg)
		if err != nil {
			return err
		}
		docs, err := initDocStore(ctx, reg)
		if err != nil {
			return err
		}
		defer docstore.Close(docs.Backend())

		cache := catalog.NewCache(
			catalog.DocStoreSource(docs, cfg.DocStore.StrategiesPrefix),
			cfg.Catalog.TTL(),
			catalog.WithMetrics(reg),
		)

		s := server.New(server.Deps{
			Analytics:        svc,
			Docs:             docs,
			Catalog:          cache,
			Metrics:          reg,
			StrategiesPrefix: cfg.DocStore.StrategiesPrefix,
			ExclusionsPrefix: cfg.DocStore.ExclusionsPrefix,
			Region:           cfg.Query.Region,
			Database:         cfg.Query.Database,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("database", cfg.Query.Database),
			zap.String("docstore", cfg.DocStore.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
