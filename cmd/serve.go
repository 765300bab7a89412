package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/taxpoint/internal/auth"
	"github.com/sells-group/taxpoint/internal/db"
	"github.com/sells-group/taxpoint/internal/orders"
	"github.com/sells-group/taxpoint/internal/seed"
	"github.com/sells-group/taxpoint/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the import workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := db.Migrate(ctx, env.pool); err != nil {
			return err
		}
		if err := env.storage.EnsureBucket(ctx); err != nil {
			return err
		}
		if err := seed.Run(ctx, env.pool, cfg); err != nil {
			return err
		}

		resolver, err := seed.BuildResolver(ctx, env.pool, cfg.Geo)
		if err != nil {
			return err
		}
		catalog, err := seed.BuildCatalog(ctx, env.pool)
		if err != nil {
			return err
		}

		users := auth.NewUserStore(env.pool)
		if _, err := users.EnsureAdmin(ctx,
			cfg.Bootstrap.AdminLogin, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminFullName); err != nil {
			return err
		}

		orderStore := orders.NewOrderStore(env.pool)
		taskStore := orders.NewTaskStore(env.pool)
		calc := orders.NewCalculator(resolver, catalog)

		// Workers run on the signal context: request cancellation never
		// interrupts an import, SIGTERM finalizes all of them.
		importer := orders.NewImporter(ctx, orderStore, taskStore, resolver, catalog, env.storage, env.rdb)
		if n, err := importer.ResumeOnStartup(ctx); err != nil {
			zap.L().Warn("resume import tasks", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("resumed import tasks", zap.Int("count", n))
		}

		sessions := auth.NewRedisSessions(env.rdb, cfg.Session.KeyPrefix,
			time.Duration(cfg.Session.TTLSeconds)*time.Second)

		gateway := server.New(cfg, server.Deps{
			Users:    users,
			Sessions: sessions,
			Orders:   orderStore,
			Tasks:    taskStore,
			Calc:     calc,
			Importer: importer,
		})

		port := servePort
		if port == 0 {
			port = cfg.App.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, port),
			Handler: gateway.Handler(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Running imports flush and mark their tasks before exit.
		importer.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
