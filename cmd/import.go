package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/taxpoint/internal/db"
	"github.com/sells-group/taxpoint/internal/orders"
	"github.com/sells-group/taxpoint/internal/seed"
)

var importUserID int64

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import a local order CSV and wait for completion",
	Args:  cobra.ExactArgs(1),
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

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		orderStore := orders.NewOrderStore(env.pool)
		taskStore := orders.NewTaskStore(env.pool)
		importer := orders.NewImporter(ctx, orderStore, taskStore, resolver, catalog, env.storage, env.rdb)

		task, err := importer.Submit(ctx, data, filepath.Base(args[0]), "text/csv", importUserID)
		if err != nil {
			return err
		}
		importer.Wait()

		final, err := taskStore.Get(ctx, task.ID)
		if err != nil {
			return err
		}
		zap.L().Info("import finished",
			zap.Int64("task_id", final.ID),
			zap.Int("total_rows", final.TotalRows),
			zap.Int("successful_rows", final.SuccessfulRows),
			zap.Int("failed_rows", final.FailedRows))
		return nil
	},
}

func init() {
	importCmd.Flags().Int64Var(&importUserID, "user", 1, "user id to attribute imported orders to")
	rootCmd.AddCommand(importCmd)
}
