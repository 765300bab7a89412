package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/taxpoint/internal/db"
	"github.com/sells-group/taxpoint/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load jurisdiction boundaries and tax rates into the database",
	Long:  "Parses the configured city and county shapefiles and the tax-rate file, and persists them. Tables that already hold data are left untouched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := db.NewPool(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		if err := seed.Run(ctx, pool, cfg); err != nil {
			return err
		}
		zap.L().Info("seed complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
