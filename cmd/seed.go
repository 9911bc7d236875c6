package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/wa-relay/internal/config"
	"github.com/jmehdipour/wa-relay/internal/db"
	"github.com/jmehdipour/wa-relay/internal/directory"
	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/jmehdipour/wa-relay/internal/repository"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert the configured tenants into the MySQL tenants table",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) collect tenants from config and the snapshot file
		tenants := directory.FromConfig(cfg.Directory.Tenants)
		if cfg.Directory.SnapshotFile != "" {
			fromFile, err := directory.LoadSnapshotFile(cfg.Directory.SnapshotFile)
			if err != nil {
				return fmt.Errorf("load tenant snapshot: %w", err)
			}
			tenants = append(tenants, fromFile...)
		}
		// same rules the relay enforces at startup
		if _, err := directory.NewSnapshot(tenants); err != nil {
			return fmt.Errorf("invalid tenants: %w", err)
		}
		if len(tenants) == 0 {
			fmt.Println(">> no tenants configured, nothing to seed")
			return nil
		}

		// 3) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.PoolOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer sqlDB.Close()

		// 4) upsert
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// phone_number_id is unique in the table: an active entry wins over inactive ones
		byKey := make(map[string]model.Tenant, len(tenants))
		order := make([]string, 0, len(tenants))
		for _, t := range tenants {
			prev, seen := byKey[t.RoutingKey]
			if !seen {
				order = append(order, t.RoutingKey)
			}
			if !seen || (t.Active && !prev.Active) {
				byKey[t.RoutingKey] = t
			}
		}

		repo := repository.NewTenantsRepository(sqlDB)
		for _, key := range order {
			t := byKey[key]
			if err := repo.Upsert(ctx, t); err != nil {
				return fmt.Errorf("upsert tenant %s: %w", t.RoutingKey, err)
			}
		}

		fmt.Printf(">> Seeded %d tenants ✅\n", len(order))
		return nil
	},
}
