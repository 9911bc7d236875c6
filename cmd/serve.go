package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/wa-relay/internal/audit"
	"github.com/jmehdipour/wa-relay/internal/config"
	"github.com/jmehdipour/wa-relay/internal/db"
	"github.com/jmehdipour/wa-relay/internal/directory"
	"github.com/jmehdipour/wa-relay/internal/forward"
	"github.com/jmehdipour/wa-relay/internal/gateway"
	httpSrv "github.com/jmehdipour/wa-relay/internal/http"
	"github.com/jmehdipour/wa-relay/internal/inbound"
	"github.com/jmehdipour/wa-relay/internal/logger"
	"github.com/jmehdipour/wa-relay/internal/outbound"
	"github.com/jmehdipour/wa-relay/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if err := logger.Init(cfg.Log.Level); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync()
		lg := logger.Named("serve")

		var mysqlDB *sqlx.DB
		if cfg.NeedsMySQL() {
			mysqlDB, err = db.NewMySQLConnection(cfg.MySQL.DSN, db.PoolOptsFrom(cfg.MySQL))
			if err != nil {
				return fmt.Errorf("mysql connect: %w", err)
			}
			defer mysqlDB.Close()
		}

		redisClient, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		if redisClient != nil {
			defer func() { _ = redisClient.Close() }()
		}

		var reports httpSrv.AuditReports
		if cfg.ClickHouse.DSN != "" && cfg.Reports.APIKey != "" {
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, db.PoolOptsFrom(cfg.ClickHouse))
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer func() { _ = chDB.Close() }()
			reports = repository.NewCHAuditRepository(chDB)
		}

		tenants, err := buildDirectory(cfg, mysqlDB, redisClient)
		if err != nil {
			return err
		}

		gw := gateway.New(gateway.Config{
			BaseURL:     cfg.Platform.BaseURL,
			APIVersion:  cfg.Platform.APIVersion,
			AccessToken: cfg.Platform.AccessToken,
			Timeout:     cfg.Platform.Timeout,
		})
		fwd := forward.New(forward.Options{
			SharedSecret:  cfg.Forward.SharedSecret,
			SecretHeader:  cfg.Forward.SecretHeader,
			Timeout:       cfg.Forward.Timeout,
			FailThreshold: cfg.Forward.Breaker.FailThreshold,
			OpenFor:       cfg.Forward.Breaker.OpenFor,
		})

		router := inbound.New(tenants, buildAuditLog(cfg, mysqlDB), fwd, cfg.Platform.VerifyToken, logger.Named("inbound"))
		sender := outbound.NewService(tenants, gw, logger.Named("outbound"))

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Inbound:  router,
			Outbound: sender,
			Media:    gw,
			Reports:  reports,
			Redis:    redisClient,
			Log:      logger.Named("http"),
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			lg.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}

// buildDirectory picks the tenant source: an in-memory snapshot (config
// entries plus an optional YAML file) or the MySQL tenants table.
func buildDirectory(cfg config.Config, mysqlDB *sqlx.DB, rdb *redis.Client) (*directory.Directory, error) {
	lg := logger.Named("directory")

	if cfg.Directory.Source == config.DirectorySourceMySQL {
		var cache directory.Cache
		if rdb != nil {
			cache = directory.NewRedisCache(rdb)
		}
		store := directory.NewStore(repository.NewTenantsRepository(mysqlDB), cache, cfg.Directory.CacheTTL, lg)
		lg.Info("tenant directory backed by mysql", zap.Bool("cached", cache != nil && cfg.Directory.CacheTTL > 0))
		return directory.New(store), nil
	}

	tenants := directory.FromConfig(cfg.Directory.Tenants)
	if cfg.Directory.SnapshotFile != "" {
		fromFile, err := directory.LoadSnapshotFile(cfg.Directory.SnapshotFile)
		if err != nil {
			return nil, fmt.Errorf("load tenant snapshot: %w", err)
		}
		tenants = append(tenants, fromFile...)
	}
	snap, err := directory.NewSnapshot(tenants)
	if err != nil {
		return nil, fmt.Errorf("build tenant snapshot: %w", err)
	}
	lg.Info("tenant directory loaded", zap.Int("tenants", snap.Len()))
	return directory.New(snap), nil
}

func buildAuditLog(cfg config.Config, mysqlDB *sqlx.DB) audit.Log {
	if cfg.Audit.Sink == config.AuditSinkMySQL {
		return audit.NewSQLLog(
			mysqlDB,
			repository.NewAuditRepository(mysqlDB),
			repository.NewOutboxRepository(mysqlDB),
			cfg.Audit.Topic,
		)
	}
	return audit.NewZapLog(logger.Named("audit"))
}
