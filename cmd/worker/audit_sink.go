package worker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/wa-relay/internal/config"
	"github.com/jmehdipour/wa-relay/internal/db"
	"github.com/jmehdipour/wa-relay/internal/kafka"
	"github.com/jmehdipour/wa-relay/internal/logger"
	"github.com/jmehdipour/wa-relay/internal/metrics"
	"github.com/jmehdipour/wa-relay/internal/repository"
	"github.com/jmehdipour/wa-relay/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var metricsAddr string

var auditSinkCmd = &cobra.Command{
	Use:   "audit-sink",
	Short: "Copy audit events from Kafka into ClickHouse",
	RunE:  runAuditSink,
}

func init() {
	auditSinkCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9101", "address for /metrics (empty disables)")
}

func runAuditSink(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if cfg.ClickHouse.DSN == "" {
		return fmt.Errorf("clickhouse.dsn is required")
	}

	if err := logger.Init(cfg.Log.Level); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	lg := logger.Named("audit-sink")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) ClickHouse
	chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, db.PoolOptsFrom(cfg.ClickHouse))
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

	// 3) kafka consumer
	topic := cfg.Audit.Topic
	if topic == "" {
		topic = "relay.audit"
	}
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "warelay-audit-sink"
	}

	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewAuditSink(consumer, repository.NewCHAuditRepository(chDB), lg)

	// tune knobs
	if cfg.AuditSink.BatchSize > 0 {
		w.BatchSize = cfg.AuditSink.BatchSize
	}
	if cfg.AuditSink.BatchWait > 0 {
		w.BatchWait = cfg.AuditSink.BatchWait
	}

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				lg.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg.Info("audit sink started",
		zap.String("topic", topic),
		zap.String("group", groupID),
		zap.Int("batch_size", w.BatchSize),
		zap.Duration("batch_wait", w.BatchWait),
	)

	return w.Run(ctx)
}
