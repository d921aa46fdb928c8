package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"paylink/internal/admin"
	disputehandler "paylink/internal/dispute/handler"
	disputeservice "paylink/internal/dispute/service"
	disputestore "paylink/internal/dispute/store"
	escrowhandler "paylink/internal/escrow/handler"
	escrowmetrics "paylink/internal/escrow/metrics"
	escrowservice "paylink/internal/escrow/service"
	contractstore "paylink/internal/escrow/store/contract"
	milestonestore "paylink/internal/escrow/store/milestone"
	observationstore "paylink/internal/escrow/store/observation"
	jwttoken "paylink/internal/jwt_token"
	"paylink/internal/notify"
	"paylink/internal/platform/config"
	"paylink/internal/platform/httpserver"
	"paylink/internal/platform/logger"
	platformmetrics "paylink/internal/platform/metrics"
	platformredis "paylink/internal/platform/redis"
	"paylink/internal/settlement"
	"paylink/internal/settlement/claims"
	"paylink/internal/settlement/ledger"
	"paylink/pkg/platform/audit"
	auditmemory "paylink/pkg/platform/audit/store/memory"
	auditpostgres "paylink/pkg/platform/audit/store/postgres"
	"paylink/pkg/platform/audit/publisher"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(os.Getenv("PAYLINK_LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	// Persistence: Postgres when configured, in-memory otherwise.
	var (
		contracts  escrowservice.ContractStore
		milestones escrowservice.MilestoneStore
		disputes   disputeservice.DisputeStore
		claimStore claims.Store
		pool       *pgxpool.Pool
		auditDB    *sql.DB
	)
	var auditBackend audit.Store = auditmemory.NewInMemoryStore()

	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return err
		}

		auditDB, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer auditDB.Close()

		contracts = contractstore.NewPostgres(pool)
		milestones = milestonestore.NewPostgres(pool)
		disputes = disputestore.NewPostgres(pool)
		claimStore = claims.NewPostgres(pool)
		auditBackend = auditpostgres.New(auditDB)
		log.Info("using postgres stores")
	} else {
		contracts = contractstore.NewInMemory()
		milestones = milestonestore.NewInMemory()
		disputes = disputestore.NewInMemory()
		claimStore = claims.NewInMemory()
		log.Warn("no database configured, using in-memory stores")
	}

	// Deposit observation dedupe: Redis when configured.
	var observations escrowservice.ObservationStore
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		observations = observationstore.NewRedis(redisClient.Client)
		log.Info("using redis deposit observations")
	} else {
		observations = observationstore.NewInMemory()
	}

	// Notifications: Kafka when brokers are configured.
	var notifier notify.Dispatcher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier, err := notify.NewKafka(ctx, cfg.KafkaBrokers, cfg.NotifyTopic, notify.WithKafkaLogger(log))
		if err != nil {
			return err
		}
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
		log.Info("using kafka notifications", "topic", cfg.NotifyTopic)
	} else {
		notifier = notify.NewMemory()
	}

	auditPub := publisher.NewPublisher(auditBackend, publisher.WithAsyncBuffer(256))
	defer auditPub.Close()

	// Settlement executor over the ledger port.
	executorOpts := []settlement.Option{
		settlement.WithLogger(log),
		settlement.WithRetryBudget(cfg.SwapRetryBudget),
	}
	if cfg.FeeWallet != "" && cfg.FeePercent.IsPositive() {
		executorOpts = append(executorOpts, settlement.WithFee(cfg.FeePercent, cfg.FeeWallet))
	}
	executor := settlement.NewExecutor(ledger.NewMemory(), claimStore, executorOpts...)

	escrowSvc := escrowservice.New(contracts, milestones, observations, executor, cfg.VaultWallet,
		escrowservice.WithLogger(log),
		escrowservice.WithAuditPublisher(auditPub),
		escrowservice.WithNotifier(notifier),
		escrowservice.WithMetrics(escrowmetrics.New()),
	)
	disputeSvc := disputeservice.New(disputes, contracts, milestones, executor, cfg.VaultWallet,
		disputeservice.WithLogger(log),
		disputeservice.WithAuditPublisher(auditPub),
		disputeservice.WithNotifier(notifier),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "paylink", "paylink")
	httpMetrics := platformmetrics.New()

	r := chi.NewRouter()
	r.Get("/healthz", healthHandler(pool, redisClient))
	r.Handle("/metrics", promhttp.Handler())
	escrowhandler.New(escrowSvc, auditPub, log, httpMetrics, jwtService).Register(r)
	disputehandler.New(disputeSvc, log, httpMetrics, jwtService).Register(r)
	admin.New(disputeSvc, escrowSvc, log, httpMetrics, cfg.AdminTokenHash).Register(r)

	// Scheduled expiry sweeps alongside the manual admin trigger.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		result, err := escrowSvc.SweepExpired(context.Background())
		if err != nil {
			log.Error("scheduled sweep failed", "error", err)
			return
		}
		if result.Refunded+result.Cancelled+result.Failed > 0 {
			log.Info("scheduled sweep completed",
				"refunded", result.Refunded,
				"cancelled", result.Cancelled,
				"failed", result.Failed,
			)
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := httpserver.New(cfg.Addr, r)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting paylink", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthHandler(pool *pgxpool.Pool, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
