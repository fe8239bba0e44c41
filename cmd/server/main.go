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

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"kta/internal/applicant"
	"kta/internal/artifact"
	batchhandler "kta/internal/batch/handler"
	batchmetrics "kta/internal/batch/metrics"
	batchservice "kta/internal/batch/service"
	batchstore "kta/internal/batch/store"
	"kta/internal/issuance"
	issuancemetrics "kta/internal/issuance/metrics"
	"kta/internal/jwtauth"
	"kta/internal/objectstore"
	"kta/internal/platform/config"
	"kta/internal/platform/httpserver"
	"kta/internal/platform/logger"
	platformredis "kta/internal/platform/redis"
	"kta/internal/pricing"
	regionhandler "kta/internal/region/handler"
	regionservice "kta/internal/region/service"
	regionstore "kta/internal/region/store"
	requesthandler "kta/internal/request/handler"
	requestservice "kta/internal/request/service"
	requeststore "kta/internal/request/store"
	"kta/internal/serial"
	serialstore "kta/internal/serial/store"
	"kta/internal/storage"
	httptransport "kta/internal/transport/http"
	uploadshandler "kta/internal/uploads/handler"
	audit "kta/pkg/platform/audit"
	kafkapublisher "kta/pkg/platform/audit/publisher"
	"kta/pkg/platform/audit/publishers/compliance"
	"kta/pkg/platform/audit/publishers/operations"
	auditmemory "kta/pkg/platform/audit/store/memory"
	auditpostgres "kta/pkg/platform/audit/store/postgres"
	auditworker "kta/pkg/platform/audit/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

// run wires the stores, services, and transport and blocks until shutdown.
// Business logic lives in the internal service packages; main only chooses
// backends from the config.
func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		requests   requeststore.Store
		regions    regionstore.Store
		batches    batchstore.BatchStore
		lines      batchstore.LineStore
		approvals  batchstore.ApprovalStore
		counters   serial.CounterStore
		auditStore audit.Store
		auditPg    *auditpostgres.Store
		txRunner   interface {
			RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
		}
	)

	if cfg.DatabaseDSN != "" {
		db, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}

		requests = requeststore.NewPostgres(db)
		regions = regionstore.NewPostgres(db)
		batchPg := batchstore.NewPostgres(db)
		batches, lines, approvals = batchPg, batchPg, batchPg
		counters = serialstore.NewPostgresCounterStore(db)
		auditPg = auditpostgres.New(db)
		auditStore = auditPg
		txRunner = storage.NewPostgresTx(db)
		log.Info("storage backend: postgres")
	} else {
		requestsMem := requeststore.NewInMemoryStore()
		regionsMem := regionstore.NewInMemoryStore()
		batchesMem := batchstore.NewInMemoryStore()
		requests = requestsMem
		regions = regionsMem
		batches, lines, approvals = batchesMem, batchesMem, batchesMem
		counters = serialstore.NewInMemoryCounterStore()
		auditStore = auditmemory.New()
		txRunner = storage.NewMemoryTx(requestsMem, regionsMem, batchesMem)
		log.Warn("storage backend: memory; state is lost on restart")
	}

	// Redis, when configured, replaces the counter backend so serial
	// allocation stays atomic across replicas.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		counters = serialstore.NewRedisCounterStore(redisClient.Client)
		log.Info("counter backend: redis")
	}

	var objects objectstore.Store
	if cfg.Minio.Endpoint != "" {
		objects, err = objectstore.NewMinioStore(ctx, cfg.Minio)
		if err != nil {
			return err
		}
	} else {
		objects = objectstore.NewInMemoryStore()
		log.Warn("object storage backend: memory")
	}

	// The audit sink is always the local store. Under postgres the outbox
	// relay materializes committed events into audit_events and, when Kafka
	// is configured, publishes them; under the memory backend appends are
	// mirrored to the broker directly.
	var kafka *kafkapublisher.Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err = kafkapublisher.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		log.Info("audit relay: kafka", "topic", cfg.Kafka.AuditTopic)
	}

	var outboxRelay *auditpostgres.Relay
	switch {
	case auditPg != nil:
		var emitter auditpostgres.Emitter
		if kafka != nil {
			emitter = kafka
		}
		outboxRelay = auditpostgres.NewRelay(auditPg, emitter, log)
	case kafka != nil:
		auditStore = &mirroredAuditStore{inner: auditStore, mirror: kafka}
	}

	compliancePublisher := compliance.New(auditStore, compliance.WithLogger(log))
	operationsPublisher := operations.New(1024, operations.WithLogger(log))
	worker := auditworker.NewWorker(auditStore, operationsPublisher.Events())

	registry := applicant.NewRegistryClient(cfg.RegistryURL, 0)
	renderer := artifact.NewRendererClient(cfg.RendererURL, 0)
	pricer := pricing.NewPolicy(cfg.Pricing)
	allocator := serial.NewAllocator(counters)

	orchestrator := issuance.New(
		requests, allocator, renderer, operationsPublisher,
		issuancemetrics.New(), log,
		cfg.Issuance.Concurrency, cfg.Issuance.RenderTimeout,
	)

	regionSvc := regionservice.New(regions, txRunner, compliancePublisher, log)
	requestSvc := requestservice.New(requests, registry, operationsPublisher, log)
	batchSvc := batchservice.New(batchservice.Config{
		Batches:    batches,
		Lines:      lines,
		Approvals:  approvals,
		Requests:   requests,
		Regions:    regions,
		Pricer:     pricer,
		Invoices:   counters,
		Issuer:     orchestrator,
		Renderer:   renderer,
		TxRunner:   txRunner,
		Compliance: compliancePublisher,
		Operations: operationsPublisher,
		Metrics:    batchmetrics.New(),
		Logger:     log,
	})

	jwtService := jwtauth.NewService(cfg.JWTSigningKey, "kta")
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:       log,
		JWTValidator: jwtService,
		Handlers: []httptransport.Registrar{
			regionhandler.New(regionSvc, log),
			requesthandler.New(requestSvc, orchestrator, log),
			batchhandler.New(batchSvc, log),
			uploadshandler.New(objects, log),
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if outboxRelay != nil {
		g.Go(func() error {
			if err := outboxRelay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		operationsPublisher.Close()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// mirroredAuditStore appends to the primary store and best-effort mirrors the
// event to Kafka. The local append is the source of truth; a broker outage
// never fails a compliance write.
type mirroredAuditStore struct {
	inner  audit.Store
	mirror *kafkapublisher.Kafka
}

func (s *mirroredAuditStore) Append(ctx context.Context, event audit.Event) error {
	if err := s.inner.Append(ctx, event); err != nil {
		return err
	}
	_ = s.mirror.Emit(ctx, event)
	return nil
}

func (s *mirroredAuditStore) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return s.inner.ListBySubject(ctx, subject)
}
