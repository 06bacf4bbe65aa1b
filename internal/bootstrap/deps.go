// Package bootstrap wires the mirror store, durable queue, provider
// adapters, and core services into the three process modes (api |
// worker | scheduler), grounded on worker_deps.go/worker_bootstrap.go's
// construct-once-share-everywhere shape, reworked onto this module's
// hexagonal port set.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"mailmirror/adapter/out/attachment"
	"mailmirror/adapter/out/mongodb"
	"mailmirror/adapter/out/persistence/postgres"
	"mailmirror/adapter/out/provider/graph"
	"mailmirror/adapter/out/provider/imap"
	"mailmirror/adapter/out/queue"
	"mailmirror/adapter/out/redisstate"
	"mailmirror/config"
	"mailmirror/core/domain"
	"mailmirror/core/port/out"
	"mailmirror/core/service/account"
	"mailmirror/core/service/email"
	"mailmirror/core/service/onboarding"
	"mailmirror/core/service/scheduler"
	"mailmirror/core/service/search"
	"mailmirror/core/service/sync"
	"mailmirror/infra/database"
	"mailmirror/infra/middleware"
	"mailmirror/pkg/vault"
)

// Deps is the fully-wired dependency graph every process mode builds
// its own surface from; only the surface (HTTP router vs. worker pool
// vs. ticker) differs between modes.
type Deps struct {
	Config *config.Config

	PostgresPool *pgxpool.Pool
	SqlxDB       *sqlx.DB
	RedisClient  *redis.Client
	MongoClient  *mongo.Client

	Accounts    out.AccountRepository
	Users       out.UserRepository
	Messages    out.MessageRepository
	Search      out.SearchRepository
	Attachments out.AttachmentRepository
	BodyCache   out.BodyCache
	States      out.StateStore

	Vault    out.CredentialVault
	IMAP     *imap.Adapter
	Graph    *graph.Adapter
	Uploader out.AttachmentUploader
	Queue    out.JobQueue

	Onboarding *onboarding.Service
	Sync       *sync.Orchestrator
	Scheduler  *scheduler.Scheduler
	Emails     *email.Service
	Searcher   *search.Service
	Accounting *account.Service

	Log zerolog.Logger
}

// Build connects to every backing store and constructs the full
// dependency graph. Callers are responsible for closing PostgresPool,
// RedisClient, and MongoClient on shutdown.
func Build(cfg *config.Config) (*Deps, error) {
	zlog := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Str("service", "mailmirror").Logger()

	pgPool, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlxDB := sqlx.NewDb(stdlib.OpenDBFromPool(pgPool), "pgx")

	redisOpt, err := redis.ParseURL(cfg.QueueURL)
	if err != nil {
		return nil, fmt.Errorf("parse queue url: %w", err)
	}
	if cfg.QueueUser != "" {
		redisOpt.Username = cfg.QueueUser
	}
	if cfg.QueuePass != "" {
		redisOpt.Password = cfg.QueuePass
	}
	redisClient := redis.NewClient(redisOpt)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	var mongoClient *mongo.Client
	var bodyCache out.BodyCache
	if cfg.MongoDBURL != "" {
		mongoClient, err = mongodb.NewClient(cfg.MongoDBURL, cfg.MongoDBName)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		db := mongoClient.Database(cfg.MongoDBName)
		cache := mongodb.NewBodyCache(db)
		if err := cache.EnsureIndexes(context.Background()); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		bodyCache = cache
	}

	pgDB := postgres.Open(sqlxDB)
	accounts := postgres.NewAccountRepository(pgDB)
	users := postgres.NewUserRepository(pgDB)
	messages := postgres.NewMessageRepository(pgDB)
	searchRepo := postgres.NewSearchRepository(pgDB)
	attachments := postgres.NewAttachmentRepository(pgDB)

	states := redisstate.New(redisClient, "mailmirror:state:")
	middleware.InitTokenBlacklist(redisClient)

	credVault, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init credential vault: %w", err)
	}

	imapAdapter := imap.New(credVault, cfg.CertsDir, cfg.TLSRejectUnauthorized)

	var graphAdapter *graph.Adapter
	if cfg.MSClientID != "" {
		graphAdapter = graph.New(credVault, graph.Config{
			ClientID:     cfg.MSClientID,
			ClientSecret: cfg.MSClientSecret,
			TenantID:     cfg.MSTenantID,
			RedirectURL:  cfg.MSRedirectURL,
		})
	}

	var uploader out.AttachmentUploader
	if cfg.AttachmentUploadURL != "" {
		uploader = attachment.New(attachment.Config{Endpoint: cfg.AttachmentUploadURL, APIKey: cfg.AttachmentUploadAPIKey})
	}

	jobQueue := queue.New(redisClient, "mailmirror-workers", queue.Config{
		MaxAttempts:        cfg.JobMaxAttempts,
		BackoffBase:        cfg.JobBackoffBase,
		CompletedRetention: cfg.CompletedJobRetention,
		FailedRetention:    cfg.FailedJobRetention,
		BlockTimeout:       time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		PendingCheckEvery:  time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
		Limits: map[domain.JobType]queue.Limits{
			domain.JobInitialSync:      {Concurrency: cfg.InitialSyncConcurrency, RateLimitPerMinute: cfg.InitialSyncRateLimit},
			domain.JobIncrementalSync:  {Concurrency: cfg.IncrementalSyncConcurrency, RateLimitPerMinute: cfg.IncrementalSyncRateLimit},
			domain.JobAttachmentUpload: {Concurrency: 4, RateLimitPerMinute: 60},
		},
	}, zlog)

	onboardingSvc := onboarding.NewService(accounts, credVault, imapAdapter, providerAdapter(graphAdapter), jobQueue, zlog)
	orchestrator := sync.NewOrchestrator(accounts, messages, credVault, tokenRefresher(graphAdapter), imapAdapter, providerAdapter(graphAdapter), jobQueue, bodyCache)
	schedulerSvc := scheduler.New(accounts, jobQueue)
	emailSvc := email.NewService(messages, accounts, bodyCache)
	searchSvc := search.NewService(searchRepo)
	accountSvc := account.NewService(accounts)

	return &Deps{
		Config:       cfg,
		PostgresPool: pgPool,
		SqlxDB:       sqlxDB,
		RedisClient:  redisClient,
		MongoClient:  mongoClient,

		Accounts:    accounts,
		Users:       users,
		Messages:    messages,
		Search:      searchRepo,
		Attachments: attachments,
		BodyCache:   bodyCache,
		States:      states,

		Vault:    credVault,
		IMAP:     imapAdapter,
		Graph:    graphAdapter,
		Uploader: uploader,
		Queue:    jobQueue,

		Onboarding: onboardingSvc,
		Sync:       orchestrator,
		Scheduler:  schedulerSvc,
		Emails:     emailSvc,
		Searcher:   searchSvc,
		Accounting: accountSvc,

		Log: zlog.With().Str("workerId", cfg.WorkerID).Logger(),
	}, nil
}

// providerAdapter returns a typed nil out.ProviderAdapter as a
// non-nil-interface-wrapping-nil-pointer trap avoider: a nil *graph.Adapter
// must never satisfy the interface when Graph OAuth isn't configured, or
// adapterFor's nil checks in the orchestrator would silently misbehave.
func providerAdapter(a *graph.Adapter) out.ProviderAdapter {
	if a == nil {
		return nil
	}
	return a
}

func tokenRefresher(a *graph.Adapter) out.TokenRefresher {
	if a == nil {
		return nil
	}
	return a
}

// Close releases every pooled connection Build opened.
func (d *Deps) Close() {
	if d.PostgresPool != nil {
		d.PostgresPool.Close()
	}
	if d.RedisClient != nil {
		_ = d.RedisClient.Close()
	}
	if d.MongoClient != nil {
		_ = d.MongoClient.Disconnect(context.Background())
	}
}
