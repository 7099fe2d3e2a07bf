// Package app assembles the dispatcher from configuration. Both binaries use
// it so the server and the worker run identical pipelines.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/unclebandit/broadcast-dispatcher/internal/config"
	"github.com/unclebandit/broadcast-dispatcher/internal/db"
	"github.com/unclebandit/broadcast-dispatcher/internal/logging"
	"github.com/unclebandit/broadcast-dispatcher/internal/media"
	"github.com/unclebandit/broadcast-dispatcher/internal/metrics"
	"github.com/unclebandit/broadcast-dispatcher/internal/provider"
	"github.com/unclebandit/broadcast-dispatcher/internal/queue"
	"github.com/unclebandit/broadcast-dispatcher/internal/repository"
	"github.com/unclebandit/broadcast-dispatcher/internal/service"
)

const (
	continueAttempts = 3
	continueBackoff  = 500 * time.Millisecond
)

type App struct {
	Config     config.Config
	Log        zerolog.Logger
	DB         *sqlx.DB
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Dispatcher *service.Dispatcher
}

// New connects to Postgres and builds the dispatch pipeline around q.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, q queue.Queue) (*App, error) {
	conn, err := db.Open(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New()
	m.MustRegister(reg)

	resolver := &media.Resolver{
		Packs:         &repository.MediaPackRepository{DB: conn},
		Bucket:        cfg.Storage.Bucket,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}
	if cfg.Storage.Endpoint != "" {
		lister, err := media.NewMinioLister(cfg.Storage)
		if err != nil {
			conn.Close()
			return nil, err
		}
		resolver.Objects = lister
	} else {
		log.Warn().Msg("storage.endpoint not set, private-storage campaigns will fail")
	}

	campaigns := &repository.CampaignRepository{DB: conn}
	d := &service.Dispatcher{
		Scheduler: &service.Scheduler{
			Campaigns:    campaigns,
			Destinations: &repository.DestinationRepository{DB: conn},
			Credentials:  &repository.CredentialRepository{DB: conn},
			ChunkSize:    cfg.Dispatch.ChunkSize,
			LeaseTTL:     cfg.Dispatch.LeaseTTL,
			StaleAfter:   cfg.Dispatch.StaleAfter,
		},
		Resolver: resolver,
		Executor: &service.Executor{
			Parallelism: cfg.Dispatch.ParallelSends,
			GroupPause:  cfg.Dispatch.GroupPause,
			Metrics:     m,
			Log:         logging.Component(log, "executor"),
		},
		Sender: provider.NewClient(provider.NewTelegram(cfg.Telegram), provider.Options{
			HTTPClient:        &http.Client{Timeout: cfg.Download.Timeout},
			RatePerSec:        cfg.Telegram.RatePerSec,
			MaxBytes:          cfg.Download.MaxBytes,
			DocumentThreshold: cfg.Download.DocumentThreshold,
			Metrics:           m,
			Logger:            logging.Component(log, "provider"),
		}),
		Ledger: &service.Ledger{
			Campaigns: campaigns,
			Usage:     &repository.UsageRepository{DB: conn},
			Metrics:   m,
			Log:       logging.Component(log, "ledger"),
		},
		Continuation: &service.Continuation{
			Queue:    q,
			Attempts: continueAttempts,
			Backoff:  continueBackoff,
			Log:      logging.Component(log, "continuation"),
		},
		Metrics: m,
		Log:     logging.Component(log, "dispatcher"),
	}

	return &App{
		Config:     cfg,
		Log:        log,
		DB:         conn,
		Registry:   reg,
		Metrics:    m,
		Dispatcher: d,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
