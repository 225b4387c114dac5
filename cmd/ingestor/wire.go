package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerflow/ingestor/internal/claimstore"
	"github.com/ledgerflow/ingestor/internal/config"
	"github.com/ledgerflow/ingestor/internal/deadletter"
	"github.com/ledgerflow/ingestor/internal/extractor"
	"github.com/ledgerflow/ingestor/internal/logging"
	"github.com/ledgerflow/ingestor/internal/metrics"
	"github.com/ledgerflow/ingestor/internal/model"
	"github.com/ledgerflow/ingestor/internal/normalize"
	"github.com/ledgerflow/ingestor/internal/objectstore"
	"github.com/ledgerflow/ingestor/internal/pipeline"
	"github.com/ledgerflow/ingestor/internal/reviewqueue"
	"github.com/ledgerflow/ingestor/internal/storage"
	"github.com/ledgerflow/ingestor/internal/validate"
)

// deps bundles every constructed dependency one CLI command might need,
// so each subcommand only has to call buildDeps once and pick what it uses.
type deps struct {
	cfg        *config.Config
	claims     *claimstore.Store
	inbox      objectstore.Inbox
	sink       storage.Sink
	deadLetter *deadletter.Log
	reviewQ    *reviewqueue.Queue
	collector  *metrics.Collector
	pipeline   *pipeline.Pipeline
}

func (d *deps) Close() error {
	return d.claims.Close()
}

// buildDeps loads configuration, initializes logging, and constructs every
// component wired by the pipeline and served by the monitoring API.
func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Log.Level, cfg.Log.Pretty)

	objectstore.AllowedMimeTypes = cfg.Inbox.AllowedMimeTypeSet()

	claims, err := claimstore.New(claimstore.Config{DBPath: cfg.Claim.DBPath, CacheSize: cfg.Claim.CacheSize})
	if err != nil {
		return nil, fmt.Errorf("open claim store: %w", err)
	}

	inbox, err := buildInbox(ctx, cfg)
	if err != nil {
		claims.Close()
		return nil, fmt.Errorf("build inbox: %w", err)
	}

	sink, err := buildSink(ctx, cfg)
	if err != nil {
		claims.Close()
		return nil, fmt.Errorf("build ledger sink: %w", err)
	}

	dl, err := deadletter.New("logs/dead_letter.jsonl")
	if err != nil {
		claims.Close()
		return nil, fmt.Errorf("open dead letter log: %w", err)
	}

	rq, err := reviewqueue.New("review_queue")
	if err != nil {
		claims.Close()
		return nil, fmt.Errorf("open review queue: %w", err)
	}

	rules, err := normalize.LoadRules(cfg.Normalization.RulesPath)
	if err != nil {
		claims.Close()
		return nil, fmt.Errorf("load normalization rules: %w", err)
	}

	collector := metrics.NewCollector(metrics.NewPrometheusCollector())

	providerCfg := extractor.ProviderConfig{
		MistralAPIKey:    cfg.Providers.MistralAPIKey,
		MistralModel:     cfg.Providers.MistralModel,
		OpenRouterAPIKey: cfg.Providers.OpenRouterAPIKey,
		OpenRouterModel:  cfg.Providers.OpenRouterModel,
		GroqAPIKey:       cfg.Providers.GroqAPIKey,
		GroqModel:        cfg.Providers.GroqModel,
		OpenAIAPIKey:     cfg.Providers.OpenAIAPIKey,
		OpenAIModel:      cfg.Providers.OpenAIModel,
		GeminiAPIKey:     cfg.Providers.ResolvedGeminiAPIKey(),
		GeminiModel:      cfg.Providers.GeminiModel,
		AnthropicAPIKey:  cfg.Providers.AnthropicAPIKey,
		AnthropicModel:   cfg.Providers.AnthropicModel,
		BedrockModelID:   cfg.Providers.BedrockModelID,
		BedrockRegion:    cfg.Providers.BedrockRegion,
		ProviderOrder:    cfg.Providers.ProviderOrderList(),
	}

	extractFn := func(ctx context.Context, filePath, providerHint string) (model.ExtractionPayload, error) {
		return extractor.Extract(ctx, filePath, providerHint, providerCfg)
	}

	p := pipeline.New(pipeline.Config{
		Inbox:                 inbox,
		Claims:                claims,
		Extract:               extractFn,
		Normalizer:            normalize.New(rules),
		SchemaValidator:       validate.NewSchemaValidator(),
		AmountTolerance:       rules.AmountTolerance,
		ConfidenceThreshold:   cfg.Providers.ReviewConfidenceThreshold,
		ReviewScoreThreshold:  cfg.Ledger.ReviewScoreThreshold,
		ReviewQueue:           rq,
		DeadLetter:            dl,
		Sink:                  sink,
		Metrics:               collector,
		WorkerID:              cfg.Server.ResolvedWorkerID(),
		TmpDir:                "tmp",
		ProviderHint:          cfg.Providers.Provider,
	})

	return &deps{
		cfg:        cfg,
		claims:     claims,
		inbox:      inbox,
		sink:       sink,
		deadLetter: dl,
		reviewQ:    rq,
		collector:  collector,
		pipeline:   p,
	}, nil
}

func buildInbox(ctx context.Context, cfg *config.Config) (objectstore.Inbox, error) {
	switch cfg.Inbox.Backend {
	case "drive":
		return objectstore.NewDriveInbox(ctx, cfg.Inbox.GoogleServiceAccount, cfg.Inbox.DriveInboxFolderID)
	default:
		return objectstore.NewR2Inbox(ctx, objectstore.R2Config{
			EndpointURL:     cfg.Inbox.R2EndpointURL,
			AccessKeyID:     cfg.Inbox.R2AccessKeyID,
			SecretAccessKey: cfg.Inbox.R2SecretAccessKey,
			BucketName:      cfg.Inbox.R2BucketName,
			InboxPrefix:     cfg.Inbox.R2InboxPrefix,
			ArchivePrefix:   cfg.Inbox.R2ArchivePrefix,
		})
	}
}

func buildSink(ctx context.Context, cfg *config.Config) (storage.Sink, error) {
	switch cfg.Ledger.Backend {
	case "sheets":
		return storage.NewSheetsSink(ctx, cfg.Inbox.GoogleServiceAccount, cfg.Ledger.SpreadsheetID, cfg.Ledger.Range)
	default:
		pool, err := storage.NewPostgresPool(ctx, cfg.Ledger.PostgresDSN, 5)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresSink(pool), nil
	}
}

func parsePollInterval(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid POLL_INTERVAL %q: %w", raw, err)
	}
	return d, nil
}
