package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/prometheus/client_golang/prometheus"

	"meeting-insights-go/internal/analysis"
	"meeting-insights-go/internal/config"
	"meeting-insights-go/internal/logger"
	"meeting-insights-go/internal/media"
	"meeting-insights-go/internal/notify"
	"meeting-insights-go/internal/pipeline"
	"meeting-insights-go/internal/storage"
	"meeting-insights-go/internal/store"
	"meeting-insights-go/internal/transcription"
)

// app holds what every command needs: config, logger and the DB pool.
type app struct {
	cfg  *config.Config
	log  *logger.Logger
	pool *store.Pool
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log := logger.New()
	pool, err := store.Open(cfg.DatabaseURL, store.PoolOptions{
		MaxConns:       cfg.DBMaxConns,
		AcquireTimeout: cfg.DBAcquireTimeout,
		IdleTimeout:    cfg.DBIdleTimeout,
	}, log.Component("store"))
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, pool: pool}, nil
}

// orchestrator wires the pipeline against AWS, the model gateway and ffmpeg.
func (a *app) orchestrator(ctx context.Context, reg prometheus.Registerer) (*pipeline.Orchestrator, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if a.cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(a.cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	entry := a.log.Entry

	prober := media.NewProber(a.cfg.FFprobePath)
	deps := pipeline.Deps{
		Merger:    media.NewMerger(a.cfg.FFmpegPath, prober, entry),
		Publisher: storage.NewPublisher(s3.NewFromConfig(awsCfg), a.cfg.S3Bucket, entry),
		Transcriber: transcription.New(transcription.Options{
			BaseURL: a.cfg.OpenAIBaseURL,
			APIKey:  a.cfg.OpenAIAPIKey,
			Model:   a.cfg.TranscribeModel,
			Mock:    a.cfg.MockTranscribe,
			Timeout: a.cfg.ExternalTimeout,
		}, entry),
		Analyzer: analysis.New(analysis.Options{
			BaseURL: a.cfg.OpenAIBaseURL,
			APIKey:  a.cfg.OpenAIAPIKey,
			Model:   a.cfg.LLMModel,
			Prompts: a.cfg.Prompts,
			Mock:    a.cfg.MockLLM,
			Timeout: a.cfg.ExternalTimeout,
		}, entry),
		Store:    store.NewMeetings(a.pool),
		Notifier: notify.NewMailer(sesv2.NewFromConfig(awsCfg), a.cfg.FromEmail, entry),
		Metrics:  pipeline.NewMetrics(reg),
	}
	return pipeline.New(deps, pipeline.Options{
		TmpDir:          a.cfg.TmpDir,
		ExternalTimeout: a.cfg.ExternalTimeout,
		FailurePolicy:   a.cfg.FailurePolicy,
		OriginalsPolicy: a.cfg.OriginalsPolicy,
	}, entry), nil
}

func (a *app) close() {
	if err := a.pool.Close(); err != nil {
		a.log.WithError(err).Warn("closing database pool")
	}
}
