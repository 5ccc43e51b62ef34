package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/changelog-watch/internal/archive"
	"github.com/JakeFAU/changelog-watch/internal/config"
	"github.com/JakeFAU/changelog-watch/internal/hash/sha256"
	pgstore "github.com/JakeFAU/changelog-watch/internal/history/postgres"
	"github.com/JakeFAU/changelog-watch/internal/notifier"
	pubsubnotifier "github.com/JakeFAU/changelog-watch/internal/notifier/pubsub"
	slacknotifier "github.com/JakeFAU/changelog-watch/internal/notifier/slack"
	redisstore "github.com/JakeFAU/changelog-watch/internal/seen/redis"
	gcsstorage "github.com/JakeFAU/changelog-watch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/changelog-watch/internal/storage/local"
	memorystorage "github.com/JakeFAU/changelog-watch/internal/storage/memory"
	"github.com/JakeFAU/changelog-watch/internal/summarizer"
	"github.com/JakeFAU/changelog-watch/internal/summarizer/gemini"
	"github.com/JakeFAU/changelog-watch/internal/summarizer/openai"
)

func setupSummarizer(ctx context.Context, cfg config.SummarizerConfig) (summarizer.Summarizer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		s, err := openai.New(openai.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			AzureAPIKey: cfg.OpenAI.AzureAPIKey,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			Timeout:     cfg.OpenAI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("openai summarizer init failed: %w", err)
		}
		return s, nil
	case config.ProviderGemini:
		s, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.Gemini.APIKey,
			BaseURL:     cfg.Gemini.BaseURL,
			Model:       cfg.Gemini.Model,
			Temperature: cfg.Gemini.Temperature,
			Timeout:     cfg.Gemini.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini summarizer init failed: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}
}

func setupNotifier(ctx context.Context, app *App) (notifier.Notifier, error) {
	cfg := app.cfg
	var sinks notifier.Multi
	if cfg.Notifier.Slack.Token != "" {
		n, err := slacknotifier.New(slacknotifier.Config{
			Token:   cfg.Notifier.Slack.Token,
			Channel: cfg.SlackChannel(),
			APIURL:  cfg.Notifier.Slack.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("slack notifier init failed: %w", err)
		}
		app.logger.Info("using slack notifier", zap.String("channel", cfg.SlackChannel()))
		sinks = append(sinks, n)
	}
	if cfg.Notifier.PubSub.ProjectID != "" {
		p, err := pubsubnotifier.New(ctx, cfg.Notifier.PubSub.ProjectID, cfg.Notifier.PubSub.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub notifier init failed: %w", err)
		}
		app.logger.Info("using pubsub notifier", zap.String("topic", cfg.Notifier.PubSub.Topic))
		app.pubsub = p
		sinks = append(sinks, p)
	}
	if len(sinks) == 0 {
		app.logger.Warn("no notifier configured, messages will be logged")
		return notifier.Log{Logger: app.logger.Named("notifier")}, nil
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

func setupSeen(ctx context.Context, app *App) error {
	cfg := app.cfg.Seen
	if cfg.RedisURL == "" {
		app.logger.Info("no seen-set configured, every change will be announced")
		return nil
	}
	store, err := redisstore.New(cfg.RedisURL, cfg.TTL)
	if err != nil {
		return fmt.Errorf("redis seen-set init failed: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		app.logger.Warn("redis seen-set unreachable, deduplication may be skipped", zap.Error(err))
	}
	app.seen = store
	return nil
}

func setupArchive(ctx context.Context, app *App) (*archive.Archiver, error) {
	cfg := app.cfg.Archive
	var blobs archive.BlobStore
	switch cfg.Provider {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveMemory:
		app.logger.Info("using in-memory snapshot archive")
		blobs = memorystorage.NewBlobStore()
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		app.logger.Info("using local snapshot archive", zap.String("dir", cfg.Local.BaseDir))
		blobs = store
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		app.logger.Info("using GCS snapshot archive", zap.String("bucket", cfg.GCS.Bucket))
		blobs = store
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
	return archive.New(blobs, sha256.New(), cfg.Prefix)
}

func setupHistory(ctx context.Context, app *App) error {
	cfg := app.cfg.History
	if cfg.DSN == "" {
		return nil
	}
	store, err := pgstore.New(ctx, pgstore.Config{DSN: cfg.DSN, Table: cfg.Table, MaxConns: cfg.MaxConns})
	if err != nil {
		return fmt.Errorf("history store init failed: %w", err)
	}
	app.logger.Info("recording run history", zap.String("table", cfg.Table))
	app.history = store
	return nil
}
