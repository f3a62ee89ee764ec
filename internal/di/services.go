package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/config"
	"github.com/aristath/treasury/internal/digest"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/exporter"
	"github.com/aristath/treasury/internal/extract"
	"github.com/aristath/treasury/internal/history"
	"github.com/aristath/treasury/internal/metrics"
	"github.com/aristath/treasury/internal/notify"
	"github.com/aristath/treasury/internal/pipeline"
	"github.com/aristath/treasury/internal/reliability"
	"github.com/aristath/treasury/internal/snapshot"
	"github.com/aristath/treasury/internal/source"
)

// InitializeServices creates repositories and services on top of the databases
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.HistoryDB == nil {
		return fmt.Errorf("container has no history database")
	}

	container.Store = history.NewSQLiteStore(container.HistoryDB, log)
	container.Runs = history.NewRunRepository(container.HistoryDB, log)

	container.Events = events.NewManager(log)
	container.Metrics = metrics.New()
	container.Events.Subscribe(container.Metrics.Observe)

	container.Source = NewSource(cfg, log)
	container.Notifiers = NewNotifiers(cfg, log)

	container.Pipeline = pipeline.New(PipelineConfig(cfg), container.Store, log,
		pipeline.WithNotifiers(container.Notifiers...),
		pipeline.WithRunRecorder(container.Runs),
		pipeline.WithEvents(container.Events),
	)

	container.Exporter = exporter.New(container.Store, log)

	if cfg.Backup.Enabled {
		store, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Bucket:          cfg.Backup.Bucket,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup storage: %w", err)
		}
		container.Backup = reliability.NewBackupService(
			container.HistoryDB, store, cfg.DataDir, cfg.Backup.RetentionDays, container.Events, log,
		)
	}

	log.Info().
		Str("source", container.Source.Name()).
		Int("notifiers", len(container.Notifiers)).
		Bool("backups", container.Backup != nil).
		Msg("Services initialized")

	return nil
}

// PipelineConfig maps configuration onto pipeline settings
func PipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		Markers: extract.Markers{
			Start:  cfg.Table.Marker,
			End:    cfg.Table.EndMarkers,
			Totals: cfg.Table.Totals,
		},
		Layout: snapshot.DefaultLayout(),
		Digest: digest.Formatter{
			Threshold:      cfg.Digest.Threshold,
			Unit:           cfg.Digest.Unit,
			Mode:           DigestMode(cfg),
			IncludeNew:     cfg.Digest.IncludeNew,
			IncludeRemoved: cfg.Digest.IncludeRemoved,
		},
		Subject: "Bitcoin treasury changes",
	}
}

// DigestMode picks the markup of the digest. Telegram's parse mode wins when that channel is on.
func DigestMode(cfg *config.Config) digest.Mode {
	if !cfg.Enabled(config.ChannelTelegram) {
		return digest.ModePlain
	}
	switch cfg.Telegram.ParseMode {
	case "Markdown":
		return digest.ModeMarkdown
	case "HTML":
		return digest.ModeHTML
	}
	return digest.ModePlain
}

// NewSource returns the file source when SOURCE_FILE is set, Firecrawl otherwise
func NewSource(cfg *config.Config, log zerolog.Logger) source.Source {
	if cfg.Source.File != "" {
		return source.File{Path: cfg.Source.File}
	}
	return source.NewFirecrawl(source.FirecrawlConfig{
		APIKey:   cfg.Source.FirecrawlAPIKey,
		Endpoint: cfg.Source.FirecrawlEndpoint,
		URL:      cfg.Source.URL,
	}, log)
}

// NewNotifiers builds the enabled delivery channels in configuration order
func NewNotifiers(cfg *config.Config, log zerolog.Logger) []notify.Notifier {
	var out []notify.Notifier
	for _, ch := range cfg.Notify.Channels {
		switch ch {
		case config.ChannelLog:
			out = append(out, notify.NewLogNotifier(log))
		case config.ChannelTelegram:
			out = append(out, notify.NewTelegram(notify.TelegramConfig{
				Token:  cfg.Telegram.Token,
				ChatID: cfg.Telegram.ChatID,
			}, log))
		case config.ChannelMailgun:
			out = append(out, notify.NewMailgun(notify.MailgunConfig{
				Domain:    cfg.Mailgun.Domain,
				APIKey:    cfg.Mailgun.APIKey,
				Sender:    cfg.Mailgun.Sender,
				Recipient: cfg.Mailgun.Recipient,
			}, log))
		}
	}
	return out
}
