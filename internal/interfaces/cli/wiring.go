package cli

import (
	"context"
	"fmt"

	"github.com/example/reservation-intake/internal/config"
	"github.com/example/reservation-intake/internal/domain/reservation"
	"github.com/example/reservation-intake/internal/infrastructure/audit"
	"github.com/example/reservation-intake/internal/infrastructure/openai"
	"github.com/example/reservation-intake/internal/infrastructure/postgres"
	"github.com/example/reservation-intake/internal/infrastructure/sqlite"
	"github.com/example/reservation-intake/internal/infrastructure/telegram"
)

// recordStore combines the two store-facing contracts both backends satisfy.
type recordStore interface {
	reservation.RecordStore
	reservation.DigestSource
}

// openStore builds the configured store backend. The returned closer must be
// called when the command finishes.
func openStore(ctx context.Context, cfg config.Config) (recordStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return postgres.NewRecordRepo(pool), pool.Close, nil

	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func newAuditLog(cfg config.Config) *audit.CSVLog {
	return &audit.CSVLog{Dir: cfg.LogsDir}
}

// newNotifier returns nil when no bot token is configured; the usecases treat
// a nil notifier as "no side channel".
func newNotifier(cfg config.Config) reservation.Notifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}
	return telegram.New(telegram.Config{
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
		BaseURL:  cfg.Telegram.BaseURL,
	})
}

func newExtractor(cfg config.Config, log reservation.AuditLog) *openai.Client {
	return openai.New(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Audit:   log,
	})
}
