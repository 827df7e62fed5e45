package app

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/editbot/bot/edit"
	"github.com/m3rciful/editbot/bot/history"
	"github.com/m3rciful/editbot/bot/imaging"
	"github.com/m3rciful/editbot/bot/openai"
	"github.com/m3rciful/editbot/bot/session"
	"github.com/m3rciful/editbot/core/bootstrap"
)

// App holds the assembled bot: its configuration, optional database and
// the conversation service.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	recorder history.Recorder
	service  *edit.Service
	fetcher  *lazyFetcher
}

// Bootstrap initializes the logger, optional database and the conversation
// service from the loaded configuration.
func Bootstrap(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	recorder := history.NewNoop()
	if res.DB != nil {
		recorder = history.NewSQLRecorder(res.DB)
	}

	client, err := openai.NewClient(
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		openai.WithTimeout(time.Duration(cfg.OpenAI.TimeoutSeconds)*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("app: openai client: %w", err)
	}

	fetcher := &lazyFetcher{}
	service, err := edit.NewService(edit.Options{
		Sessions:   session.NewMemoryStore(),
		Fetcher:    fetcher,
		Client:     client,
		Recorder:   recorder,
		TargetSize: cfg.Image.TargetSize,
		Limits: imaging.Limits{
			MaxBytes:     cfg.Image.MaxUploadBytes,
			MaxPixelSide: cfg.Image.MaxPixelSide,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("app: edit service: %w", err)
	}

	return &App{
		cfg:      cfg,
		db:       res.DB,
		recorder: recorder,
		service:  service,
		fetcher:  fetcher,
	}, nil
}

// Close releases resources held by the app.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
