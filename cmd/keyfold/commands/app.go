package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/keyfold/keyfold/internal/access"
	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/crypto"
	kferrors "github.com/keyfold/keyfold/internal/errors"
	"github.com/keyfold/keyfold/internal/events"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/rotation"
	"github.com/keyfold/keyfold/internal/secrets"
	"github.com/keyfold/keyfold/internal/store"
)

// App holds the wired services shared by all commands. Construction is
// deferred to the first command that needs it so flag parsing stays cheap.
type App struct {
	ConfigPath string
	Actor      string
	Logger     *logging.Logger

	Config     *config.Config
	Store      store.Store
	Sink       *events.Sink
	Checker    *access.Checker
	Members    *access.Manager
	Secrets    *secrets.Service
	Schedules  *rotation.Schedules
	Engine     *rotation.Engine
	Dispatcher *rotation.Dispatcher

	closers []func()
}

// Build wires the application from configuration.
func (a *App) Build(ctx context.Context) error {
	if a.Config != nil {
		return nil
	}
	if a.Actor == "" {
		a.Actor = os.Getenv("KEYFOLD_ACTOR")
	}
	if a.Actor == "" {
		return kferrors.ValidationError{Field: "actor", Message: "set --actor or KEYFOLD_ACTOR"}
	}

	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return err
	}
	a.Config = cfg

	key, err := loadMasterKey(cfg)
	if err != nil {
		return err
	}
	keeper, err := crypto.NewKeeper(key)
	crypto.Zeroize(key)
	if err != nil {
		return err
	}

	switch cfg.Database.Driver {
	case "postgres":
		pg, err := store.OpenSQLStore(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return err
		}
		a.Store = pg
		a.closers = append(a.closers, func() { _ = pg.Close() })
	default:
		a.Store = store.NewMemoryStore()
	}

	if cfg.Metrics.Enabled {
		events.InitMetrics()
		rotation.InitMetrics()
	}

	a.Sink = events.NewSink(0)
	a.Sink.Register(events.NewLogChannel(a.Logger))
	for _, n := range cfg.Notifications {
		if n.Type != "webhook" {
			continue
		}
		ch, err := events.NewWebhookChannel(events.WebhookConfig{
			Name:    n.Name,
			URL:     n.URL,
			Headers: n.Headers,
			Events:  n.Events,
			Timeout: time.Duration(n.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("invalid notification channel %s: %w", n.Name, err)
		}
		a.Sink.Register(ch)
	}
	a.Sink.Start(ctx)
	a.closers = append(a.closers, a.Sink.Stop)

	resolver := access.NewResolver(a.Store)
	a.Checker = access.NewChecker(resolver, a.Store)
	a.Members = access.NewManager(a.Store, a.Sink, a.Logger)
	a.Secrets = secrets.NewService(a.Store, keeper, a.Checker, a.Sink, a.Logger)
	a.Schedules = rotation.NewSchedules(a.Store, a.Checker, a.Logger)

	webhook := rotation.NewWebhookClient(cfg.WebhookTimeout())
	a.Engine = rotation.NewEngine(a.Store, a.Secrets, a.Checker, webhook, a.Sink, a.Logger)
	a.Dispatcher = rotation.NewDispatcher(a.Engine, a.Store, cfg.Rotation.ScanSpec, cfg.Rotation.MaxConcurrent, a.Logger)
	return nil
}

// Close releases resources in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func loadMasterKey(cfg *config.Config) ([]byte, error) {
	switch cfg.MasterKey.Source {
	case "env":
		return crypto.KeyFromEnv(cfg.MasterKey.EnvVar)
	case "keyring":
		return crypto.KeyFromKeyring(cfg.MasterKey.KeyringService, cfg.MasterKey.KeyringUser)
	case "passphrase":
		passphrase := os.Getenv(cfg.MasterKey.PassphraseEnv)
		if passphrase == "" {
			return nil, kferrors.ValidationError{Field: cfg.MasterKey.PassphraseEnv, Message: "environment variable is empty"}
		}
		salt, err := base64.StdEncoding.DecodeString(cfg.MasterKey.Salt)
		if err != nil {
			return nil, kferrors.ValidationError{Field: "master_key.salt", Message: "must be base64"}
		}
		return crypto.DeriveKey(passphrase, salt)
	}
	return nil, kferrors.ValidationError{Field: "master_key.source", Message: "unknown source"}
}
