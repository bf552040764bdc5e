package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/profiledir/internal/config"
	"github.com/wolfeidau/profiledir/internal/credentials"
	"github.com/wolfeidau/profiledir/internal/identity"
	"github.com/wolfeidau/profiledir/internal/logger"
	"github.com/wolfeidau/profiledir/internal/session"
	"github.com/wolfeidau/profiledir/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Config  string
	Server  string
	Version string

	// Stdout receives command output; nil means os.Stdout.
	Stdout io.Writer
}

func (g *Globals) out() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// app is the wiring shared by every command: one identity client and one
// session controller over the configured storage.
type app struct {
	cfg     config.Config
	client  *identity.Client
	store   *credentials.Store
	session *session.Controller

	closers []func(context.Context) error
}

func newApp(ctx context.Context, globals *Globals) (*app, error) {
	cfg, err := config.Load(globals.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if globals.Server != "" {
		cfg.ServerURL = globals.Server
	}
	if globals.Debug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Logger = logger.Setup(cfg.Debug)
	if !cfg.Debug {
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	}

	a := &app{cfg: cfg}

	shutdown, err := telemetry.InitTelemetry(ctx, "profiledir", globals.Version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
	} else {
		a.closers = append(a.closers, shutdown)
	}

	storage, closeStorage, err := cfg.OpenStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to open credential storage: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return closeStorage() })

	client, err := identity.New(cfg.Identity(globals.Version))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}

	a.client = client
	a.store = credentials.NewStore(storage)
	a.session = session.New(a.store, client,
		session.WithLogger(log.Logger),
		session.WithRetry(cfg.Retry.MaxTries, cfg.Retry.InitialInterval),
	)

	log.Debug().
		Str("server", cfg.ServerURL).
		Str("backend", cfg.Store.Backend).
		Msg("profiledir ready")

	return a, nil
}

// start reconciles the persisted session and waits for the server's answer.
func (a *app) start(ctx context.Context) error {
	if err := a.session.Start(ctx); err != nil {
		return err
	}
	return a.session.Wait(ctx)
}

// close lets any revalidation still in flight finish before the storage it
// writes to is closed.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.session != nil {
		if err := a.session.Wait(ctx); err != nil && !errors.Is(err, session.ErrNotStarted) {
			log.Warn().Err(err).Msg("Gave up waiting for session revalidation")
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown")
		}
	}
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(globals *Globals) error {
	fmt.Fprintf(globals.out(), "profiledir %s\n", globals.Version)
	return nil
}
