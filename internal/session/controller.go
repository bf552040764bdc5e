// Package session owns the authenticated session of one process.
//
// A Controller is built once and handed to whatever needs the current user.
// Only the controller writes session state or the persisted credential
// bundle; consumers read copies through Session or Subscribe.
//
// On Start the controller reconciles the persisted bundle with the server
// once: it publishes the cached user straight away when there is one, then
// replaces it with what the server says. Login, Logout and UpdateUser bump a
// generation counter, and a reconciliation whose generation is no longer
// current is dropped without touching state or storage.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/profiledir/internal/credentials"
	"github.com/wolfeidau/profiledir/internal/identity"
	"github.com/wolfeidau/profiledir/internal/models"
	"github.com/wolfeidau/profiledir/internal/telemetry"
)

var (
	// ErrNotStarted is returned by mutations made before Start.
	ErrNotStarted = errors.New("session not started")

	errSuperseded = errors.New("reconciliation superseded")
)

// Reconciliation outcomes, used in logs and metrics.
const (
	outcomeNoToken      = "no_token"
	outcomeFresh        = "fresh"
	outcomeUnauthorized = "unauthorized"
	outcomeStale        = "stale"
	outcomeUnreachable  = "unreachable"
	outcomeDiscarded    = "discarded"
)

// CurrentUserFetcher revalidates an access token against the server.
// It must return an error matching identity.ErrUnauthorized when the token is
// refused; any other error is treated as the server being unreachable.
type CurrentUserFetcher interface {
	FetchCurrentUser(ctx context.Context, accessToken string) (*models.User, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for session events.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRetry retries revalidation up to maxTries times when the server is
// unreachable and there is no cached user to fall back on. A refused token is
// never retried. maxTries <= 1 disables retries.
func WithRetry(maxTries uint, initialInterval time.Duration) Option {
	return func(c *Controller) {
		c.retryTries = maxTries
		c.retryInterval = initialInterval
	}
}

// Controller reconciles, holds and publishes the session.
type Controller struct {
	store   *credentials.Store
	fetcher CurrentUserFetcher
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	retryTries    uint
	retryInterval time.Duration

	done chan struct{}

	mu          sync.Mutex
	state       models.Session
	generation  uint64
	subscribers map[int]chan models.Session
	nextSubID   int
}

// New creates a controller over the persisted store, revalidating with fetcher.
func New(store *credentials.Store, fetcher CurrentUserFetcher, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		fetcher:       fetcher,
		logger:        zerolog.Nop(),
		metrics:       telemetry.GetMetrics(),
		retryInterval: 500 * time.Millisecond,
		done:          make(chan struct{}),
		subscribers:   make(map[int]chan models.Session),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start runs reconciliation. Only the first call does anything; later calls
// return nil. It returns once the persisted state has been read and any cached
// user published; revalidation with the server continues in the background
// and can be awaited with Wait.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()

	if c.state.Status != models.StatusUninitialized {
		c.mu.Unlock()
		return nil
	}

	c.state.Status = models.StatusResolving
	c.publishLocked(ctx, "reconciliation_started")
	generation := c.generation

	c.logger.Info().Uint64("generation", generation).Msg("reconciliation started")

	token, ok := c.store.AccessToken()
	if !ok {
		c.state = models.Session{Status: models.StatusResolved}
		c.publishLocked(ctx, "reconciliation_resolved")
		c.mu.Unlock()

		c.finish(ctx, outcomeNoToken)
		close(c.done)
		return nil
	}

	cached, hasCached := c.store.User()
	if hasCached {
		c.state = models.Session{User: cached, Status: models.StatusResolved, Stale: true}
		c.publishLocked(ctx, "speculative")

		c.logger.Debug().
			Str("username", cached.Username).
			Str("fingerprint", credentials.Fingerprint(token)).
			Msg("session published speculatively")
	}

	c.mu.Unlock()

	// Revalidation is not cancelled with the caller; it always completes.
	go c.revalidate(context.WithoutCancel(ctx), generation, token, hasCached)

	return nil
}

// Done is closed when reconciliation has finished, applied or discarded.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until reconciliation has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	started := c.state.Status != models.StatusUninitialized
	c.mu.Unlock()

	if !started {
		return ErrNotStarted
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session returns a copy of the current session.
func (c *Controller) Session() models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// AccessToken returns the persisted access token, if any.
func (c *Controller) AccessToken() (string, bool) {
	return c.store.AccessToken()
}

// Subscribe returns a channel that always holds the latest session. An unread
// value is replaced when a newer one is published, so a slow reader only ever
// sees the most recent state. The current session is delivered immediately.
// The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan models.Session, func()) {
	ch := make(chan models.Session, 1)

	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	ch <- c.state.Clone()
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subscribers, id)
			close(ch)
		})
	}

	return ch, cancel
}

// Login persists a freshly issued bundle and publishes its user. The bundle
// comes from a successful identity login; no request is made here.
func (c *Controller) Login(ctx context.Context, bundle models.CredentialBundle) error {
	if bundle.User == nil {
		return credentials.ErrNilUser
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status == models.StatusUninitialized {
		return ErrNotStarted
	}

	c.generation++

	if err := c.store.SaveBundle(bundle); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist credentials")
	}

	c.state = models.Session{User: bundle.User.Clone(), Status: models.StatusResolved}
	c.publishLocked(ctx, "login")

	c.logger.Info().
		Str("username", bundle.User.Username).
		Str("fingerprint", credentials.Fingerprint(bundle.AccessToken)).
		Msg("login")

	return nil
}

// Logout clears the persisted bundle and publishes an unauthenticated session.
// It is safe to call repeatedly.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status == models.StatusUninitialized {
		return ErrNotStarted
	}

	c.generation++

	if err := c.store.Clear(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear credentials")
	}

	c.state = models.Session{Status: models.StatusResolved}
	c.publishLocked(ctx, "logout")

	c.logger.Info().Msg("logout")

	return nil
}

// UpdateUser replaces the user snapshot after a profile edit. Tokens are left as they are.
func (c *Controller) UpdateUser(ctx context.Context, user models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status == models.StatusUninitialized {
		return ErrNotStarted
	}

	c.generation++

	if err := c.store.SaveUser(&user); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist user")
	}

	c.state = models.Session{User: user.Clone(), Status: models.StatusResolved}
	c.publishLocked(ctx, "user_updated")

	c.logger.Info().Str("username", user.Username).Msg("user updated")

	return nil
}

func (c *Controller) revalidate(ctx context.Context, generation uint64, token string, hasCached bool) {
	defer close(c.done)

	user, err := c.fetch(ctx, generation, token, hasCached)
	if err == nil && user == nil {
		err = identity.ErrUnreachable
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.logger.Debug().
			Uint64("generation", generation).
			Uint64("current", c.generation).
			Msg("reconciliation discarded")
		c.finish(ctx, outcomeDiscarded)
		return
	}

	var outcome string

	switch {
	case err == nil:
		if err := c.store.SaveUser(user); err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist user")
		}
		c.state = models.Session{User: user.Clone(), Status: models.StatusResolved}
		c.publishLocked(ctx, "reconciliation_resolved")
		outcome = outcomeFresh

	case errors.Is(err, identity.ErrUnauthorized):
		c.clearLocked()
		c.state = models.Session{Status: models.StatusResolved}
		c.publishLocked(ctx, "reconciliation_resolved")
		outcome = outcomeUnauthorized

	case hasCached:
		// keep the speculative session as the final one
		outcome = outcomeStale

	default:
		c.clearLocked()
		c.state = models.Session{Status: models.StatusResolved}
		c.publishLocked(ctx, "reconciliation_resolved")
		outcome = outcomeUnreachable
	}

	if err != nil {
		c.logger.Info().Err(err).Str("outcome", outcome).Msg("reconciliation failed")
	}

	c.finish(ctx, outcome)
}

// fetch calls the server, retrying only when configured and no cached user
// exists. Nothing is sent once a mutation has superseded the generation.
func (c *Controller) fetch(ctx context.Context, generation uint64, token string, hasCached bool) (*models.User, error) {
	if !c.isCurrent(generation) {
		return nil, errSuperseded
	}

	if hasCached || c.retryTries <= 1 {
		return c.fetcher.FetchCurrentUser(ctx, token)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval

	return backoff.Retry(ctx, func() (*models.User, error) {
		if !c.isCurrent(generation) {
			return nil, backoff.Permanent(errSuperseded)
		}
		user, err := c.fetcher.FetchCurrentUser(ctx, token)
		if errors.Is(err, identity.ErrUnauthorized) {
			return nil, backoff.Permanent(err)
		}
		return user, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.retryTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug().Err(err).Dur("next", next).Msg("retrying revalidation")
		}),
	)
}

func (c *Controller) isCurrent(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation == c.generation
}

func (c *Controller) clearLocked() {
	if err := c.store.Clear(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear credentials")
	}
}

func (c *Controller) finish(ctx context.Context, outcome string) {
	c.metrics.RecordReconciliation(ctx, outcome)
	c.logger.Info().Str("outcome", outcome).Msg("reconciliation resolved")
}

// publishLocked delivers the current state to every subscriber, replacing any
// value they have not read yet. c.mu must be held.
func (c *Controller) publishLocked(ctx context.Context, event string) {
	c.metrics.RecordTransition(ctx, event)

	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- c.state.Clone()
	}
}
