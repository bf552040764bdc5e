package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/profiledir/internal/models"
)

// Keys of the credential bundle.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

var bundleKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// ErrNilUser is returned when a bundle or snapshot write has no user.
var ErrNilUser = errors.New("user is required")

// Store reads and writes the credential bundle through a Storage.
//
// Reads never fail: storage errors are logged and reported as absent, and a
// user snapshot that cannot be decoded is evicted. Writes return errors.
type Store struct {
	storage Storage
}

// NewStore creates a store over storage. A nil storage behaves like NoopStorage.
func NewStore(storage Storage) *Store {
	if storage == nil {
		storage = NoopStorage{}
	}
	return &Store{storage: storage}
}

// AccessToken returns the persisted access token.
func (s *Store) AccessToken() (string, bool) {
	return s.get(KeyAccessToken)
}

// RefreshToken returns the persisted refresh token.
func (s *Store) RefreshToken() (string, bool) {
	return s.get(KeyRefreshToken)
}

// User returns the persisted user snapshot.
func (s *Store) User() (*models.User, bool) {
	raw, ok := s.get(KeyUser)
	if !ok {
		return nil, false
	}

	var user *models.User
	err := json.Unmarshal([]byte(raw), &user)
	if err == nil && (user == nil || user.Username == "") {
		err = errors.New("snapshot has no user")
	}
	if err != nil {
		log.Warn().Err(err).Msg("user snapshot is corrupt, evicting")
		if err := s.storage.Remove(KeyUser); err != nil {
			log.Warn().Err(err).Msg("failed to evict corrupt user snapshot")
		}
		return nil, false
	}

	return user, true
}

// Bundle returns whatever part of the bundle is currently persisted.
func (s *Store) Bundle() models.CredentialBundle {
	access, _ := s.AccessToken()
	refresh, _ := s.RefreshToken()
	user, _ := s.User()
	return models.CredentialBundle{AccessToken: access, RefreshToken: refresh, User: user}
}

// SaveBundle writes both tokens and the user snapshot together.
func (s *Store) SaveBundle(bundle models.CredentialBundle) error {
	if bundle.User == nil {
		return ErrNilUser
	}

	data, err := json.Marshal(bundle.User)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	values := map[string]string{
		KeyAccessToken:  bundle.AccessToken,
		KeyRefreshToken: bundle.RefreshToken,
		KeyUser:         string(data),
	}

	if b, ok := s.storage.(Batcher); ok {
		if err := b.PutAll(values); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}
	} else {
		for _, key := range bundleKeys {
			if err := s.storage.Put(key, values[key]); err != nil {
				return fmt.Errorf("failed to save %s: %w", key, err)
			}
		}
	}

	log.Debug().
		Str("fingerprint", Fingerprint(bundle.AccessToken)).
		Str("username", bundle.User.Username).
		Msg("credentials saved")

	return nil
}

// SaveUser overwrites the user snapshot only.
func (s *Store) SaveUser(user *models.User) error {
	if user == nil {
		return ErrNilUser
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := s.storage.Put(KeyUser, string(data)); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// Clear removes both tokens and the user snapshot together.
func (s *Store) Clear() error {
	if b, ok := s.storage.(Batcher); ok {
		if err := b.RemoveAll(bundleKeys...); err != nil {
			return fmt.Errorf("failed to clear credentials: %w", err)
		}
		return nil
	}

	var errs []error
	for _, key := range bundleKeys {
		if err := s.storage.Remove(key); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) get(key string) (string, bool) {
	value, ok, err := s.storage.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to read credentials, treating as absent")
		return "", false
	}
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
