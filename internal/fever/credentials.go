// Package fever implements the legacy Fever sync protocol on top of
// the content store, for third-party RSS client apps.
package fever

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"kestrel/reader/internal/storage"
)

const (
	settingUsername    = "fever_username"
	settingAppPassword = "fever_app_password"

	appPasswordBytes = 16
)

// localUserID identifies the single local account every valid api key
// resolves to.
const localUserID int64 = 1

// Credentials is the current state of the protocol credential: the
// username, the application-scoped password (distinct from and weaker
// than the primary login), and the api key clients derive from them.
type Credentials struct {
	Username    string `json:"username"`
	AppPassword string `json:"app_password"`
	APIKey      string `json:"api_key"`
}

// CredentialStore derives and verifies the protocol's api key. The key
// is the protocol-mandated md5 of "username:app_password"; it is
// recomputed for every verification and never persisted. The md5
// formula is fixed by client interoperability, which is why the
// endpoint must only ever be exposed over TLS.
type CredentialStore struct {
	repo            storage.Repository
	defaultUsername string
}

// NewCredentialStore creates a credential store over the settings
// table. defaultUsername seeds the username half on first use.
func NewCredentialStore(repo storage.Repository, defaultUsername string) *CredentialStore {
	return &CredentialStore{repo: repo, defaultUsername: defaultUsername}
}

// APIKey computes the wire api key for a username/app-password pair.
func APIKey(username, appPassword string) string {
	sum := md5.Sum([]byte(username + ":" + appPassword))
	return hex.EncodeToString(sum[:])
}

// Ensure returns the current credentials, provisioning the username
// and generating an app password the first time the compatibility
// layer is used.
func (s *CredentialStore) Ensure(ctx context.Context) (Credentials, error) {
	username, err := s.repo.Setting(ctx, settingUsername)
	if err != nil {
		return Credentials{}, err
	}
	if username == "" {
		username = s.defaultUsername
		if err := s.repo.SetSetting(ctx, settingUsername, username); err != nil {
			return Credentials{}, err
		}
	}

	appPassword, err := s.repo.Setting(ctx, settingAppPassword)
	if err != nil {
		return Credentials{}, err
	}
	if appPassword == "" {
		appPassword, err = s.rotate(ctx)
		if err != nil {
			return Credentials{}, err
		}
	}

	return Credentials{
		Username:    username,
		AppPassword: appPassword,
		APIKey:      APIKey(username, appPassword),
	}, nil
}

// Reset regenerates the app password, immediately invalidating every
// previously issued api key. It is reachable only through the admin
// surface, never through the protocol endpoint itself.
func (s *CredentialStore) Reset(ctx context.Context) (Credentials, error) {
	if _, err := s.rotate(ctx); err != nil {
		return Credentials{}, err
	}
	return s.Ensure(ctx)
}

func (s *CredentialStore) rotate(ctx context.Context) (string, error) {
	buf := make([]byte, appPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate app password: %w", err)
	}
	appPassword := hex.EncodeToString(buf)
	if err := s.repo.SetSetting(ctx, settingAppPassword, appPassword); err != nil {
		return "", err
	}
	return appPassword, nil
}

// Verify checks a raw api key from a request against the expected
// digest. It returns the local identity on a match and false
// otherwise; a missing or empty key never matches, and store failures
// are treated as a non-match rather than surfaced.
func (s *CredentialStore) Verify(ctx context.Context, rawKey string) (int64, bool) {
	key := strings.ToLower(strings.TrimSpace(rawKey))
	if key == "" {
		return 0, false
	}

	creds, err := s.Ensure(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cannot load sync credentials, rejecting api key")
		return 0, false
	}

	if creds.APIKey != key {
		return 0, false
	}
	return localUserID, true
}
