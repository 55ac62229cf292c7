package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"github.com/dattormm/datto-go/internal/tokensource"
)

// SecretStorageType selects where API credentials are persisted.
type SecretStorageType string

const (
	// SecretStorageEnv reads credentials from config values only (read-only).
	SecretStorageEnv SecretStorageType = "env"
	// SecretStorageFile keeps credentials in a 0600 JSON file.
	SecretStorageFile SecretStorageType = "file"
	// SecretStorageKeyring keeps credentials in the OS keyring.
	SecretStorageKeyring SecretStorageType = "keyring"
)

// keyringService is the keyring service name; the platform is the user.
const keyringService = "datto-go"

// ErrReadOnlyStore is returned when writing to env storage.
var ErrReadOnlyStore = errors.New("env storage is read-only; configure file or keyring storage")

// ErrNoCredentials is returned when no API key and secret are configured.
var ErrNoCredentials = errors.New("no API credentials configured; run 'datto auth login' or set DATTO_API_KEY and DATTO_API_SECRET")

// SecretStore persists API credentials. Writing zero Credentials clears them.
// Read returns zero Credentials and no error when nothing is stored.
type SecretStore interface {
	Read(ctx context.Context) (tokensource.Credentials, error)
	Write(ctx context.Context, creds tokensource.Credentials) error
}

// storedCredentials is the persisted form of tokensource.Credentials.
type storedCredentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

func encodeCredentials(creds tokensource.Credentials) ([]byte, error) {
	return json.Marshal(storedCredentials{APIKey: creds.APIKey, APISecret: creds.APISecret})
}

func decodeCredentials(data []byte) (tokensource.Credentials, error) {
	var stored storedCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return tokensource.Credentials{}, fmt.Errorf("decoding stored credentials: %w", err)
	}
	return tokensource.Credentials{APIKey: stored.APIKey, APISecret: stored.APISecret}, nil
}

// NewSecretStore creates the store selected by Storage. The keyring entry
// is namespaced by platformName so each platform keeps its own pair.
func (c *AuthConfig) NewSecretStore(platformName string) (SecretStore, error) {
	switch c.Storage {
	case SecretStorageEnv:
		return &envStore{creds: tokensource.Credentials{APIKey: c.APIKey, APISecret: c.APISecret}}, nil
	case SecretStorageFile:
		if c.File == "" {
			return nil, errors.New("auth.file is required for file storage")
		}
		return &fileStore{path: c.File}, nil
	case SecretStorageKeyring:
		return &keyringStore{service: keyringService, user: platformName}, nil
	default:
		return nil, fmt.Errorf("unsupported secret storage %q", c.Storage)
	}
}

// Credentials resolves the API key pair. Explicitly configured values win;
// otherwise the pair comes from the configured store.
func (c *Config) Credentials(ctx context.Context) (tokensource.Credentials, error) {
	explicit := tokensource.Credentials{APIKey: c.Auth.APIKey, APISecret: c.Auth.APISecret}
	if !explicit.IsZero() {
		return explicit, nil
	}

	store, err := c.Auth.NewSecretStore(c.platformName())
	if err != nil {
		return tokensource.Credentials{}, err
	}
	creds, err := store.Read(ctx)
	if err != nil {
		return tokensource.Credentials{}, fmt.Errorf("reading %s storage: %w", c.Auth.Storage, err)
	}

	// A key given on the command line pairs with a stored secret
	if c.Auth.APIKey != "" && creds.APIKey != c.Auth.APIKey {
		creds = tokensource.Credentials{}
	}
	if creds.IsZero() {
		return tokensource.Credentials{}, ErrNoCredentials
	}
	return creds, nil
}

type envStore struct {
	creds tokensource.Credentials
}

func (s *envStore) Read(context.Context) (tokensource.Credentials, error) {
	return s.creds, nil
}

func (s *envStore) Write(context.Context, tokensource.Credentials) error {
	return ErrReadOnlyStore
}

type fileStore struct {
	path string
}

func (s *fileStore) Read(context.Context) (tokensource.Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return tokensource.Credentials{}, nil
	}
	if err != nil {
		return tokensource.Credentials{}, err
	}
	return decodeCredentials(data)
}

func (s *fileStore) Write(_ context.Context, creds tokensource.Credentials) error {
	if creds == (tokensource.Credentials{}) {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	data, err := encodeCredentials(creds)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	// Write-then-rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

type keyringStore struct {
	service string
	user    string
}

func (s *keyringStore) Read(context.Context) (tokensource.Credentials, error) {
	secret, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return tokensource.Credentials{}, nil
	}
	if err != nil {
		return tokensource.Credentials{}, err
	}
	return decodeCredentials([]byte(secret))
}

func (s *keyringStore) Write(_ context.Context, creds tokensource.Credentials) error {
	if creds == (tokensource.Credentials{}) {
		if err := keyring.Delete(s.service, s.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return nil
	}

	data, err := encodeCredentials(creds)
	if err != nil {
		return err
	}
	return keyring.Set(s.service, s.user, string(data))
}
