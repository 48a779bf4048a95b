package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
)

const (
	// EnvAgeKey holds a raw AGE-SECRET-KEY-1... identity.
	EnvAgeKey = "MAILCMD_AGE_KEY"

	// EnvAgeKeyFile holds the path of an age identity file.
	EnvAgeKeyFile = "MAILCMD_AGE_KEY_FILE"

	// DefaultKeyFilename is the identity file name under the config dir.
	DefaultKeyFilename = "age.key"
)

// ErrNoIdentity is returned when an operation needs an identity and none is
// configured.
var ErrNoIdentity = errors.New("secrets: no age identity configured")

// Keyring holds the identities used to open ENC[...] values.
type Keyring struct {
	identities []age.Identity
	source     string
}

// Source describes where the identities came from.
func (k *Keyring) Source() string { return k.source }

// Decrypt opens value with the keyring's identities.
func (k *Keyring) Decrypt(value string) (string, error) {
	if k == nil || len(k.identities) == 0 {
		return "", ErrNoIdentity
	}
	return Decrypt(value, k.identities...)
}

// Recipient returns the public key of the first X25519 identity, so values
// can be encrypted for the local key.
func (k *Keyring) Recipient() (age.Recipient, error) {
	if k == nil {
		return nil, ErrNoIdentity
	}
	for _, id := range k.identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x.Recipient(), nil
		}
	}
	return nil, fmt.Errorf("%w: no X25519 identity in %s", ErrNoIdentity, k.source)
}

// Resolver locates the age identity. Lookup order: EnvAgeKey, EnvAgeKeyFile,
// ConfigPath, then DefaultPath if that file exists.
type Resolver struct {
	Getenv      func(string) string
	ConfigPath  string
	DefaultPath string
}

// DefaultResolver reads the process environment and uses
// ~/.config/mailcmd/age.key as the default file.
func DefaultResolver(configPath string) Resolver {
	return Resolver{
		Getenv:      os.Getenv,
		ConfigPath:  configPath,
		DefaultPath: DefaultKeyPath(),
	}
}

// DefaultKeyPath returns ~/.config/mailcmd/age.key, or "" without a home dir.
func DefaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mailcmd", DefaultKeyFilename)
}

// Resolve returns the configured keyring, or nil and no error when no
// identity is configured anywhere.
func (r Resolver) Resolve() (*Keyring, error) {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if raw := getenv(EnvAgeKey); raw != "" {
		id, err := age.ParseX25519Identity(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvAgeKey, err)
		}
		return &Keyring{identities: []age.Identity{id}, source: EnvAgeKey}, nil
	}
	if path := getenv(EnvAgeKeyFile); path != "" {
		return LoadKeyring(path)
	}
	if r.ConfigPath != "" {
		return LoadKeyring(expandHome(r.ConfigPath))
	}
	if r.DefaultPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(r.DefaultPath); err != nil {
		return nil, nil
	}
	return LoadKeyring(r.DefaultPath)
}

// LoadKeyring reads identities from an age identity file.
func LoadKeyring(path string) (*Keyring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer f.Close()

	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", path, err)
	}
	return &Keyring{identities: ids, source: path}, nil
}

// GenerateKeyFile creates a new X25519 identity at path and returns its
// public key. An existing file is never overwritten.
func GenerateKeyFile(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("key file already exists: %s", path)
	}
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generate identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create key directory: %w", err)
	}
	content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().Format(time.RFC3339), id.Recipient(), id)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write key file: %w", err)
	}
	return id.Recipient().String(), nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
