// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"filippo.io/age"
	"github.com/zeebo/blake3"

	"github.com/lux-foundation/lux/lib/clock"
)

const (
	// tokenFile and identityFile are the fixed names under the state
	// directory. The .lux suffix marks them as opaque to other tools.
	tokenFile    = "token.lux"
	identityFile = "install_id.lux"

	// scryptWorkFactor is the age scrypt cost exponent for the token
	// file. Lower than age's default because the store decrypts on
	// every cold start and the passphrase is machine-derived high-
	// entropy material, not a human password.
	scryptWorkFactor = 15
)

// record is the plaintext payload sealed into the token file.
type record struct {
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"`
	DeviceID  string `json:"deviceId"`
}

// StoreConfig holds configuration for creating a Store.
type StoreConfig struct {
	// Dir is the state directory holding the token and install
	// identity files.
	Dir string

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Clock provides timestamps. If nil, clock.Real() is used.
	Clock clock.Clock

	// Hostname reports the current device name. If nil, os.Hostname
	// is used. Tests inject this to simulate a foreign device.
	Hostname func() (string, error)
}

// Store persists one session credential, encrypted against this
// installation's derived device key. Safe for concurrent use.
type Store struct {
	tokenPath    string
	identityPath string
	logger       *slog.Logger
	clock        clock.Clock
	hostname     func() (string, error)

	mu     sync.Mutex
	cached string
}

// NewStore creates a credential store rooted at config.Dir. The
// directory must exist.
func NewStore(config StoreConfig) (*Store, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("credential: Dir is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeSource := config.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	hostname := config.Hostname
	if hostname == nil {
		hostname = os.Hostname
	}

	return &Store{
		tokenPath:    filepath.Join(config.Dir, tokenFile),
		identityPath: filepath.Join(config.Dir, identityFile),
		logger:       logger,
		clock:        timeSource,
		hostname:     hostname,
	}, nil
}

// Save seals the token into the credential file and caches it in
// memory.
func (s *Store) Save(token string) error {
	if token == "" {
		return fmt.Errorf("credential: refusing to save an empty token")
	}

	host, err := s.hostname()
	if err != nil {
		return fmt.Errorf("credential: resolving hostname: %w", err)
	}

	plaintext, err := json.Marshal(record{
		Token:     token,
		Timestamp: s.clock.Now().Unix(),
		DeviceID:  host,
	})
	if err != nil {
		return fmt.Errorf("credential: encoding record: %w", err)
	}

	passphrase, err := s.deviceKey(host)
	if err != nil {
		return fmt.Errorf("credential: deriving device key: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("credential: creating recipient: %w", err)
	}
	recipient.SetWorkFactor(scryptWorkFactor)

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return fmt.Errorf("credential: starting encryption: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return fmt.Errorf("credential: encrypting record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("credential: finalizing encryption: %w", err)
	}

	if err := os.WriteFile(s.tokenPath, ciphertext.Bytes(), 0600); err != nil {
		return fmt.Errorf("credential: writing %s: %w", s.tokenPath, err)
	}

	s.mu.Lock()
	s.cached = token
	s.mu.Unlock()

	s.logger.Info("credential saved", "device_id", host)
	return nil
}

// Load returns the session token, or the empty string when no valid
// credential exists. It never returns an error: a missing file, a
// decryption failure (foreign device key), or a record that fails
// validation all read as "no credential", and any stale persisted
// state is removed on the way out.
func (s *Store) Load() string {
	s.mu.Lock()
	if s.cached != "" {
		token := s.cached
		s.mu.Unlock()
		return token
	}
	s.mu.Unlock()

	host, err := s.hostname()
	if err != nil {
		s.logger.Warn("credential load: resolving hostname", "error", err)
		return ""
	}

	ciphertext, err := os.ReadFile(s.tokenPath)
	if err != nil {
		// Missing file is the common "not logged in" case — not worth
		// a log line.
		return ""
	}

	stored, err := s.decrypt(ciphertext, host)
	if err != nil {
		s.logger.Warn("credential load: discarding unreadable token file", "error", err)
		s.Clear()
		return ""
	}

	if stored.Token == "" || stored.Timestamp == 0 || stored.DeviceID != host {
		s.logger.Warn("credential load: discarding invalid record",
			"device_id", stored.DeviceID,
			"expected_device_id", host,
		)
		s.Clear()
		return ""
	}

	s.mu.Lock()
	s.cached = stored.Token
	s.mu.Unlock()
	return stored.Token
}

// Current returns the in-memory cached token without touching disk.
func (s *Store) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached
}

// Clear drops the in-memory cache and deletes the persisted file.
// Deleting an already-absent file is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.cached = ""
	s.mu.Unlock()

	if err := os.Remove(s.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credential: removing %s: %w", s.tokenPath, err)
	}
	return nil
}

// decrypt opens the sealed record with the device key derived for
// host. Any tampering or a foreign device key fails here — age
// ciphertexts are authenticated.
func (s *Store) decrypt(ciphertext []byte, host string) (*record, error) {
	passphrase, err := s.deviceKey(host)
	if err != nil {
		return nil, fmt.Errorf("deriving device key: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating identity: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}

	var stored record
	if err := json.Unmarshal(plaintext, &stored); err != nil {
		return nil, fmt.Errorf("parsing record: %w", err)
	}
	return &stored, nil
}

// deviceKey derives the encryption passphrase from the install
// identity plus host characteristics. The BLAKE3 digest binds the
// credential file to this specific installation: same install id,
// hostname, OS, and architecture, or the file does not open.
func (s *Store) deviceKey(host string) (string, error) {
	installID, err := loadOrCreateInstallID(s.identityPath)
	if err != nil {
		return "", err
	}

	hasher := blake3.New()
	for _, component := range []string{installID, host, runtime.GOOS, runtime.GOARCH} {
		hasher.Write([]byte(component))
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
