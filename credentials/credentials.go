// Package credentials provides secure session storage for the minutes CLI.
// The server identifies a logged-in user by a session cookie; this package
// keeps that cookie in ~/.minutes/credentials.yaml, encrypted at rest, so the
// session survives between invocations.
//
// Encryption Key Storage:
// The encryption key is stored in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// For CI/testing environments, set MINUTES_ENCRYPTION_KEY to a 64-character
// hex string (32 bytes). Without a keyring, MINUTES_PASSPHRASE derives the key.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential storage constants.
const (
	DefaultCredentialsDir  = ".minutes"
	DefaultCredentialsFile = "credentials.yaml"

	// DefaultCookieName is the session cookie set by the server on login.
	DefaultCookieName = "session_id"

	// EnvSessionID overrides the stored session (scripts and CI).
	EnvSessionID = "MINUTES_SESSION_ID"
)

// Common errors.
var (
	// ErrNoCredentials is returned when no session is stored.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrExpiredSession is returned when the stored session has expired.
	ErrExpiredSession = errors.New("stored session has expired")
	// ErrEncryptionFailed is returned when encryption/decryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
)

// Credentials holds a stored session.
type Credentials struct {
	// ServerURL is the server this session belongs to.
	ServerURL string `yaml:"server_url"`
	// CookieName is the name of the session cookie.
	CookieName string `yaml:"cookie_name"`
	// SessionID is the session cookie value (encrypted at rest).
	SessionID string `yaml:"session_id"`
	// Username of the logged-in user.
	Username string `yaml:"username,omitempty"`
	// Email of the logged-in user.
	Email string `yaml:"email,omitempty"`
	// ExpiresAt is the cookie expiry reported by the server.
	ExpiresAt time.Time `yaml:"expires_at,omitempty"`
	// LastUpdated is when the credentials were last written.
	LastUpdated time.Time `yaml:"last_updated"`
}

// Expired reports whether the session has a known expiry in the past.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Store manages credential storage operations.
type Store struct {
	credentialsDir string
	encryptionKey  []byte
	keyProvider    KeyProvider
}

// NewStore creates a new credential store with the default key provider.
func NewStore() (*Store, error) {
	keyProvider, err := GetDefaultKeyProvider()
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}
	return NewStoreWithKeyProvider(keyProvider)
}

// NewStoreWithKeyProvider creates a new credential store with a custom key provider.
func NewStoreWithKeyProvider(keyProvider KeyProvider) (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}

	key, err := keyProvider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}

	return &Store{
		credentialsDir: dir,
		encryptionKey:  key,
		keyProvider:    keyProvider,
	}, nil
}

// KeyDescription describes where the encryption key lives.
func (s *Store) KeyDescription() string {
	return s.keyProvider.Description()
}

// CredentialsDir returns the credentials directory path.
// Uses $MINUTES_CONFIG_DIR if set, otherwise ~/.minutes
func CredentialsDir() (string, error) {
	if dir := os.Getenv("MINUTES_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultCredentialsDir), nil
}

// CredentialsPath returns the full path to the credentials file.
func CredentialsPath() (string, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultCredentialsFile), nil
}

// Save stores credentials to the credentials file.
func (s *Store) Save(creds *Credentials) error {
	if err := os.MkdirAll(s.credentialsDir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	storageCreds := *creds
	storageCreds.LastUpdated = time.Now()
	if storageCreds.CookieName == "" {
		storageCreds.CookieName = DefaultCookieName
	}

	if storageCreds.SessionID != "" {
		encrypted, err := s.encrypt(storageCreds.SessionID)
		if err != nil {
			return fmt.Errorf("encrypting session: %w", err)
		}
		storageCreds.SessionID = encrypted
	}

	data, err := yaml.Marshal(&storageCreds)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	credPath := filepath.Join(s.credentialsDir, DefaultCredentialsFile)
	if err := os.WriteFile(credPath, data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}

	return nil
}

// Load reads credentials from the credentials file.
func (s *Store) Load() (*Credentials, error) {
	credPath := filepath.Join(s.credentialsDir, DefaultCredentialsFile)

	data, err := os.ReadFile(credPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.SessionID != "" {
		decrypted, err := s.decrypt(creds.SessionID)
		if err != nil {
			return nil, fmt.Errorf("decrypting session: %w", err)
		}
		creds.SessionID = decrypted
	}

	return &creds, nil
}

// Delete removes stored credentials.
func (s *Store) Delete() error {
	credPath := filepath.Join(s.credentialsDir, DefaultCredentialsFile)

	if err := os.Remove(credPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("removing credentials file: %w", err)
	}

	return nil
}

// Exists checks if credentials file exists.
func (s *Store) Exists() bool {
	credPath := filepath.Join(s.credentialsDir, DefaultCredentialsFile)
	_, err := os.Stat(credPath)
	return err == nil
}

// encrypt encrypts a string using AES-GCM.
func (s *Store) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts an AES-GCM encrypted string.
func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding base64: %v", ErrEncryptionFailed, err)
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrEncryptionFailed)
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed: %v", ErrEncryptionFailed, err)
	}

	return string(plaintext), nil
}

// GetActiveCredential returns the session to use for serverURL.
// MINUTES_SESSION_ID wins over the stored file. A stored session for a
// different server is treated as absent.
func (s *Store) GetActiveCredential(serverURL string) (*Credentials, error) {
	if sessionID := os.Getenv(EnvSessionID); sessionID != "" {
		return &Credentials{
			ServerURL:  serverURL,
			CookieName: DefaultCookieName,
			SessionID:  sessionID,
		}, nil
	}

	creds, err := s.Load()
	if err != nil {
		return nil, err
	}

	if serverURL != "" && creds.ServerURL != "" && strings.TrimRight(creds.ServerURL, "/") != strings.TrimRight(serverURL, "/") {
		return nil, ErrNoCredentials
	}

	if creds.Expired(time.Now()) {
		return nil, ErrExpiredSession
	}

	return creds, nil
}

// MaskToken returns a masked session id with first/last few characters visible.
func MaskToken(token string) string {
	if len(token) <= 20 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..." + token[len(token)-8:]
}

// FormatExpiry formats the expiry time for display.
func FormatExpiry(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "never"
	}

	remaining := time.Until(expiresAt)
	if remaining < 0 {
		return "expired"
	}

	if remaining < time.Hour {
		return fmt.Sprintf("%d minutes", int(remaining.Minutes()))
	}
	if remaining < 24*time.Hour {
		return fmt.Sprintf("%d hours", int(remaining.Hours()))
	}
	return fmt.Sprintf("%d days", int(remaining.Hours()/24))
}
