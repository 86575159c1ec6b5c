package credentials

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvKeyProvider_GetKey(t *testing.T) {
	envVar := "TEST_MINUTES_ENCRYPTION_KEY"

	t.Run("valid key", func(t *testing.T) {
		t.Setenv(envVar, testEncryptionKey)

		key, err := NewEnvKeyProvider(envVar).GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}
		if len(key) != keyLength {
			t.Errorf("GetKey() returned %d bytes, want %d", len(key), keyLength)
		}
		expectedKey, _ := hex.DecodeString(testEncryptionKey)
		if !bytes.Equal(key, expectedKey) {
			t.Errorf("GetKey() returned wrong key")
		}
	})

	t.Run("missing env var", func(t *testing.T) {
		t.Setenv(envVar, "")
		if _, err := NewEnvKeyProvider(envVar).GetKey(); err == nil {
			t.Error("GetKey() expected error for missing env var")
		}
	})

	t.Run("invalid hex", func(t *testing.T) {
		t.Setenv(envVar, "not-valid-hex")
		if _, err := NewEnvKeyProvider(envVar).GetKey(); err == nil {
			t.Error("GetKey() expected error for invalid hex")
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		t.Setenv(envVar, "0123456789abcdef")
		if _, err := NewEnvKeyProvider(envVar).GetKey(); err == nil {
			t.Error("GetKey() expected error for wrong key length")
		}
	})
}

func TestEnvKeyProvider_ResetKey(t *testing.T) {
	if _, err := NewEnvKeyProvider("TEST_KEY").ResetKey(); err == nil {
		t.Error("ResetKey() expected error for env-based provider")
	}
}

func TestEnvKeyProvider_Description(t *testing.T) {
	desc := NewEnvKeyProvider("MY_CUSTOM_KEY").Description()
	if desc != "Environment variable (MY_CUSTOM_KEY)" {
		t.Errorf("Description() = %q", desc)
	}
}

func TestPassphraseKeyProvider_GetKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	t.Run("deterministic", func(t *testing.T) {
		k1, err := NewPassphraseKeyProvider("correct horse", salt).GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}
		k2, _ := NewPassphraseKeyProvider("correct horse", salt).GetKey()
		if !bytes.Equal(k1, k2) {
			t.Error("same passphrase and salt should derive the same key")
		}
		if len(k1) != keyLength {
			t.Errorf("key length = %d, want %d", len(k1), keyLength)
		}
	})

	t.Run("different passphrase", func(t *testing.T) {
		k1, _ := NewPassphraseKeyProvider("one", salt).GetKey()
		k2, _ := NewPassphraseKeyProvider("two", salt).GetKey()
		if bytes.Equal(k1, k2) {
			t.Error("different passphrases should derive different keys")
		}
	})

	t.Run("missing inputs", func(t *testing.T) {
		if _, err := NewPassphraseKeyProvider("", salt).GetKey(); err == nil {
			t.Error("expected error for empty passphrase")
		}
		if _, err := NewPassphraseKeyProvider("x", nil).GetKey(); err == nil {
			t.Error("expected error for empty salt")
		}
	})

	t.Run("reset returns same key", func(t *testing.T) {
		p := NewPassphraseKeyProvider("x", salt)
		k1, _ := p.GetKey()
		k2, _ := p.ResetKey()
		if !bytes.Equal(k1, k2) {
			t.Error("ResetKey should return the derived key")
		}
	})
}

func TestGenerateSalt(t *testing.T) {
	s1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	s2, _ := GenerateSalt()
	if len(s1) != 16 {
		t.Errorf("salt length = %d, want 16", len(s1))
	}
	if bytes.Equal(s1, s2) {
		t.Error("salts should be random")
	}
}

func TestLoadOrCreateSalt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "creds")

	s1, err := LoadOrCreateSalt(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateSalt() error = %v", err)
	}
	s2, err := LoadOrCreateSalt(dir)
	if err != nil {
		t.Fatalf("second LoadOrCreateSalt() error = %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Error("salt should persist between calls")
	}

	if err := os.WriteFile(filepath.Join(dir, saltFile), []byte("zz"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateSalt(dir); err == nil {
		t.Error("corrupt salt file should error")
	}
}

func TestGetDefaultKeyProvider(t *testing.T) {
	t.Run("env key wins", func(t *testing.T) {
		t.Setenv(EnvEncryptionKey, testEncryptionKey)
		t.Setenv(EnvPassphrase, "ignored")

		p, err := GetDefaultKeyProvider()
		if err != nil {
			t.Fatalf("GetDefaultKeyProvider() error = %v", err)
		}
		if _, ok := p.(*EnvKeyProvider); !ok {
			t.Errorf("provider = %T, want *EnvKeyProvider", p)
		}
	})

	t.Run("passphrase fallback", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("MINUTES_CONFIG_DIR", dir)
		t.Setenv(EnvEncryptionKey, "")
		t.Setenv(EnvPassphrase, "correct horse")

		p, err := GetDefaultKeyProvider()
		if err != nil {
			t.Fatalf("GetDefaultKeyProvider() error = %v", err)
		}
		if _, ok := p.(*PassphraseKeyProvider); !ok {
			t.Errorf("provider = %T, want *PassphraseKeyProvider", p)
		}
		if _, err := os.Stat(filepath.Join(dir, saltFile)); err != nil {
			t.Errorf("salt file not created: %v", err)
		}
	})
}

func TestStore_WithPassphraseProvider(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MINUTES_CONFIG_DIR", dir)

	salt, err := LoadOrCreateSalt(dir)
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewStoreWithKeyProvider(NewPassphraseKeyProvider("pw", salt))
	if err != nil {
		t.Fatalf("NewStoreWithKeyProvider() error = %v", err)
	}
	if store.KeyDescription() != "Passphrase-derived key (Argon2id)" {
		t.Errorf("KeyDescription() = %q", store.KeyDescription())
	}

	if err := store.Save(&Credentials{SessionID: "sid"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.SessionID != "sid" {
		t.Errorf("SessionID = %q", loaded.SessionID)
	}
}
