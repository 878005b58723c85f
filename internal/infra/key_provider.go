package infra

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/onelife/shieldd/internal/domain"
)

const (
	keyFileName = ".store_key"
	keySize     = 32 // 256-bit SQLCipher passphrase
)

// FileKeyProvider keeps the store encryption key in a hidden,
// hex-encoded file next to the state files. All three processes read
// the same key file, so the write goes through a temp file and rename
// like every other shared record in the data directory.
type FileKeyProvider struct {
	path string
}

func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{path: filepath.Join(dataDir, keyFileName)}
}

var _ domain.KeyProvider = (*FileKeyProvider)(nil)

func (p *FileKeyProvider) GetKey() ([]byte, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := hex.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("malformed key file %s: %w", p.path, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("key file %s holds %d bytes, want %d", p.path, len(key), keySize)
	}
	return key, nil
}

func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("key is %d bytes, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp.%d", p.path, os.Getpid())
	if err := os.WriteFile(tmp, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit key file: %w", err)
	}
	return nil
}

func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

// EnsureKey returns the stored key, minting and persisting a fresh
// random one on first use.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}
