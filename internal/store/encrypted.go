package store

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"
	"go.uber.org/zap"
)

const stateDBName = "state.db"

// encryptedBackend stores the key-value records in a SQLCipher encrypted
// SQLite database. Each set is a single-row upsert; callers still get no
// multi-key transactions, matching the store contract.
type encryptedBackend struct {
	db *sql.DB
}

// NewEncryptedStore opens (or creates) an encrypted state store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, stateDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return newStore(&encryptedBackend{db: db}, logger), nil
}

func (e *encryptedBackend) get(key string) ([]byte, bool) {
	var value []byte
	err := e.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return nil, false
	}
	return value, true
}

func (e *encryptedBackend) set(key string, value []byte) error {
	_, err := e.db.Exec(`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	return err
}

func (e *encryptedBackend) delete(key string) error {
	_, err := e.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// flush is a no-op: SQLite writes are durable at statement commit.
func (e *encryptedBackend) flush() error {
	return nil
}

// Close closes the database handle.
func (e *encryptedBackend) Close() error {
	return e.db.Close()
}
