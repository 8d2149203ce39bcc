// Package keystore caches MIFARE Classic keys found per card, sector and
// key type in an SQLite database.
package keystore

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/barnettlynn/mfctools/pkg/mfclassic"
)

// ErrNotFound is returned by Lookup when no key is stored.
var ErrNotFound = errors.New("key not found")

const schema = `CREATE TABLE IF NOT EXISTS keys (
	uid      TEXT    NOT NULL,
	sector   INTEGER NOT NULL,
	key_type TEXT    NOT NULL,
	key_hex  TEXT    NOT NULL,
	PRIMARY KEY (uid, sector, key_type)
)`

// Store is an open key database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open key store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create key store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func uidString(uid []byte) string {
	return strings.ToUpper(hex.EncodeToString(uid))
}

// Lookup returns the stored key for a sector of the card with uid.
func (s *Store) Lookup(uid []byte, sector int, keyType mfclassic.KeyType) (mfclassic.Key, error) {
	var keyHex string
	err := s.db.QueryRow(
		"SELECT key_hex FROM keys WHERE uid=? AND sector=? AND key_type=?",
		uidString(uid), sector, keyType.String(),
	).Scan(&keyHex)
	if errors.Is(err, sql.ErrNoRows) {
		return mfclassic.Key{}, ErrNotFound
	}
	if err != nil {
		return mfclassic.Key{}, fmt.Errorf("lookup key: %w", err)
	}
	key, err := mfclassic.ParseKey(keyHex)
	if err != nil {
		return mfclassic.Key{}, fmt.Errorf("stored key for %s sector %d: %w", uidString(uid), sector, err)
	}
	return key, nil
}

// Save stores or replaces a key.
func (s *Store) Save(uid []byte, sector int, keyType mfclassic.KeyType, key mfclassic.Key) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO keys (uid, sector, key_type, key_hex) VALUES (?, ?, ?, ?)",
		uidString(uid), sector, keyType.String(), key.String(),
	)
	if err != nil {
		return fmt.Errorf("save key: %w", err)
	}
	return nil
}

// Entry is one stored key.
type Entry struct {
	Sector  int
	KeyType mfclassic.KeyType
	Key     mfclassic.Key
}

// Keys returns every key stored for uid, ordered by sector and key type.
func (s *Store) Keys(uid []byte) ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT sector, key_type, key_hex FROM keys WHERE uid=? ORDER BY sector, key_type",
		uidString(uid),
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			keyType string
			keyHex  string
		)
		if err := rows.Scan(&e.Sector, &keyType, &keyHex); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		if e.KeyType, err = mfclassic.ParseKeyType(keyType); err != nil {
			return nil, err
		}
		if e.Key, err = mfclassic.ParseKey(keyHex); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
