// Package store persists the small amount of client state that must
// survive a restart, in pebble. Today that is the nonce replay window: a
// process restarted milliseconds after a crash must not reissue a nonce
// the exchange has already seen.
package store

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	json "github.com/goccy/go-json"
)

type NonceStore struct {
	db *pebble.DB
}

func OpenNonceStore(path string) (*NonceStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open nonce store: %w", err)
	}
	return &NonceStore{db: db}, nil
}

func (s *NonceStore) Close() error { return s.db.Close() }

// keys: n:last (8-byte BE), n:recent (JSON array, insertion order)
func kLast() []byte   { return []byte("n:last") }
func kRecent() []byte { return []byte("n:recent") }

// Save writes the last issued nonce and the replay window atomically.
// Synced: a crash between issuing a nonce and persisting it is the exact
// failure this store exists to close.
func (s *NonceStore) Save(last int64, recent []int64) error {
	var lastBuf [8]byte
	binary.BigEndian.PutUint64(lastBuf[:], uint64(last))

	recentBuf, err := json.Marshal(recent)
	if err != nil {
		return fmt.Errorf("encode nonce window: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(kLast(), lastBuf[:], nil); err != nil {
		return fmt.Errorf("stage last nonce: %w", err)
	}
	if err := batch.Set(kRecent(), recentBuf, nil); err != nil {
		return fmt.Errorf("stage nonce window: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit nonce state: %w", err)
	}
	return nil
}

// Load returns the persisted nonce state. A fresh store returns zero
// values and no error.
func (s *NonceStore) Load() (last int64, recent []int64, err error) {
	val, closer, err := s.db.Get(kLast())
	if err == pebble.ErrNotFound {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("load last nonce: %w", err)
	}
	if len(val) == 8 {
		last = int64(binary.BigEndian.Uint64(val))
	}
	closer.Close()

	val, closer, err = s.db.Get(kRecent())
	if err == pebble.ErrNotFound {
		return last, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("load nonce window: %w", err)
	}
	defer closer.Close()
	if err := json.Unmarshal(val, &recent); err != nil {
		return 0, nil, fmt.Errorf("decode nonce window: %w", err)
	}
	return last, recent, nil
}
