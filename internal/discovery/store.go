package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	goeen_log "github.com/eencloud/goeen/log"
)

const recordPrefix = "device_"

// Store persists device records across bridge restarts so a sweep's
// knowledge survives a process bounce. It holds at most a few hundred
// tiny values, so badger runs with small files and no maintenance loop.
type Store struct {
	db     *badger.DB
	logger *goeen_log.Logger
}

func OpenStore(dir string, logger *goeen_log.Logger) (*Store, error) {
	if err := cleanupStaleLock(dir, logger); err != nil {
		logger.Warningf("Failed to cleanup potential stale lock: %v", err)
	}

	opts := badger.DefaultOptions(dir).
		WithValueLogFileSize(1 << 20).
		WithMemTableSize(8 << 20).
		WithSyncWrites(false).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Put stores one device record, keyed by address.
func (s *Store) Put(rec DeviceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal device record: %w", err)
	}

	key := []byte(recordPrefix + rec.Address)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to store device record: %w", err)
	}
	return nil
}

// Load returns every persisted device record.
func (s *Store) Load() ([]DeviceRecord, error) {
	var records []DeviceRecord

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var data []byte
			if err := it.Item().Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}

			var rec DeviceRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// cleanupStaleLock removes a leftover badger LOCK file from an
// ungraceful shutdown. Safe on a single-instance data directory; if
// another process really holds it, Open fails anyway.
func cleanupStaleLock(dir string, logger *goeen_log.Logger) error {
	lockFile := filepath.Join(dir, "LOCK")

	if _, err := os.Stat(lockFile); os.IsNotExist(err) {
		return nil
	}

	logger.Infof("Found potential stale lock file, attempting cleanup: %s", lockFile)
	if err := os.Remove(lockFile); err != nil {
		return fmt.Errorf("failed to remove stale lock file: %w", err)
	}
	return nil
}
