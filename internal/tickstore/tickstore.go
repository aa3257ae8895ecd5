// Package tickstore persists the last tick per symbol so a restarted
// bridge can serve last-known quotes before the first sampling pass.
// Entries keep their original timestamps; staleness is visible to the
// consumer.
package tickstore

import (
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wingzero/mt5bridge/internal/domain"
)

var log = logrus.WithField("component", "tickstore")

var keyPrefix = []byte("tick:")

// Store is a badger-backed last-value cache keyed by symbol.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store under dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open tickstore")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes the tick for its symbol, replacing any previous value.
func (s *Store) Put(tick domain.MarketTick) error {
	b, err := json.Marshal(tick)
	if err != nil {
		return errors.Wrap(err, "marshal tick")
	}
	key := append(append([]byte{}, keyPrefix...), tick.Symbol...)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, b)
	})
}

// All returns every stored tick. Unreadable entries are skipped with a
// warning rather than failing the whole load.
func (s *Store) All() ([]domain.MarketTick, error) {
	var out []domain.MarketTick
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var tick domain.MarketTick
				if err := json.Unmarshal(val, &tick); err != nil {
					log.Warnf("skipping corrupt tick entry %s: %v", it.Item().Key(), err)
					return nil
				}
				out = append(out, tick)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan tickstore")
	}
	return out, nil
}
