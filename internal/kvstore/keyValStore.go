// Package kvstore is the transactional key-value layer under the ledger.
// Every read runs in a badger read-only transaction and every write in a
// read-write transaction, so callers never observe half-applied updates.
package kvstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrKeyNotFound is returned by Txn.Get for absent keys.
var ErrKeyNotFound = errors.New("kvstore: key not found")

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	InMemory         bool     // no files are written; used by tests and ephemeral ledgers
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Paths[0])
		opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	}
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	config.Logger.WithFields(logrus.Fields{
		"inMemory": config.InMemory,
		"paths":    config.Paths,
	}).Debug("key value store opened")

	return &KeyValStore{
		config:   config,
		log:      config.Logger,
		badgerDB: db,
	}, nil
}

// View runs fn in a read-only transaction.
func (k *KeyValStore) View(fn func(txn *Txn) error) error {
	return k.badgerDB.View(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn, store: k})
	})
}

// Update runs fn in a read-write transaction. Nothing fn wrote is
// visible to anyone if fn or the commit fails.
func (k *KeyValStore) Update(fn func(txn *Txn) error) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn, store: k})
	})
	if err != nil && errors.Is(err, badger.ErrConflict) {
		k.log.WithError(err).Warn("transaction conflict")
	}
	return err
}

// Counters returns the number of reads and writes since the last call
// and resets them.
func (k *KeyValStore) Counters() (reads, writes uint64) {
	return atomic.SwapUint64(&k.readCounter, 0), atomic.SwapUint64(&k.writeCounter, 0)
}

// Backup streams every live key to w in badger's backup format.
func (k *KeyValStore) Backup(w io.Writer) error {
	_, err := k.badgerDB.Backup(w, 0)
	return err
}

// Load replays a stream produced by Backup.
func (k *KeyValStore) Load(r io.Reader) error {
	return k.badgerDB.Load(r, 256)
}

// IsEmpty reports whether the store holds no keys at all.
func (k *KeyValStore) IsEmpty() (bool, error) {
	empty := true
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Rewind()
		empty = !it.Valid()
		return nil
	})
	return empty, err
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		k.log.WithError(err).Warn("clean before close failed")
	}
	return k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}

	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = k.badgerDB.Flatten(runtime.NumCPU()) // The parameter is the number of concurrent compactions
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Debug("DB Flattened")

	// clean badgerDB
	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}

// Txn is a view of the store inside one transaction.
type Txn struct {
	txn   *badger.Txn
	store *KeyValStore
}

func (t *Txn) Get(key []byte) ([]byte, error) {
	atomic.AddUint64(&t.store.readCounter, 1)
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *Txn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *Txn) Set(key []byte, value []byte) error {
	atomic.AddUint64(&t.store.writeCounter, 1)
	return t.txn.Set(key, value)
}

// NextSequence increments the big-endian counter stored at key and
// returns the new value. The first call returns 1.
func (t *Txn) NextSequence(key []byte) (uint64, error) {
	var current uint64
	raw, err := t.Get(key)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return 0, err
	case len(raw) != 8:
		return 0, fmt.Errorf("corrupt sequence %q", key)
	default:
		current = binary.BigEndian.Uint64(raw)
	}
	next := current + 1
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := t.Set(key, buf[:]); err != nil {
		return 0, err
	}
	return next, nil
}

// Iterate calls fn for every key with the given prefix in key order.
// Returning an error from fn stops the iteration.
func (t *Txn) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	atomic.AddUint64(&t.store.readCounter, 1)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), v); err != nil {
			return err
		}
	}
	return nil
}

// IterateKeys is Iterate without loading values.
func (t *Txn) IterateKeys(prefix []byte, fn func(key []byte) error) error {
	atomic.AddUint64(&t.store.readCounter, 1)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := fn(it.Item().KeyCopy(nil)); err != nil {
			return err
		}
	}
	return nil
}

// CountPrefix returns the number of keys with the given prefix.
func (t *Txn) CountPrefix(prefix []byte) (int, error) {
	n := 0
	err := t.IterateKeys(prefix, func([]byte) error {
		n++
		return nil
	})
	return n, err
}
