package accounts

import (
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
)

// Key prefixes for BadgerDB storage.
var (
	// prefixAccount is the prefix for account data.
	// Key format: prefixAccount + pubkey (32 bytes)
	prefixAccount = []byte{0x01}

	// prefixMeta is the prefix for metadata.
	prefixMeta = []byte{0x02}

	// metaAccountsCount is the key for storing accounts count.
	metaAccountsCount = append(append([]byte{}, prefixMeta...), []byte("count")...)
)

// BadgerDBConfig contains configuration for BadgerDB.
type BadgerDBConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	// NumCompactors is the number of compaction workers.
	NumCompactors int

	// NumMemtables is the number of memtables.
	NumMemtables int

	// ValueLogFileSize is the size of each value log file.
	ValueLogFileSize int64

	// Logger is an optional logger. Set to nil to disable logging.
	Logger badger.Logger
}

// DefaultBadgerDBConfig returns default configuration.
func DefaultBadgerDBConfig(path string) BadgerDBConfig {
	return BadgerDBConfig{
		Path:             path,
		SyncWrites:       true,
		NumCompactors:    2,
		NumMemtables:     5,
		ValueLogFileSize: 64 << 20,
	}
}

// BadgerDB is a BadgerDB-backed implementation of the accounts database.
//
// Accounts are stored under prefixAccount + pubkey, so key order is pubkey
// order. The account count is kept in memory and persisted in the same
// transaction as the writes that change it.
type BadgerDB struct {
	db *badger.DB

	accountsCount atomic.Uint64

	// mu serializes writers so count bookkeeping stays exact.
	mu sync.Mutex

	closed atomic.Bool
}

// NewBadgerDB creates a new BadgerDB-backed accounts database.
func NewBadgerDB(cfg BadgerDBConfig) (*BadgerDB, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(cfg.Logger)
	if cfg.NumCompactors > 0 {
		opts = opts.WithNumCompactors(cfg.NumCompactors)
	}
	if cfg.NumMemtables > 0 {
		opts = opts.WithNumMemtables(cfg.NumMemtables)
	}
	if cfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}

	bdb := &BadgerDB{db: db}
	if err := bdb.loadMetadata(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "load metadata")
	}

	return bdb, nil
}

func (b *BadgerDB) loadMetadata() error {
	return b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaAccountsCount)
		if err == badger.ErrKeyNotFound {
			b.accountsCount.Store(0)
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return ErrInvalidData
			}
			b.accountsCount.Store(binary.LittleEndian.Uint64(val))
			return nil
		})
	})
}

// accountKey returns the BadgerDB key for an account.
func accountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, 1+types.PubkeySize)
	key[0] = prefixAccount[0]
	copy(key[1:], pubkey[:])
	return key
}

// GetAccount retrieves an account by public key.
func (b *BadgerDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var account *Account
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(pubkey))
		if err == badger.ErrKeyNotFound {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			acc, err := DeserializeAccount(val)
			if err != nil {
				return err
			}
			account = acc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// SetAccount stores an account.
func (b *BadgerDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	return b.CommitBatch(map[types.Pubkey]*Account{pubkey: account})
}

// DeleteAccount removes an account.
func (b *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	return b.CommitBatch(map[types.Pubkey]*Account{pubkey: {}})
}

// CommitBatch writes all updates in one Badger transaction.
func (b *BadgerDB) CommitBatch(updates map[types.Pubkey]*Account) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.accountsCount.Load()
	err := b.db.Update(func(txn *badger.Txn) error {
		for pubkey, account := range updates {
			key := accountKey(pubkey)

			exists := true
			if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
				exists = false
			} else if err != nil {
				return err
			}

			if account.IsZero() {
				if exists {
					if err := txn.Delete(key); err != nil {
						return err
					}
					count--
				}
				continue
			}

			if err := txn.Set(key, account.Serialize()); err != nil {
				return err
			}
			if !exists {
				count++
			}
		}

		countBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(countBuf, count)
		return txn.Set(metaAccountsCount, countBuf)
	})
	if err != nil {
		return errors.Wrap(err, "commit accounts")
	}

	b.accountsCount.Store(count)
	return nil
}

// HasAccount checks if an account exists.
func (b *BadgerDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}

	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(accountKey(pubkey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// AccountsCount returns the total number of accounts.
func (b *BadgerDB) AccountsCount() (uint64, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	return b.accountsCount.Load(), nil
}

// ForEach iterates over all accounts in sorted pubkey order.
func (b *BadgerDB) ForEach(fn func(pubkey types.Pubkey, account *Account) error) error {
	if b.closed.Load() {
		return ErrClosed
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixAccount
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != 1+types.PubkeySize {
				continue
			}
			var pubkey types.Pubkey
			copy(pubkey[:], key[1:])

			err := item.Value(func(val []byte) error {
				account, err := DeserializeAccount(val)
				if err != nil {
					return errors.Wrapf(err, "account %s", pubkey)
				}
				return fn(pubkey, account)
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// restore replaces the database contents with the accounts of a snapshot.
// Snapshots may exceed a single transaction, so they go through a WriteBatch.
// Accounts absent from the snapshot are deleted after it has been read.
func (b *BadgerDB) restore(reader *SnapshotReader) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.accountKeysLocked()
	if err != nil {
		return errors.Wrap(err, "list accounts")
	}

	batch := b.db.NewWriteBatch()
	var count uint64
	for {
		pubkey, account, err := reader.ReadAccount()
		if err == io.EOF {
			break
		}
		if err != nil {
			batch.Cancel()
			return err
		}
		if account.IsZero() {
			continue
		}
		key := accountKey(pubkey)
		if err := batch.Set(key, account.Serialize()); err != nil {
			batch.Cancel()
			return errors.Wrap(err, "write account")
		}
		delete(existing, string(key))
		count++
	}

	for key := range existing {
		if err := batch.Delete([]byte(key)); err != nil {
			batch.Cancel()
			return errors.Wrap(err, "delete account")
		}
	}

	countBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(countBuf, count)
	if err := batch.Set(metaAccountsCount, countBuf); err != nil {
		batch.Cancel()
		return err
	}
	if err := batch.Flush(); err != nil {
		return errors.Wrap(err, "flush accounts")
	}

	b.accountsCount.Store(count)
	return nil
}

// accountKeysLocked returns every stored account key (caller must hold mu).
func (b *BadgerDB) accountKeysLocked() (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixAccount
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys[string(it.Item().Key())] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	return b.db.Close()
}

var _ DB = (*BadgerDB)(nil)
