// Package journal provides persistent storage for transaction receipts.
//
// Every transaction the runtime executes, successful or not, produces a
// receipt. Receipts are keyed by the transaction's first signature and also
// indexed by an insertion sequence so the most recent ones can be listed.
// The journal doubles as the runtime's replay guard: a signature already in
// the journal is not executed again. Retention prunes receipt bodies only;
// the set of seen signatures is never pruned.
package journal

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
)

var (
	// ErrReceiptNotFound is returned when no receipt exists for a signature.
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrDuplicateReceipt is returned when a receipt for the signature is
	// already stored.
	ErrDuplicateReceipt = errors.New("duplicate receipt")

	// ErrClosed is returned when operating on a closed journal.
	ErrClosed = errors.New("journal closed")
)

// Bucket names.
var (
	// bucketReceipts stores encoded receipts keyed by signature.
	bucketReceipts = []byte("receipts")

	// bucketSequence maps big-endian sequence numbers to signatures.
	bucketSequence = []byte("sequence")

	// bucketSignatures maps every signature ever stored to its sequence.
	bucketSignatures = []byte("signatures")
)

// Config holds journal configuration options.
type Config struct {
	// Path is the journal database file.
	Path string

	// NoSync disables fsync after each write (faster but less durable).
	NoSync bool

	// Retain is the number of most recent receipt bodies kept. Zero keeps
	// all.
	Retain uint64

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
}

// DefaultConfig returns the default journal configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:   path,
		Retain: 100_000,
	}
}

// Journal is a bbolt-backed receipt store.
type Journal struct {
	db     *bolt.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens a journal.
func Open(config Config) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, pkgerrors.Wrap(err, "create directory")
	}

	opts := &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	}
	db, err := bolt.Open(config.Path, 0600, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open database")
	}

	j := &Journal{db: db, config: config}
	if !config.ReadOnly {
		err := db.Update(func(tx *bolt.Tx) error {
			for _, name := range [][]byte{bucketReceipts, bucketSequence, bucketSignatures} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return pkgerrors.Wrapf(err, "create bucket %s", name)
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return j, nil
}

func (j *Journal) checkOpen() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	return nil
}

// Put stores r, assigning its Sequence. Receipts beyond Config.Retain are
// pruned oldest first in the same transaction. A signature is refused once
// stored, even after its receipt has been pruned.
func (j *Journal) Put(r *Receipt) error {
	if err := j.checkOpen(); err != nil {
		return err
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		receipts := tx.Bucket(bucketReceipts)
		sequence := tx.Bucket(bucketSequence)
		signatures := tx.Bucket(bucketSignatures)

		sigKey := r.Signature[:]
		if signatures.Get(sigKey) != nil || receipts.Get(sigKey) != nil {
			return ErrDuplicateReceipt
		}

		seq, err := sequence.NextSequence()
		if err != nil {
			return err
		}
		r.Sequence = seq

		data, err := r.Marshal()
		if err != nil {
			return pkgerrors.Wrap(err, "encode receipt")
		}
		if err := receipts.Put(sigKey, data); err != nil {
			return err
		}
		if err := sequence.Put(encodeSequence(seq), sigKey); err != nil {
			return err
		}
		if err := signatures.Put(sigKey, encodeSequence(seq)); err != nil {
			return err
		}

		if j.config.Retain > 0 {
			_, err := prune(tx, j.config.Retain)
			return err
		}
		return nil
	})
}

// Get returns the receipt for sig.
func (j *Journal) Get(sig types.Signature) (*Receipt, error) {
	if err := j.checkOpen(); err != nil {
		return nil, err
	}

	var r *Receipt
	err := j.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReceipts).Get(sig[:])
		if data == nil {
			return ErrReceiptNotFound
		}

		var err error
		r, err = UnmarshalReceipt(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Has reports whether sig has ever been stored. It stays true after the
// receipt itself is pruned.
func (j *Journal) Has(sig types.Signature) (bool, error) {
	if err := j.checkOpen(); err != nil {
		return false, err
	}

	var exists bool
	err := j.db.View(func(tx *bolt.Tx) error {
		if signatures := tx.Bucket(bucketSignatures); signatures != nil && signatures.Get(sig[:]) != nil {
			exists = true
			return nil
		}
		exists = tx.Bucket(bucketReceipts).Get(sig[:]) != nil
		return nil
	})
	return exists, err
}

// Count returns the number of stored receipts.
func (j *Journal) Count() (uint64, error) {
	if err := j.checkOpen(); err != nil {
		return 0, err
	}

	var n int
	err := j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketReceipts).Stats().KeyN
		return nil
	})
	return uint64(n), err
}

// Recent returns up to limit receipts, newest first.
func (j *Journal) Recent(limit int) ([]*Receipt, error) {
	if err := j.checkOpen(); err != nil {
		return nil, err
	}

	var result []*Receipt
	err := j.db.View(func(tx *bolt.Tx) error {
		receipts := tx.Bucket(bucketReceipts)
		c := tx.Bucket(bucketSequence).Cursor()

		for k, sig := c.Last(); k != nil && len(result) < limit; k, sig = c.Prev() {
			data := receipts.Get(sig)
			if data == nil {
				continue
			}
			r, err := UnmarshalReceipt(data)
			if err != nil {
				return pkgerrors.Wrapf(err, "receipt %d", decodeSequence(k))
			}
			result = append(result, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Prune removes the oldest receipts so that at most keep remain. It returns
// the number of receipts removed.
func (j *Journal) Prune(keep uint64) (uint64, error) {
	if err := j.checkOpen(); err != nil {
		return 0, err
	}

	var removed uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		var err error
		removed, err = prune(tx, keep)
		return err
	})
	return removed, err
}

// prune deletes receipts from the oldest sequence onwards until keep remain.
// The signatures bucket is left alone.
// Sequences are contiguous because Put appends and prune only trims the
// head, so the live count is last - first + 1.
func prune(tx *bolt.Tx, keep uint64) (uint64, error) {
	receipts := tx.Bucket(bucketReceipts)
	sequence := tx.Bucket(bucketSequence)

	c := sequence.Cursor()
	first, _ := c.First()
	last, _ := c.Last()
	if first == nil {
		return 0, nil
	}

	total := decodeSequence(last) - decodeSequence(first) + 1
	if total <= keep {
		return 0, nil
	}
	excess := total - keep

	var seqKeys, sigKeys [][]byte
	for k, sig := c.First(); k != nil && uint64(len(seqKeys)) < excess; k, sig = c.Next() {
		seqKeys = append(seqKeys, append([]byte(nil), k...))
		sigKeys = append(sigKeys, append([]byte(nil), sig...))
	}

	for i := range seqKeys {
		if err := sequence.Delete(seqKeys[i]); err != nil {
			return 0, err
		}
		if err := receipts.Delete(sigKeys[i]); err != nil {
			return 0, err
		}
	}
	return uint64(len(seqKeys)), nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrClosed
	}
	j.closed = true
	j.mu.Unlock()

	return j.db.Close()
}

func encodeSequence(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func decodeSequence(key []byte) uint64 {
	if len(key) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}
