package accounts

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
)

// Snapshot file format version.
const snapshotVersion uint32 = 1

// Snapshot file magic bytes.
var snapshotMagic = []byte{'X', '1', 'C', 'F'}

// headerSize is the encoded header length after the magic.
const headerSize = 4 + 8 + types.HashSize

// SnapshotHeader contains metadata about a snapshot.
type SnapshotHeader struct {
	// Version is the snapshot format version.
	Version uint32

	// AccountsCount is the number of accounts in the snapshot.
	AccountsCount uint64

	// StateHash is the state hash of the accounts in the snapshot.
	StateHash types.Hash
}

// SnapshotWriter writes accounts to a snapshot file.
//
// Snapshot format:
//   - Magic (4 bytes): "X1CF"
//   - Version (4 bytes, little-endian)
//   - AccountsCount (8 bytes, little-endian)
//   - StateHash (32 bytes)
//   - Accounts (zstd compressed), for each account:
//   - Pubkey (32 bytes)
//   - AccountSize (4 bytes, little-endian)
//   - Account (serialized)
type SnapshotWriter struct {
	file    *os.File
	encoder *zstd.Encoder
	writer  *bufio.Writer
	header  SnapshotHeader
}

// NewSnapshotWriter creates a new snapshot writer.
func NewSnapshotWriter(path string, stateHash types.Hash) (*SnapshotWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create snapshot directory")
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create snapshot file")
	}

	sw := &SnapshotWriter{
		file: file,
		header: SnapshotHeader{
			Version:   snapshotVersion,
			StateHash: stateHash,
		},
	}

	// Placeholder header, rewritten with the final count on Close.
	if err := sw.writeHeader(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	sw.encoder, err = zstd.NewWriter(file)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, errors.Wrap(err, "init zstd writer")
	}
	sw.writer = bufio.NewWriter(sw.encoder)

	return sw, nil
}

func (sw *SnapshotWriter) writeHeader() error {
	buf := make([]byte, len(snapshotMagic)+headerSize)
	copy(buf, snapshotMagic)
	offset := len(snapshotMagic)

	binary.LittleEndian.PutUint32(buf[offset:], sw.header.Version)
	offset += 4

	binary.LittleEndian.PutUint64(buf[offset:], sw.header.AccountsCount)
	offset += 8

	copy(buf[offset:], sw.header.StateHash[:])

	_, err := sw.file.Write(buf)
	return err
}

// WriteAccount writes a single account to the snapshot.
func (sw *SnapshotWriter) WriteAccount(pubkey types.Pubkey, account *Account) error {
	if _, err := sw.writer.Write(pubkey[:]); err != nil {
		return err
	}

	data := account.Serialize()

	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(data)))
	if _, err := sw.writer.Write(sizeBuf[:]); err != nil {
		return err
	}

	if _, err := sw.writer.Write(data); err != nil {
		return err
	}

	sw.header.AccountsCount++
	return nil
}

// Close finalizes and closes the snapshot.
func (sw *SnapshotWriter) Close() error {
	defer sw.file.Close()

	if err := sw.writer.Flush(); err != nil {
		return err
	}
	if err := sw.encoder.Close(); err != nil {
		return err
	}

	if _, err := sw.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := sw.writeHeader(); err != nil {
		return err
	}

	return sw.file.Sync()
}

// SnapshotReader reads accounts from a snapshot file.
type SnapshotReader struct {
	file    *os.File
	decoder *zstd.Decoder
	reader  *bufio.Reader
	Header  SnapshotHeader
	read    uint64
}

// OpenSnapshot opens a snapshot file for reading.
func OpenSnapshot(path string) (*SnapshotReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, errors.Wrap(err, "open snapshot")
	}

	sr := &SnapshotReader{file: file}
	if err := sr.readHeader(); err != nil {
		file.Close()
		return nil, err
	}

	sr.decoder, err = zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "init zstd reader")
	}
	sr.reader = bufio.NewReader(sr.decoder)

	return sr, nil
}

func (sr *SnapshotReader) readHeader() error {
	buf := make([]byte, len(snapshotMagic)+headerSize)
	if _, err := io.ReadFull(sr.file, buf); err != nil {
		return errors.Wrap(err, "read header")
	}
	if string(buf[:len(snapshotMagic)]) != string(snapshotMagic) {
		return fmt.Errorf("invalid snapshot magic: %q", buf[:len(snapshotMagic)])
	}
	offset := len(snapshotMagic)

	sr.Header.Version = binary.LittleEndian.Uint32(buf[offset:])
	offset += 4
	if sr.Header.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", sr.Header.Version)
	}

	sr.Header.AccountsCount = binary.LittleEndian.Uint64(buf[offset:])
	offset += 8

	copy(sr.Header.StateHash[:], buf[offset:])
	return nil
}

// ReadAccount reads the next account from the snapshot.
// Returns io.EOF when all accounts have been read.
func (sr *SnapshotReader) ReadAccount() (types.Pubkey, *Account, error) {
	if sr.read >= sr.Header.AccountsCount {
		return types.Pubkey{}, nil, io.EOF
	}

	var pubkey types.Pubkey
	if _, err := io.ReadFull(sr.reader, pubkey[:]); err != nil {
		return types.Pubkey{}, nil, errors.Wrap(err, "read pubkey")
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(sr.reader, sizeBuf[:]); err != nil {
		return types.Pubkey{}, nil, errors.Wrap(err, "read size")
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])

	const maxAccountSerializedSize = MaxAccountDataSize + 100
	if size > maxAccountSerializedSize {
		return types.Pubkey{}, nil, fmt.Errorf("account size %d exceeds maximum %d", size, maxAccountSerializedSize)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(sr.reader, data); err != nil {
		return types.Pubkey{}, nil, errors.Wrap(err, "read account data")
	}

	account, err := DeserializeAccount(data)
	if err != nil {
		return types.Pubkey{}, nil, errors.Wrapf(err, "account %s", pubkey)
	}

	sr.read++
	return pubkey, account, nil
}

// Close closes the snapshot reader.
func (sr *SnapshotReader) Close() error {
	if sr.decoder != nil {
		sr.decoder.Close()
	}
	return sr.file.Close()
}

// CreateSnapshot writes every account in db to a snapshot at path and
// returns the state hash recorded in its header.
func CreateSnapshot(db DB, path string) (types.Hash, error) {
	stateHash, err := ComputeStateHash(db)
	if err != nil {
		return types.Hash{}, errors.Wrap(err, "compute state hash")
	}

	writer, err := NewSnapshotWriter(path, stateHash)
	if err != nil {
		return types.Hash{}, err
	}

	err = db.ForEach(func(pubkey types.Pubkey, account *Account) error {
		return writer.WriteAccount(pubkey, account)
	})
	if err != nil {
		writer.Close()
		os.Remove(path)
		return types.Hash{}, errors.Wrap(err, "write accounts")
	}

	if err := writer.Close(); err != nil {
		os.Remove(path)
		return types.Hash{}, errors.Wrap(err, "close snapshot")
	}
	return stateHash, nil
}

// LoadSnapshot replaces the contents of db with the snapshot at path. The
// whole snapshot is checked against its header state hash first, and db is
// left untouched when the check fails.
func LoadSnapshot(db DB, path string) error {
	switch db.(type) {
	case *BadgerDB, *MemoryDB:
	default:
		return fmt.Errorf("snapshot restore not supported for %T", db)
	}

	if err := VerifySnapshot(path); err != nil {
		return err
	}

	reader, err := OpenSnapshot(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	switch d := db.(type) {
	case *BadgerDB:
		err = d.restore(reader)
	case *MemoryDB:
		err = d.restore(reader)
	}
	if err != nil {
		return errors.Wrap(err, "restore accounts")
	}
	return nil
}

// VerifySnapshot reads every account of the snapshot at path and checks that
// they hash to the state hash in its header. Accounts must appear in strictly
// ascending pubkey order.
func VerifySnapshot(path string) error {
	reader, err := OpenSnapshot(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	var (
		hashes []types.Hash
		prev   *types.Pubkey
	)
	for {
		pubkey, account, err := reader.ReadAccount()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if prev != nil && bytes.Compare(prev[:], pubkey[:]) >= 0 {
			return fmt.Errorf("snapshot account %s out of order", pubkey)
		}
		prev = &pubkey

		if account.IsZero() {
			continue
		}
		hashes = append(hashes, ComputeAccountHash(pubkey, account))
	}

	if computed := ComputeMerkleRoot(hashes); computed != reader.Header.StateHash {
		return fmt.Errorf("state hash mismatch: expected %s, got %s",
			reader.Header.StateHash, computed)
	}
	return nil
}

// restore replaces the contents of m with the accounts of a snapshot.
func (m *MemoryDB) restore(reader *SnapshotReader) error {
	accounts := make(map[types.Pubkey]*Account)
	for {
		pubkey, account, err := reader.ReadAccount()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if !account.IsZero() {
			accounts[pubkey] = account
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.accounts = accounts
	return nil
}
