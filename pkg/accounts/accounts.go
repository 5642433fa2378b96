// Package accounts implements the account store the runtime executes against.
//
// The store holds the current state only: one record per pubkey with its
// balance, data, owner and flags. Writes produced by a transaction are
// applied with CommitBatch so that either every account of the transaction is
// updated or none is.
//
// Two implementations are provided:
// - MemoryDB, a mutex-protected map used by tests and ephemeral hosts
// - BadgerDB, a persistent store on top of BadgerDB
package accounts

import (
	"bytes"
	"errors"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrInvalidData is returned when stored account bytes are malformed.
	ErrInvalidData = errors.New("invalid account data")

	// ErrSnapshotNotFound is returned when a snapshot doesn't exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// MaxAccountDataSize is the largest data buffer an account may hold.
const MaxAccountDataSize = 10 * 1024 * 1024

// Account is the stored state of a single account.
type Account struct {
	// Lamports is the account balance.
	Lamports uint64

	// Data is the account data, interpreted by the owning program.
	Data []byte

	// Owner is the program that owns this account. Only the owner may
	// debit the account or change its data.
	Owner types.Pubkey

	// Executable marks program accounts. Executable accounts are immutable.
	Executable bool

	// RentEpoch is the epoch at which rent was last collected.
	RentEpoch uint64
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	dataCopy := make([]byte, len(a.Data))
	copy(dataCopy, a.Data)
	return &Account{
		Lamports:   a.Lamports,
		Data:       dataCopy,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
}

// IsZero returns true if the account has no lamports and no data.
// Zero accounts are deleted from storage.
func (a *Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// MarshalWithEncoder implements bin.BinaryMarshaler.
//
// Format: lamports u64 | data (u32 length | bytes) | owner [32] |
// executable bool | rent_epoch u64
func (a Account) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint64(a.Lamports, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteBytes(a.Data, true); err != nil {
		return err
	}
	if err := encoder.WriteBytes(a.Owner[:], false); err != nil {
		return err
	}
	if err := encoder.WriteBool(a.Executable); err != nil {
		return err
	}
	return encoder.WriteUint64(a.RentEpoch, bin.LE)
}

// UnmarshalWithDecoder implements bin.BinaryUnmarshaler.
func (a *Account) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.Lamports, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}

	dataLen, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	if dataLen > MaxAccountDataSize {
		return ErrInvalidData
	}
	data, err := decoder.ReadNBytes(int(dataLen))
	if err != nil {
		return err
	}
	a.Data = append([]byte(nil), data...)

	owner, err := decoder.ReadNBytes(types.PubkeySize)
	if err != nil {
		return err
	}
	copy(a.Owner[:], owner)

	if a.Executable, err = decoder.ReadBool(); err != nil {
		return err
	}

	a.RentEpoch, err = decoder.ReadUint64(bin.LE)
	return err
}

// Serialize encodes the account for storage.
func (a *Account) Serialize() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 8+4+len(a.Data)+32+1+8))
	// Writes to a bytes.Buffer cannot fail.
	_ = bin.NewBorshEncoder(buf).Encode(a)
	return buf.Bytes()
}

// DeserializeAccount decodes an account from bytes.
func DeserializeAccount(data []byte) (*Account, error) {
	var account Account
	decoder := bin.NewBorshDecoder(data)
	if err := decoder.Decode(&account); err != nil {
		return nil, ErrInvalidData
	}
	if decoder.Remaining() != 0 {
		return nil, ErrInvalidData
	}
	return &account, nil
}

// DB is the accounts database interface.
// Implementations must be safe for concurrent use.
type DB interface {
	// GetAccount retrieves an account by public key.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetAccount(pubkey types.Pubkey) (*Account, error)

	// SetAccount stores an account.
	// If the account is zero (no lamports and no data), it is deleted.
	SetAccount(pubkey types.Pubkey, account *Account) error

	// DeleteAccount removes an account.
	// Returns nil if the account doesn't exist.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount checks if an account exists.
	HasAccount(pubkey types.Pubkey) (bool, error)

	// CommitBatch stores every account in updates atomically. Zero
	// accounts are deleted.
	CommitBatch(updates map[types.Pubkey]*Account) error

	// ForEach calls fn for every account in ascending pubkey order.
	// Iteration stops at the first error returned by fn.
	ForEach(fn func(pubkey types.Pubkey, account *Account) error) error

	// AccountsCount returns the total number of accounts.
	AccountsCount() (uint64, error)

	// Close closes the database.
	Close() error
}
