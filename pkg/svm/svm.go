// Package svm defines the interface between native programs and the host
// that executes them.
//
// A native program sees:
// - The accounts of the current instruction, in the order the caller passed them
// - The rent parameters used to compute rent-exemption floors
// - A log sink for program messages
// - Cross-Program Invocation (CPI) into other registered programs
//
// The host owns account loading, locking, privilege checks and commit. A program
// only mutates the AccountInfo values it is handed; the host decides whether
// those mutations are kept.
package svm

import (
	"errors"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
)

var (
	// ErrAccountNotFound is returned when a required account is missing.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidInstruction is returned for malformed instructions.
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// AccountInfo holds account state during execution.
type AccountInfo struct {
	Key        types.Pubkey
	Owner      types.Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// AccountMeta describes an account in an instruction.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// NewAccountMeta creates an AccountMeta for a writable account.
func NewAccountMeta(pubkey types.Pubkey, isSigner bool) AccountMeta {
	return AccountMeta{
		Pubkey:     pubkey,
		IsSigner:   isSigner,
		IsWritable: true,
	}
}

// NewReadonlyAccountMeta creates an AccountMeta for a read-only account.
func NewReadonlyAccountMeta(pubkey types.Pubkey, isSigner bool) AccountMeta {
	return AccountMeta{
		Pubkey:     pubkey,
		IsSigner:   isSigner,
		IsWritable: false,
	}
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// InvokeContext provides context for program execution.
type InvokeContext interface {
	// ProgramID returns the address of the executing program.
	ProgramID() types.Pubkey

	// NumAccounts returns the number of accounts passed to the instruction.
	NumAccounts() int

	// GetAccount returns the account at the given index.
	GetAccount(index int) (*AccountInfo, error)

	// GetRentMinimum returns the rent-exempt minimum for given data size.
	GetRentMinimum(dataLen uint64) uint64

	// Log records a log message.
	Log(msg string)

	// Invoke executes another program with a subset of this instruction's
	// accounts. Signer and writable privileges cannot exceed the caller's.
	Invoke(instruction Instruction) error
}

// Program is a native program.
type Program interface {
	// Process executes one instruction against ctx.
	Process(ctx InvokeContext, data []byte) error
}

// CustomError is implemented by program errors that carry a numeric code,
// the equivalent of a Custom(u32) program error.
type CustomError interface {
	error
	Code() uint32
}
