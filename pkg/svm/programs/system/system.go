// Package system implements the subset of the Solana System Program the
// crowdfund host relies on.
//
// The System Program is responsible for:
// - Creating new accounts and assigning them to a program
// - Transferring lamports out of system-owned accounts
// - Assigning account ownership
// - Allocating account space
package system

import (
	"encoding/binary"
	"errors"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

// ProgramID is the System Program address (all zeros).
var ProgramID = types.SystemProgramAddr

// Instruction discriminants.
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// Error types.
var (
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrNotEnoughAccountKeys     = errors.New("not enough account keys")
	ErrInvalidAccountOwner      = errors.New("invalid account owner")
	ErrAccountNotRentExempt     = errors.New("account not rent exempt")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrAccountNotWritable       = errors.New("account not writable")
	ErrAccountDataTooSmall      = errors.New("account data too small")
	ErrAccountDataTooLarge      = errors.New("account data too large")
	ErrTransferFromWithData     = errors.New("from account must not carry data")
	ErrLamportOverflow          = errors.New("lamport overflow")
)

// Maximum account data size.
const MaxAccountDataSize = 10 * 1024 * 1024 // 10 MB

// Processor executes System Program instructions.
type Processor struct{}

// NewProcessor creates a new System Program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a System Program instruction.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if len(data) < 4 {
		return ErrInvalidInstructionData
	}

	instruction := binary.LittleEndian.Uint32(data[:4])

	switch instruction {
	case InstructionCreateAccount:
		return p.processCreateAccount(ctx, data[4:])
	case InstructionAssign:
		return p.processAssign(ctx, data[4:])
	case InstructionTransfer:
		return p.processTransfer(ctx, data[4:])
	case InstructionAllocate:
		return p.processAllocate(ctx, data[4:])
	default:
		return ErrInvalidInstructionData
	}
}

// CreateAccountParams for CreateAccount instruction.
type CreateAccountParams struct {
	Lamports uint64
	Space    uint64
	Owner    types.Pubkey
}

// processCreateAccount creates a new account.
func (p *Processor) processCreateAccount(ctx svm.InvokeContext, data []byte) error {
	// Parse parameters: lamports (8) + space (8) + owner (32)
	if len(data) < 48 {
		return ErrInvalidInstructionData
	}

	params := CreateAccountParams{
		Lamports: binary.LittleEndian.Uint64(data[0:8]),
		Space:    binary.LittleEndian.Uint64(data[8:16]),
	}
	copy(params.Owner[:], data[16:48])

	if params.Space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}

	// Get accounts: [0] = funding account, [1] = new account
	funder, err := ctx.GetAccount(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	newAccount, err := ctx.GetAccount(1)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !funder.IsSigner || !newAccount.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !funder.IsWritable || !newAccount.IsWritable {
		return ErrAccountNotWritable
	}

	if funder.Lamports < params.Lamports {
		return ErrInsufficientFunds
	}

	// Verify new account is empty (owned by system program and no data)
	if newAccount.Owner != ProgramID || len(newAccount.Data) > 0 || newAccount.Lamports > 0 {
		return ErrAccountAlreadyInUse
	}

	if params.Lamports < ctx.GetRentMinimum(params.Space) {
		return ErrAccountNotRentExempt
	}

	funder.Lamports -= params.Lamports
	newAccount.Lamports = params.Lamports
	newAccount.Data = make([]byte, params.Space)
	newAccount.Owner = params.Owner

	ctx.Log("CreateAccount: success")
	return nil
}

// processAssign changes the owner of an account.
func (p *Processor) processAssign(ctx svm.InvokeContext, data []byte) error {
	// Parse parameters: owner (32)
	if len(data) < 32 {
		return ErrInvalidInstructionData
	}

	var newOwner types.Pubkey
	copy(newOwner[:], data[0:32])

	account, err := ctx.GetAccount(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !account.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !account.IsWritable {
		return ErrAccountNotWritable
	}
	if account.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}

	account.Owner = newOwner

	ctx.Log("Assign: success")
	return nil
}

// TransferParams for Transfer instruction.
type TransferParams struct {
	Lamports uint64
}

// processTransfer transfers lamports between accounts.
func (p *Processor) processTransfer(ctx svm.InvokeContext, data []byte) error {
	// Parse parameters: lamports (8)
	if len(data) < 8 {
		return ErrInvalidInstructionData
	}

	params := TransferParams{
		Lamports: binary.LittleEndian.Uint64(data[0:8]),
	}

	// Get accounts: [0] = from, [1] = to
	from, err := ctx.GetAccount(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	to, err := ctx.GetAccount(1)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !from.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !from.IsWritable || !to.IsWritable {
		return ErrAccountNotWritable
	}
	if from.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}
	if len(from.Data) > 0 {
		return ErrTransferFromWithData
	}

	if from.Lamports < params.Lamports {
		return ErrInsufficientFunds
	}
	if to.Lamports > ^uint64(0)-params.Lamports {
		return ErrLamportOverflow
	}

	from.Lamports -= params.Lamports
	to.Lamports += params.Lamports

	ctx.Log("Transfer: success")
	return nil
}

// processAllocate allocates space in an account.
func (p *Processor) processAllocate(ctx svm.InvokeContext, data []byte) error {
	// Parse parameters: space (8)
	if len(data) < 8 {
		return ErrInvalidInstructionData
	}

	space := binary.LittleEndian.Uint64(data[0:8])
	if space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}

	account, err := ctx.GetAccount(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !account.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !account.IsWritable {
		return ErrAccountNotWritable
	}
	if account.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}

	// Cannot shrink account
	if uint64(len(account.Data)) > space {
		return ErrAccountDataTooSmall
	}

	if uint64(len(account.Data)) < space {
		newData := make([]byte, space)
		copy(newData, account.Data)
		account.Data = newData
	}

	ctx.Log("Allocate: success")
	return nil
}
