package system

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

// CreateAccount returns an instruction that funds address from funder,
// allocates size bytes and assigns it to owner.
//
//	0. [WRITE, SIGNER] Funding account
//	1. [WRITE, SIGNER] New account
func CreateAccount(funder, address, owner types.Pubkey, lamports, size uint64) svm.Instruction {
	data := make([]byte, 4+8+8+32)
	binary.LittleEndian.PutUint32(data[0:], InstructionCreateAccount)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[12:], size)
	copy(data[20:], owner[:])

	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(funder, true),
			svm.NewAccountMeta(address, true),
		},
		Data: data,
	}
}

// Assign returns an instruction that assigns account to owner.
//
//	0. [WRITE, SIGNER] Assigned account
func Assign(account, owner types.Pubkey) svm.Instruction {
	data := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(data[0:], InstructionAssign)
	copy(data[4:], owner[:])

	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(account, true),
		},
		Data: data,
	}
}

// Transfer returns an instruction that moves lamports from one system
// account to another account.
//
//	0. [WRITE, SIGNER] Funding account
//	1. [WRITE] Recipient account
func Transfer(from, to types.Pubkey, lamports uint64) svm.Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:], InstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:], lamports)

	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(from, true),
			svm.NewAccountMeta(to, false),
		},
		Data: data,
	}
}

// Allocate returns an instruction that grows account to size bytes.
//
//	0. [WRITE, SIGNER] Account
func Allocate(account types.Pubkey, size uint64) svm.Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:], InstructionAllocate)
	binary.LittleEndian.PutUint64(data[4:], size)

	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(account, true),
		},
		Data: data,
	}
}
