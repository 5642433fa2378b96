// Package svmtest provides an in-memory svm.InvokeContext for program tests.
package svmtest

import (
	"errors"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

// ErrUnknownProgram is returned by Invoke when no program is registered for
// the target id.
var ErrUnknownProgram = errors.New("svmtest: unknown program")

// Context is an svm.InvokeContext backed by a fixed account list.
//
// Invoke runs the target program directly against the same AccountInfo
// values, so lamport and data changes made by the callee are visible to the
// caller. Privileges of the invoked accounts are taken from the caller's view.
type Context struct {
	Program  types.Pubkey
	Accounts []*svm.AccountInfo
	Rent     svm.Rent
	Logs     []string
	Programs map[types.Pubkey]svm.Program
	Invoked  []svm.Instruction
}

// NewContext creates a context for program with the given accounts and the
// default rent parameters.
func NewContext(program types.Pubkey, accounts ...*svm.AccountInfo) *Context {
	return &Context{
		Program:  program,
		Accounts: accounts,
		Rent:     svm.DefaultRent(),
		Programs: make(map[types.Pubkey]svm.Program),
	}
}

// ProgramID implements svm.InvokeContext.
func (c *Context) ProgramID() types.Pubkey {
	return c.Program
}

// NumAccounts implements svm.InvokeContext.
func (c *Context) NumAccounts() int {
	return len(c.Accounts)
}

// GetAccount implements svm.InvokeContext.
func (c *Context) GetAccount(index int) (*svm.AccountInfo, error) {
	if index < 0 || index >= len(c.Accounts) {
		return nil, svm.ErrAccountNotFound
	}
	return c.Accounts[index], nil
}

// GetRentMinimum implements svm.InvokeContext.
func (c *Context) GetRentMinimum(dataLen uint64) uint64 {
	return c.Rent.MinimumBalance(dataLen)
}

// Log implements svm.InvokeContext.
func (c *Context) Log(msg string) {
	c.Logs = append(c.Logs, msg)
}

// Invoke implements svm.InvokeContext.
func (c *Context) Invoke(instruction svm.Instruction) error {
	c.Invoked = append(c.Invoked, instruction)

	program, ok := c.Programs[instruction.ProgramID]
	if !ok {
		return ErrUnknownProgram
	}

	accounts := make([]*svm.AccountInfo, 0, len(instruction.Accounts))
	for _, meta := range instruction.Accounts {
		var found *svm.AccountInfo
		for _, acc := range c.Accounts {
			if acc.Key == meta.Pubkey {
				found = acc
				break
			}
		}
		if found == nil {
			return svm.ErrAccountNotFound
		}
		accounts = append(accounts, found)
	}

	callee := &Context{
		Program:  instruction.ProgramID,
		Accounts: accounts,
		Rent:     c.Rent,
		Programs: c.Programs,
	}
	err := program.Process(callee, instruction.Data)
	c.Logs = append(c.Logs, callee.Logs...)
	return err
}

// Clone returns a deep copy of acc.
func Clone(acc *svm.AccountInfo) *svm.AccountInfo {
	cp := *acc
	cp.Data = append([]byte(nil), acc.Data...)
	return &cp
}
