package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
	"github.com/fortiblox/X1-Crowdfund/pkg/accounts"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

// Invocation errors.
var (
	ErrUnknownProgram        = errors.New("unknown program")
	ErrCallDepth             = errors.New("cross-program invocation depth exceeded")
	ErrReentrancy            = errors.New("cross-program invocation reentrancy not allowed")
	ErrPrivilegeEscalation   = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrMissingAccount        = errors.New("invoked account not passed to caller")
	ErrUnbalancedInstruction = errors.New("sum of account balances before and after instruction do not match")
	ErrExternalLamportSpend  = errors.New("instruction spent from the balance of an account it does not own")
	ErrReadonlyLamportChange = errors.New("instruction changed the balance of a read-only account")
	ErrExternalDataModified  = errors.New("instruction modified data of an account it does not own")
	ErrReadonlyDataModified  = errors.New("instruction modified data of a read-only account")
	ErrModifiedOwner         = errors.New("instruction illegally modified the program id of an account")
	ErrExecutableModified    = errors.New("instruction changed an executable account")
	ErrRentEpochModified     = errors.New("instruction modified rent epoch of an account")
)

// txAccount is the transaction-wide working copy of one account.
type txAccount struct {
	key      types.Pubkey
	original *accounts.Account
	current  accounts.Account
}

// txState holds everything shared by the instructions of one transaction.
type txState struct {
	accounts map[types.Pubkey]*txAccount
	order    []types.Pubkey
	signers  map[types.Pubkey]struct{}
	meter    *svm.ComputeMeter
	logs     []string
	stack    []types.Pubkey
}

// invocation is the svm.InvokeContext of one program call. Each invocation
// has its own AccountInfo views; an account passed twice shares one view.
type invocation struct {
	exec    *Executor
	tx      *txState
	program types.Pubkey
	depth   int

	accounts []*svm.AccountInfo
	views    map[types.Pubkey]*svm.AccountInfo
	pre      map[types.Pubkey]accounts.Account
}

// newInvocation builds the views of metas from the transaction state.
// Privileges come from the metas, merged for duplicate keys.
func newInvocation(exec *Executor, tx *txState, program types.Pubkey, metas []svm.AccountMeta, depth int) *invocation {
	inv := &invocation{
		exec:     exec,
		tx:       tx,
		program:  program,
		depth:    depth,
		accounts: make([]*svm.AccountInfo, len(metas)),
		views:    make(map[types.Pubkey]*svm.AccountInfo, len(metas)),
	}

	for i, meta := range metas {
		view, ok := inv.views[meta.Pubkey]
		if !ok {
			view = &svm.AccountInfo{Key: meta.Pubkey}
			setView(view, tx.accounts[meta.Pubkey].current)
			inv.views[meta.Pubkey] = view
		}
		view.IsSigner = view.IsSigner || meta.IsSigner
		view.IsWritable = view.IsWritable || meta.IsWritable
		inv.accounts[i] = view
	}

	inv.snapshot()
	return inv
}

// ProgramID implements svm.InvokeContext.
func (inv *invocation) ProgramID() types.Pubkey {
	return inv.program
}

// NumAccounts implements svm.InvokeContext.
func (inv *invocation) NumAccounts() int {
	return len(inv.accounts)
}

// GetAccount implements svm.InvokeContext.
func (inv *invocation) GetAccount(index int) (*svm.AccountInfo, error) {
	if index < 0 || index >= len(inv.accounts) {
		return nil, svm.ErrAccountNotFound
	}
	return inv.accounts[index], nil
}

// GetRentMinimum implements svm.InvokeContext.
func (inv *invocation) GetRentMinimum(dataLen uint64) uint64 {
	return inv.exec.rent.MinimumBalance(dataLen)
}

// Log implements svm.InvokeContext.
func (inv *invocation) Log(msg string) {
	inv.tx.logs = append(inv.tx.logs, "Program log: "+msg)
}

// Invoke implements svm.InvokeContext. The caller's changes so far are
// verified and published before the callee runs, and the caller's views are
// refreshed in place afterwards so pointers it holds stay valid.
func (inv *invocation) Invoke(instruction svm.Instruction) error {
	if inv.depth >= svm.CPIDepthMax {
		return ErrCallDepth
	}
	if instruction.ProgramID != inv.program {
		for _, caller := range inv.tx.stack {
			if caller == instruction.ProgramID {
				return ErrReentrancy
			}
		}
	}

	for _, meta := range instruction.Accounts {
		view, ok := inv.views[meta.Pubkey]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.Pubkey)
		}
		if meta.IsSigner && !view.IsSigner {
			return fmt.Errorf("%w: signer %s", ErrPrivilegeEscalation, meta.Pubkey)
		}
		if meta.IsWritable && !view.IsWritable {
			return fmt.Errorf("%w: writable %s", ErrPrivilegeEscalation, meta.Pubkey)
		}
	}

	if err := inv.tx.meter.Consume(svm.CUInvokeBase); err != nil {
		return err
	}

	if err := inv.commit(); err != nil {
		return err
	}
	if err := inv.exec.invoke(inv.tx, instruction, inv.depth+1); err != nil {
		return err
	}
	inv.refresh()
	return nil
}

// snapshot records the current state of every view as the baseline for
// verification.
func (inv *invocation) snapshot() {
	inv.pre = make(map[types.Pubkey]accounts.Account, len(inv.views))
	for key, view := range inv.views {
		inv.pre[key] = accountFromView(view)
	}
}

// commit verifies the changes made through the views since the last
// snapshot and writes them to the transaction state.
func (inv *invocation) commit() error {
	if err := inv.verify(); err != nil {
		return err
	}
	for key, view := range inv.views {
		inv.tx.accounts[key].current = accountFromView(view)
	}
	inv.snapshot()
	return nil
}

// refresh reloads every view from the transaction state, keeping the view
// pointers and their privileges.
func (inv *invocation) refresh() {
	for key, view := range inv.views {
		setView(view, inv.tx.accounts[key].current)
	}
	inv.snapshot()
}

// verify enforces the host rules on the changes made by inv.program.
func (inv *invocation) verify() error {
	var preHi, preLo, postHi, postLo uint64
	for key, view := range inv.views {
		pre := inv.pre[key]
		post := accountFromView(view)

		if err := verifyAccount(inv.program, view.IsWritable, &pre, &post); err != nil {
			return fmt.Errorf("%w: %s", err, key)
		}

		preHi, preLo = add128(preHi, preLo, pre.Lamports)
		postHi, postLo = add128(postHi, postLo, post.Lamports)
	}
	if preHi != postHi || preLo != postLo {
		return ErrUnbalancedInstruction
	}
	return nil
}

// verifyAccount checks one account's change against the rules for program.
func verifyAccount(program types.Pubkey, writable bool, pre, post *accounts.Account) error {
	owned := pre.Owner == program
	dataChanged := !bytes.Equal(pre.Data, post.Data)

	if pre.Owner != post.Owner {
		if !owned || !writable || pre.Executable || !isZeroed(post.Data) {
			return ErrModifiedOwner
		}
	}

	if post.Lamports < pre.Lamports && !owned {
		return ErrExternalLamportSpend
	}
	if post.Lamports != pre.Lamports && !writable {
		return ErrReadonlyLamportChange
	}

	if dataChanged {
		if !writable {
			return ErrReadonlyDataModified
		}
		if !owned {
			return ErrExternalDataModified
		}
	}

	if pre.Executable && (post.Lamports != pre.Lamports || dataChanged || !post.Executable) {
		return ErrExecutableModified
	}
	if pre.Executable != post.Executable {
		return ErrExecutableModified
	}

	if pre.RentEpoch != post.RentEpoch {
		return ErrRentEpochModified
	}
	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// add128 adds v to the 128-bit value hi:lo.
func add128(hi, lo, v uint64) (uint64, uint64) {
	lo, carry := bits.Add64(lo, v, 0)
	return hi + carry, lo
}

func setView(view *svm.AccountInfo, account accounts.Account) {
	view.Owner = account.Owner
	view.Lamports = account.Lamports
	view.Data = append([]byte(nil), account.Data...)
	view.Executable = account.Executable
	view.RentEpoch = account.RentEpoch
}

func accountFromView(view *svm.AccountInfo) accounts.Account {
	return accounts.Account{
		Lamports:   view.Lamports,
		Data:       append([]byte(nil), view.Data...),
		Owner:      view.Owner,
		Executable: view.Executable,
		RentEpoch:  view.RentEpoch,
	}
}
