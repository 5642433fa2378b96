package crowdfund

import (
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

// createAccounts are the accounts of a CreateCampaign instruction.
type createAccounts struct {
	campaign *svm.AccountInfo
	creator  *svm.AccountInfo
}

// withdrawAccounts are the accounts of a Withdraw instruction.
type withdrawAccounts struct {
	campaign *svm.AccountInfo
	admin    *svm.AccountInfo
}

// donateAccounts are the accounts of a Donate instruction.
type donateAccounts struct {
	campaign *svm.AccountInfo
	donor    *svm.AccountInfo
}

// nextAccounts returns the first n accounts of the instruction in order.
func nextAccounts(ctx svm.InvokeContext, n int) ([]*svm.AccountInfo, error) {
	if ctx.NumAccounts() < n {
		return nil, ErrMissingAccount
	}

	accounts := make([]*svm.AccountInfo, n)
	for i := range accounts {
		acc, err := ctx.GetAccount(i)
		if err != nil {
			return nil, ErrMissingAccount
		}
		accounts[i] = acc
	}
	return accounts, nil
}

func loadCreateAccounts(ctx svm.InvokeContext) (*createAccounts, error) {
	accounts, err := nextAccounts(ctx, 2)
	if err != nil {
		return nil, err
	}
	return &createAccounts{campaign: accounts[0], creator: accounts[1]}, nil
}

func loadWithdrawAccounts(ctx svm.InvokeContext) (*withdrawAccounts, error) {
	accounts, err := nextAccounts(ctx, 2)
	if err != nil {
		return nil, err
	}
	return &withdrawAccounts{campaign: accounts[0], admin: accounts[1]}, nil
}

func loadDonateAccounts(ctx svm.InvokeContext) (*donateAccounts, error) {
	accounts, err := nextAccounts(ctx, 2)
	if err != nil {
		return nil, err
	}
	return &donateAccounts{campaign: accounts[0], donor: accounts[1]}, nil
}

func requireSigner(acc *svm.AccountInfo) error {
	if !acc.IsSigner {
		return ErrMissingSigner
	}
	return nil
}

func requireOwnedBy(ctx svm.InvokeContext, acc *svm.AccountInfo) error {
	if acc.Owner != ctx.ProgramID() {
		return ErrWrongAccountOwner
	}
	return nil
}

func requireWritable(accounts ...*svm.AccountInfo) error {
	for _, acc := range accounts {
		if !acc.IsWritable {
			return ErrReadonlyAccount
		}
	}
	return nil
}
