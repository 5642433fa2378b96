package crowdfund

import (
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

// rentFloor returns the balance acc must keep to stay rent exempt at its
// current data length.
func rentFloor(ctx svm.InvokeContext, acc *svm.AccountInfo) uint64 {
	return ctx.GetRentMinimum(uint64(len(acc.Data)))
}

func requireRentExempt(ctx svm.InvokeContext, acc *svm.AccountInfo) error {
	if acc.Lamports < rentFloor(ctx, acc) {
		return ErrInsufficientFunds
	}
	return nil
}

// requireWithdrawable fails unless amount can leave acc without taking it
// below its rent floor.
func requireWithdrawable(ctx svm.InvokeContext, acc *svm.AccountInfo, amount uint64) error {
	floor := rentFloor(ctx, acc)
	if acc.Lamports < floor {
		return ErrInsufficientFunds
	}
	if acc.Lamports-floor < amount {
		return ErrInsufficientFunds
	}
	return nil
}

// checkedAdd returns a + b, or ErrOverflow if the sum does not fit.
func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}
