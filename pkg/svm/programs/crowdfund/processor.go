package crowdfund

import (
	"fmt"

	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm/programs/system"
)

// processCreateCampaign writes a new campaign record into a program-owned
// account.
//
// Accounts: [0] = campaign (writable), [1] = creator (signer)
func (p *Processor) processCreateCampaign(ctx svm.InvokeContext, payload []byte) error {
	accounts, err := loadCreateAccounts(ctx)
	if err != nil {
		return err
	}

	if err := requireSigner(accounts.creator); err != nil {
		return err
	}
	if err := requireOwnedBy(ctx, accounts.campaign); err != nil {
		return err
	}
	if err := requireWritable(accounts.campaign); err != nil {
		return err
	}

	campaign, err := UnmarshalCampaignPayload(payload)
	if err != nil {
		return err
	}
	if campaign.Admin != accounts.creator.Key {
		return ErrUnauthorized
	}

	if err := requireRentExempt(ctx, accounts.campaign); err != nil {
		return err
	}

	campaign.AmountDonated = 0
	if err := campaign.MarshalInto(accounts.campaign.Data); err != nil {
		return err
	}

	ctx.Log(fmt.Sprintf("CreateCampaign: %s admin=%s", accounts.campaign.Key, campaign.Admin))
	return nil
}

// processWithdraw moves lamports from a campaign account to its admin. The
// campaign keeps at least its rent floor. AmountDonated is not touched.
//
// Accounts: [0] = campaign (writable), [1] = admin (signer, writable)
func (p *Processor) processWithdraw(ctx svm.InvokeContext, payload []byte) error {
	accounts, err := loadWithdrawAccounts(ctx)
	if err != nil {
		return err
	}

	if err := requireOwnedBy(ctx, accounts.campaign); err != nil {
		return err
	}
	if err := requireSigner(accounts.admin); err != nil {
		return err
	}
	if err := requireWritable(accounts.campaign, accounts.admin); err != nil {
		return err
	}

	campaign, err := UnmarshalCampaignAccount(accounts.campaign.Data)
	if err != nil {
		return err
	}
	if campaign.Admin != accounts.admin.Key {
		return ErrUnauthorized
	}

	request, err := UnmarshalWithdrawRequest(payload)
	if err != nil {
		return err
	}

	if err := requireWithdrawable(ctx, accounts.campaign, request.Amount); err != nil {
		return err
	}

	// The admin may be the campaign account itself, in which case both roles
	// share one view and the transfer nets to zero.
	if accounts.admin.Key != accounts.campaign.Key {
		if _, err := checkedAdd(accounts.admin.Lamports, request.Amount); err != nil {
			return err
		}
	}

	accounts.campaign.Lamports -= request.Amount
	accounts.admin.Lamports += request.Amount

	ctx.Log(fmt.Sprintf("Withdraw: %d lamports from %s", request.Amount, accounts.campaign.Key))
	return nil
}

// processDonate moves lamports from a donor to a campaign account and adds
// them to the campaign's AmountDonated counter. The donor is System-owned, so
// the lamports move through a System Program Transfer.
//
// Accounts: [0] = campaign (writable), [1] = donor (signer, writable)
func (p *Processor) processDonate(ctx svm.InvokeContext, payload []byte) error {
	accounts, err := loadDonateAccounts(ctx)
	if err != nil {
		return err
	}

	if err := requireOwnedBy(ctx, accounts.campaign); err != nil {
		return err
	}
	if err := requireSigner(accounts.donor); err != nil {
		return err
	}
	if err := requireWritable(accounts.campaign, accounts.donor); err != nil {
		return err
	}

	request, err := UnmarshalDonationRequest(payload)
	if err != nil {
		return err
	}

	campaign, err := UnmarshalCampaignAccount(accounts.campaign.Data)
	if err != nil {
		return err
	}

	if accounts.donor.Lamports < request.Amount {
		return ErrInsufficientFunds
	}

	donated, err := checkedAdd(campaign.AmountDonated, request.Amount)
	if err != nil {
		return err
	}
	if _, err := checkedAdd(accounts.campaign.Lamports, request.Amount); err != nil {
		return err
	}

	transfer := system.Transfer(accounts.donor.Key, accounts.campaign.Key, request.Amount)
	if err := ctx.Invoke(transfer); err != nil {
		return err
	}

	campaign.AmountDonated = donated
	if err := campaign.MarshalInto(accounts.campaign.Data); err != nil {
		return err
	}

	ctx.Log(fmt.Sprintf("Donate: %d lamports to %s", request.Amount, accounts.campaign.Key))
	return nil
}
