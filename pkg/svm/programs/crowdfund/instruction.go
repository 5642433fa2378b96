package crowdfund

import (
	"github.com/fortiblox/X1-Crowdfund/internal/types"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

// InstructionType is the first byte of crowdfund instruction data.
type InstructionType uint8

const (
	InstructionCreateCampaign InstructionType = iota
	InstructionWithdraw
	InstructionDonate
)

// String returns the instruction name.
func (t InstructionType) String() string {
	switch t {
	case InstructionCreateCampaign:
		return "CreateCampaign"
	case InstructionWithdraw:
		return "Withdraw"
	case InstructionDonate:
		return "Donate"
	default:
		return "Unknown"
	}
}

// ParseInstructionType splits instruction data into its type and payload.
func ParseInstructionType(data []byte) (InstructionType, []byte, error) {
	if len(data) == 0 {
		return 0, nil, ErrMissingInstructionData
	}

	instruction := InstructionType(data[0])
	switch instruction {
	case InstructionCreateCampaign, InstructionWithdraw, InstructionDonate:
		return instruction, data[1:], nil
	default:
		return 0, nil, ErrUnknownInstruction
	}
}

// NewCreateCampaignInstruction builds a CreateCampaign instruction. The
// campaign account must already be allocated with at least campaign.Size()
// bytes and be owned by the program.
func NewCreateCampaignInstruction(campaignAccount, creator types.Pubkey, campaign *Campaign) (svm.Instruction, error) {
	payload, err := campaign.Marshal()
	if err != nil {
		return svm.Instruction{}, err
	}

	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(campaignAccount, false),
			svm.NewReadonlyAccountMeta(creator, true),
		},
		Data: append([]byte{byte(InstructionCreateCampaign)}, payload...),
	}, nil
}

// NewWithdrawInstruction builds a Withdraw instruction.
func NewWithdrawInstruction(campaignAccount, admin types.Pubkey, amount uint64) svm.Instruction {
	payload := (&WithdrawRequest{Amount: amount}).Marshal()

	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(campaignAccount, false),
			svm.NewAccountMeta(admin, true),
		},
		Data: append([]byte{byte(InstructionWithdraw)}, payload...),
	}
}

// NewDonateInstruction builds a Donate instruction.
func NewDonateInstruction(campaignAccount, donor types.Pubkey, amount uint64) svm.Instruction {
	payload := (&DonationRequest{Amount: amount}).Marshal()

	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(campaignAccount, false),
			svm.NewAccountMeta(donor, true),
		},
		Data: append([]byte{byte(InstructionDonate)}, payload...),
	}
}
