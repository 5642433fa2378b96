// Package crowdfund implements the crowdfunding program.
//
// The program manages one record type, a Campaign, stored in an account it
// owns. It supports three instructions, selected by the first byte of the
// instruction data:
//
//	0  CreateCampaign  [campaign (writable), creator (signer)]
//	1  Withdraw        [campaign (writable), admin (signer, writable)]
//	2  Donate          [campaign (writable), donor (signer, writable)]
//
// Every account handed to the program may be forged, so each handler checks
// signer and ownership before it reads any stored record, and checks the
// rent-exemption floor of the campaign account before it moves lamports out.
// The lamport balance of a campaign account and its AmountDonated counter are
// separate quantities: Withdraw moves lamports only, Donate moves lamports
// and increments the counter.
package crowdfund

import (
	"errors"
	"fmt"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

// ProgramID is the address the crowdfund program is deployed at.
var ProgramID = types.MustPubkeyFromBase58("Crowdfund1111111111111111111111111111111111")

// Processor executes crowdfund instructions.
type Processor struct{}

// NewProcessor creates a new crowdfund processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process is the program entrypoint. The instruction type is validated
// before any of its payload is looked at.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	instruction, payload, err := ParseInstructionType(data)
	if err != nil {
		if errors.Is(err, ErrUnknownInstruction) {
			ctx.Log(fmt.Sprintf("unknown instruction %d", data[0]))
		}
		return err
	}

	switch instruction {
	case InstructionCreateCampaign:
		return p.processCreateCampaign(ctx, payload)
	case InstructionWithdraw:
		return p.processWithdraw(ctx, payload)
	case InstructionDonate:
		return p.processDonate(ctx, payload)
	default:
		return ErrUnknownInstruction
	}
}
