package crowdfund

import "fmt"

// Error is a crowdfund program error. The numeric value is the custom error
// code reported to the host.
type Error uint32

const (
	ErrMissingInstructionData Error = iota
	ErrUnknownInstruction
	ErrMissingAccount
	ErrWrongAccountOwner
	ErrMissingSigner
	ErrUnauthorized
	ErrMalformedRecord
	ErrInsufficientFunds
	ErrOverflow
	ErrAccountDataTooSmall
	ErrReadonlyAccount
)

var errorMessages = map[Error]string{
	ErrMissingInstructionData: "missing instruction data",
	ErrUnknownInstruction:     "unknown instruction",
	ErrMissingAccount:         "not enough account keys",
	ErrWrongAccountOwner:      "account not owned by program",
	ErrMissingSigner:          "missing required signature",
	ErrUnauthorized:           "signer is not the campaign admin",
	ErrMalformedRecord:        "malformed record",
	ErrInsufficientFunds:      "insufficient funds",
	ErrOverflow:               "arithmetic overflow",
	ErrAccountDataTooSmall:    "account data too small for record",
	ErrReadonlyAccount:        "account must be writable",
}

// Error implements error.
func (e Error) Error() string {
	if msg, ok := errorMessages[e]; ok {
		return msg
	}
	return fmt.Sprintf("crowdfund error %d", uint32(e))
}

// Code returns the custom error code.
func (e Error) Code() uint32 {
	return uint32(e)
}
