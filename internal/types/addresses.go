package types

// Native program addresses.
// These are the same across Solana mainnet and X1.
var (
	// SystemProgramAddr is the System Program address.
	SystemProgramAddr = MustPubkeyFromBase58("11111111111111111111111111111111")

	// SysvarRentAddr is the Rent sysvar address.
	SysvarRentAddr = MustPubkeyFromBase58("SysvarRent111111111111111111111111111111111")
)

// IsSysvar returns true if the pubkey is a sysvar the host knows about.
func IsSysvar(p Pubkey) bool {
	return p == SysvarRentAddr
}
