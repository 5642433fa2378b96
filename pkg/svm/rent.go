package svm

// AccountStorageOverhead is the number of bytes charged for every account on
// top of its data.
const AccountStorageOverhead = 128

// Rent holds the parameters of the Rent sysvar.
type Rent struct {
	// LamportsPerByteYear is the rental rate.
	LamportsPerByteYear uint64

	// ExemptionThreshold is the number of years of rent an account must hold
	// to be exempt from collection.
	ExemptionThreshold float64
}

// DefaultRent returns the mainnet rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2.0,
	}
}

// MinimumBalance returns the lamports an account with dataLen bytes of data
// must hold to be rent exempt.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	bytes := AccountStorageOverhead + dataLen
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt reports whether lamports cover the minimum balance for dataLen.
func (r Rent) IsExempt(lamports, dataLen uint64) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
