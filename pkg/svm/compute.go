package svm

import (
	"errors"
	"sync/atomic"
)

// Compute unit cost constants.
// These match the Solana/Agave reference implementation.
const (
	CUDefault    = uint64(200_000)   // Default CU limit per transaction
	CUMax        = uint64(1_400_000) // Max CU limit per transaction
	CUInvokeBase = uint64(1_000)     // Base cost for CPI
	CUWriteLock  = uint64(300)       // Write lock cost
	CUSignature  = uint64(720)       // Ed25519 signature verification

	CUSystemProgramDefault = uint64(150) // System program base
	CUNativeProgramDefault = uint64(750) // Other native programs
)

// CPI constants.
const (
	CPIDepthMax = 4 // Max CPI nesting depth
)

var (
	// ErrComputeExceeded is returned when compute units are exhausted.
	ErrComputeExceeded = errors.New("compute budget exceeded")
)

// ComputeMeter tracks compute unit consumption.
type ComputeMeter struct {
	remaining uint64
	consumed  uint64
	limit     uint64
}

// NewComputeMeter creates a new compute meter with the specified limit.
func NewComputeMeter(limit uint64) *ComputeMeter {
	if limit > CUMax {
		limit = CUMax
	}
	return &ComputeMeter{
		remaining: limit,
		limit:     limit,
	}
}

// Consume attempts to consume the specified compute units.
// Returns ErrComputeExceeded if insufficient units remain.
func (cm *ComputeMeter) Consume(cost uint64) error {
	for {
		remaining := atomic.LoadUint64(&cm.remaining)
		if remaining < cost {
			atomic.AddUint64(&cm.consumed, remaining)
			atomic.StoreUint64(&cm.remaining, 0)
			return ErrComputeExceeded
		}
		if atomic.CompareAndSwapUint64(&cm.remaining, remaining, remaining-cost) {
			atomic.AddUint64(&cm.consumed, cost)
			return nil
		}
	}
}

// Remaining returns the remaining compute units.
func (cm *ComputeMeter) Remaining() uint64 {
	return atomic.LoadUint64(&cm.remaining)
}

// Consumed returns the total consumed compute units.
func (cm *ComputeMeter) Consumed() uint64 {
	return atomic.LoadUint64(&cm.consumed)
}

// Limit returns the compute unit limit.
func (cm *ComputeMeter) Limit() uint64 {
	return cm.limit
}
