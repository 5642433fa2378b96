package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
)

func openJournal(t *testing.T, retain uint64) *Journal {
	config := DefaultConfig(filepath.Join(t.TempDir(), "journal", "receipts.db"))
	config.Retain = retain
	config.NoSync = true

	j, err := Open(config)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func sig(b byte) types.Signature {
	var s types.Signature
	s[0] = b
	s[63] = b
	return s
}

func receipt(b byte) *Receipt {
	return &Receipt{
		Signature:    sig(b),
		Programs:     []types.Pubkey{{b}},
		Logs:         []string{"CreateCampaign: ok", ""},
		ComputeUnits: 900 + uint64(b),
		Modified:     []types.Pubkey{{1}, {2}},
		DeltaHash:    types.Hash{b, 9},
		ProcessedAt:  time.Unix(1_700_000_000, int64(b)).UTC(),
	}
}

func TestPutGet(t *testing.T) {
	j := openJournal(t, 0)

	r := receipt(1)
	r.Err = "instruction 0: insufficient funds"
	require.NoError(t, j.Put(r))
	assert.EqualValues(t, 1, r.Sequence)

	got, err := j.Get(sig(1))
	require.NoError(t, err)
	assert.Equal(t, r, got)
	assert.False(t, got.Succeeded())

	exists, err := j.Has(sig(1))
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = j.Get(sig(2))
	assert.ErrorIs(t, err, ErrReceiptNotFound)

	assert.ErrorIs(t, j.Put(receipt(1)), ErrDuplicateReceipt)

	count, err := j.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRecent(t *testing.T) {
	j := openJournal(t, 0)
	for b := byte(1); b <= 5; b++ {
		require.NoError(t, j.Put(receipt(b)))
	}

	recent, err := j.Recent(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, sig(5), recent[0].Signature)
	assert.Equal(t, sig(4), recent[1].Signature)
	assert.Equal(t, sig(3), recent[2].Signature)
	assert.True(t, recent[0].Succeeded())

	all, err := j.Recent(100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRetain(t *testing.T) {
	j := openJournal(t, 3)
	for b := byte(1); b <= 5; b++ {
		require.NoError(t, j.Put(receipt(b)))
	}

	count, err := j.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	_, err = j.Get(sig(2))
	assert.ErrorIs(t, err, ErrReceiptNotFound)

	// Pruned signatures are still known and cannot be stored again.
	exists, err := j.Has(sig(2))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.ErrorIs(t, j.Put(receipt(2)), ErrDuplicateReceipt)

	exists, err = j.Has(sig(6))
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := j.Get(sig(3))
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.Sequence)

	removed, err := j.Prune(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	recent, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, sig(5), recent[0].Signature)

	removed, err = j.Prune(1)
	require.NoError(t, err)
	assert.Zero(t, removed)

	for b := byte(1); b <= 5; b++ {
		exists, err := j.Has(sig(b))
		require.NoError(t, err)
		assert.True(t, exists, "signature %d", b)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.db")

	j, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, j.Put(receipt(1)))
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Close(), ErrClosed)

	_, err = j.Get(sig(1))
	assert.ErrorIs(t, err, ErrClosed)

	j, err = Open(DefaultConfig(path))
	require.NoError(t, err)
	defer j.Close()

	r := receipt(2)
	require.NoError(t, j.Put(r))
	assert.EqualValues(t, 2, r.Sequence)
}

func TestUnmarshalReceiptTruncated(t *testing.T) {
	data, err := receipt(1).Marshal()
	require.NoError(t, err)

	_, err = UnmarshalReceipt(data[:len(data)-4])
	assert.Error(t, err)

	_, err = UnmarshalReceipt(data[:70])
	assert.Error(t, err)
}
