package runtime

import (
	"bytes"
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
	"github.com/fortiblox/X1-Crowdfund/pkg/accounts"
	"github.com/fortiblox/X1-Crowdfund/pkg/journal"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm/programs/crowdfund"
	sysProgram "github.com/fortiblox/X1-Crowdfund/pkg/svm/programs/system"
)

const (
	campaignSpace = 256
	startBalance  = 10_000_000_000
)

// campaignRent is the rent floor of a campaign account under the default
// rent: (128 + 256) * 3480 * 2.
const campaignRent = 2_672_640

type signer struct {
	key    ed25519.PrivateKey
	pubkey types.Pubkey
}

func newSigner(t *testing.T, seed byte) signer {
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	pubkey, err := types.PubkeyFromPublicKey(key.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return signer{key: key, pubkey: pubkey}
}

// fixture is an executor with a funded creator, donor and a stranger, and a
// campaign keypair that has not been created yet.
type fixture struct {
	exec     *Executor
	db       accounts.DB
	creator  signer
	donor    signer
	stranger signer
	campaign signer
	nonce    uint64
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	db := accounts.NewMemoryDB()
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		exec:     NewExecutor(db, DefaultConfig(), opts...),
		db:       db,
		creator:  newSigner(t, 1),
		donor:    newSigner(t, 2),
		stranger: newSigner(t, 3),
		campaign: newSigner(t, 4),
	}
	for _, s := range []signer{f.creator, f.donor, f.stranger} {
		require.NoError(t, db.SetAccount(s.pubkey, &accounts.Account{Lamports: startBalance, Owner: sysProgram.ProgramID}))
	}
	return f
}

func (f *fixture) tx(t *testing.T, signers []signer, ixs ...svm.Instruction) *Transaction {
	f.nonce++
	tx := NewTransaction(f.nonce, ixs...)
	keys := make([]ed25519.PrivateKey, len(signers))
	for i, s := range signers {
		keys[i] = s.key
	}
	require.NoError(t, tx.Sign(keys...))
	return tx
}

func (f *fixture) execute(t *testing.T, signers []signer, ixs ...svm.Instruction) *Result {
	result, err := f.exec.Execute(f.tx(t, signers, ixs...))
	require.NoError(t, err)
	return result
}

func (f *fixture) lamports(t *testing.T, pubkey types.Pubkey) uint64 {
	acc, err := f.db.GetAccount(pubkey)
	require.NoError(t, err)
	return acc.Lamports
}

func (f *fixture) stored(t *testing.T) *crowdfund.Campaign {
	acc, err := f.db.GetAccount(f.campaign.pubkey)
	require.NoError(t, err)
	assert.Equal(t, crowdfund.ProgramID, acc.Owner)
	campaign, err := crowdfund.UnmarshalCampaignAccount(acc.Data)
	require.NoError(t, err)
	return campaign
}

func (f *fixture) createCampaign(t *testing.T) *Result {
	campaign := &crowdfund.Campaign{
		Admin:       f.creator.pubkey,
		Name:        "Community garden",
		Description: "Raised beds and a tool shed",
		ImageLink:   "https://example.org/garden.png",
	}
	create, err := crowdfund.NewCreateCampaignInstruction(f.campaign.pubkey, f.creator.pubkey, campaign)
	require.NoError(t, err)

	return f.execute(t, []signer{f.creator, f.campaign},
		sysProgram.CreateAccount(f.creator.pubkey, f.campaign.pubkey, crowdfund.ProgramID, campaignRent, campaignSpace),
		create,
	)
}

func TestCreateCampaign(t *testing.T) {
	f := newFixture(t)

	result := f.createCampaign(t)
	require.NoError(t, result.Err)
	assert.True(t, result.Succeeded())
	assert.EqualValues(t, svm.CUSystemProgramDefault+svm.CUNativeProgramDefault, result.ComputeUnits)

	expected := []types.Pubkey{f.creator.pubkey, f.campaign.pubkey}
	accounts.SortPubkeys(expected)
	assert.Equal(t, expected, result.Modified)

	delta, err := accounts.ComputeDeltaHash(f.db, expected)
	require.NoError(t, err)
	assert.Equal(t, delta, result.DeltaHash)

	campaign := f.stored(t)
	assert.Equal(t, f.creator.pubkey, campaign.Admin)
	assert.Equal(t, "Community garden", campaign.Name)
	assert.Zero(t, campaign.AmountDonated)

	assert.EqualValues(t, campaignRent, f.lamports(t, f.campaign.pubkey))
	assert.EqualValues(t, startBalance-campaignRent, f.lamports(t, f.creator.pubkey))
	assert.Contains(t, result.Logs, "Program log: CreateAccount: success")
}

func TestDonateAndWithdraw(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.createCampaign(t).Err)

	donate := f.execute(t, []signer{f.donor},
		crowdfund.NewDonateInstruction(f.campaign.pubkey, f.donor.pubkey, 1_000_000))
	require.NoError(t, donate.Err)
	assert.EqualValues(t, svm.CUNativeProgramDefault+svm.CUInvokeBase+svm.CUSystemProgramDefault, donate.ComputeUnits)

	assert.EqualValues(t, 1_000_000, f.stored(t).AmountDonated)
	assert.EqualValues(t, campaignRent+1_000_000, f.lamports(t, f.campaign.pubkey))
	assert.EqualValues(t, startBalance-1_000_000, f.lamports(t, f.donor.pubkey))
	assert.Contains(t, donate.Logs, "Program "+sysProgram.ProgramID.String()+" invoke [2]")

	withdraw := f.execute(t, []signer{f.creator},
		crowdfund.NewWithdrawInstruction(f.campaign.pubkey, f.creator.pubkey, 400_000))
	require.NoError(t, withdraw.Err)

	assert.EqualValues(t, campaignRent+600_000, f.lamports(t, f.campaign.pubkey))
	assert.EqualValues(t, startBalance-campaignRent+400_000, f.lamports(t, f.creator.pubkey))
	// Withdrawals move lamports only.
	assert.EqualValues(t, 1_000_000, f.stored(t).AmountDonated)

	// The rent floor stays in the account.
	tooMuch := f.execute(t, []signer{f.creator},
		crowdfund.NewWithdrawInstruction(f.campaign.pubkey, f.creator.pubkey, 600_001))
	assert.ErrorIs(t, tooMuch.Err, crowdfund.ErrInsufficientFunds)

	all := f.execute(t, []signer{f.creator},
		crowdfund.NewWithdrawInstruction(f.campaign.pubkey, f.creator.pubkey, 600_000))
	require.NoError(t, all.Err)
	assert.EqualValues(t, campaignRent, f.lamports(t, f.campaign.pubkey))
}

func TestWithdrawCampaignAsAdmin(t *testing.T) {
	f := newFixture(t)

	campaign := &crowdfund.Campaign{Admin: f.campaign.pubkey, Name: "Self-administered"}
	create, err := crowdfund.NewCreateCampaignInstruction(f.campaign.pubkey, f.campaign.pubkey, campaign)
	require.NoError(t, err)
	created := f.execute(t, []signer{f.creator, f.campaign},
		sysProgram.CreateAccount(f.creator.pubkey, f.campaign.pubkey, crowdfund.ProgramID, campaignRent+1_000_000, campaignSpace),
		create,
	)
	require.NoError(t, created.Err)

	withdraw := f.execute(t, []signer{f.campaign},
		crowdfund.NewWithdrawInstruction(f.campaign.pubkey, f.campaign.pubkey, 500_000))
	require.NoError(t, withdraw.Err)
	assert.Empty(t, withdraw.Modified)
	assert.EqualValues(t, campaignRent+1_000_000, f.lamports(t, f.campaign.pubkey))

	tooMuch := f.execute(t, []signer{f.campaign},
		crowdfund.NewWithdrawInstruction(f.campaign.pubkey, f.campaign.pubkey, 1_000_001))
	assert.ErrorIs(t, tooMuch.Err, crowdfund.ErrInsufficientFunds)
	assert.EqualValues(t, campaignRent+1_000_000, f.lamports(t, f.campaign.pubkey))
}

func TestWithdrawByStranger(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.createCampaign(t).Err)

	result := f.execute(t, []signer{f.stranger},
		crowdfund.NewWithdrawInstruction(f.campaign.pubkey, f.stranger.pubkey, 1))
	assert.ErrorIs(t, result.Err, crowdfund.ErrUnauthorized)
	assert.Empty(t, result.Modified)
	assert.EqualValues(t, campaignRent, f.lamports(t, f.campaign.pubkey))
}

func TestFailedTransactionIsAtomic(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.createCampaign(t).Err)

	result := f.execute(t, []signer{f.donor, f.creator},
		crowdfund.NewDonateInstruction(f.campaign.pubkey, f.donor.pubkey, 5_000),
		crowdfund.NewWithdrawInstruction(f.campaign.pubkey, f.creator.pubkey, 10_000),
	)
	require.Error(t, result.Err)

	var ixErr *InstructionError
	require.ErrorAs(t, result.Err, &ixErr)
	assert.Equal(t, 1, ixErr.Index)
	assert.ErrorIs(t, result.Err, crowdfund.ErrInsufficientFunds)

	assert.Empty(t, result.Modified)
	assert.True(t, result.DeltaHash.IsZero())
	assert.Zero(t, f.stored(t).AmountDonated)
	assert.EqualValues(t, campaignRent, f.lamports(t, f.campaign.pubkey))
	assert.EqualValues(t, startBalance, f.lamports(t, f.donor.pubkey))
}

func TestDonateToForgedCampaign(t *testing.T) {
	f := newFixture(t)

	// A system-owned account holding a well-formed record is not a campaign.
	record, err := (&crowdfund.Campaign{Admin: f.stranger.pubkey, Name: "fake"}).Marshal()
	require.NoError(t, err)
	data := make([]byte, campaignSpace)
	copy(data, record)
	require.NoError(t, f.db.SetAccount(f.campaign.pubkey, &accounts.Account{
		Lamports: campaignRent,
		Data:     data,
		Owner:    sysProgram.ProgramID,
	}))

	result := f.execute(t, []signer{f.donor},
		crowdfund.NewDonateInstruction(f.campaign.pubkey, f.donor.pubkey, 1_000))
	assert.ErrorIs(t, result.Err, crowdfund.ErrWrongAccountOwner)
	assert.EqualValues(t, startBalance, f.lamports(t, f.donor.pubkey))
}

func TestReplayRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.createCampaign(t).Err)

	tx := f.tx(t, []signer{f.donor}, crowdfund.NewDonateInstruction(f.campaign.pubkey, f.donor.pubkey, 100))
	result, err := f.exec.Execute(tx)
	require.NoError(t, err)
	require.NoError(t, result.Err)

	_, err = f.exec.Execute(tx)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.EqualValues(t, 100, f.stored(t).AmountDonated)
}

func TestReplayRejectedAfterPruning(t *testing.T) {
	config := journal.DefaultConfig(filepath.Join(t.TempDir(), "receipts.db"))
	config.Retain = 2
	j, err := journal.Open(config)
	require.NoError(t, err)
	defer j.Close()

	f := newFixture(t, WithJournal(j))
	require.NoError(t, f.createCampaign(t).Err)

	tx := f.tx(t, []signer{f.donor}, crowdfund.NewDonateInstruction(f.campaign.pubkey, f.donor.pubkey, 1_000_000))
	result, err := f.exec.Execute(tx)
	require.NoError(t, err)
	require.NoError(t, result.Err)

	require.NoError(t, f.execute(t, []signer{f.stranger}, sysProgram.Transfer(f.stranger.pubkey, f.creator.pubkey, 1)).Err)
	require.NoError(t, f.execute(t, []signer{f.stranger}, sysProgram.Transfer(f.stranger.pubkey, f.creator.pubkey, 1)).Err)

	_, err = j.Get(tx.Signature())
	require.ErrorIs(t, err, journal.ErrReceiptNotFound)

	_, err = f.exec.Execute(tx)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.EqualValues(t, startBalance-1_000_000, f.lamports(t, f.donor.pubkey))
	assert.EqualValues(t, 1_000_000, f.stored(t).AmountDonated)
}

func TestReceiptFailureConsumesSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.db")
	j, err := journal.Open(journal.DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	// A read-only journal answers lookups but refuses every receipt.
	config := journal.DefaultConfig(path)
	config.ReadOnly = true
	j, err = journal.Open(config)
	require.NoError(t, err)
	defer j.Close()

	f := newFixture(t, WithJournal(j))
	tx := f.tx(t, []signer{f.donor}, sysProgram.Transfer(f.donor.pubkey, f.stranger.pubkey, 500))

	result, err := f.exec.Execute(tx)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Succeeded())
	assert.Len(t, result.Modified, 2)
	assert.EqualValues(t, startBalance-500, f.lamports(t, f.donor.pubkey))

	_, err = f.exec.Execute(tx)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.EqualValues(t, startBalance-500, f.lamports(t, f.donor.pubkey))
	assert.EqualValues(t, startBalance+500, f.lamports(t, f.stranger.pubkey))
}

func TestSignatureVerification(t *testing.T) {
	f := newFixture(t)

	tx := f.tx(t, []signer{f.donor}, sysProgram.Transfer(f.donor.pubkey, f.stranger.pubkey, 1))
	tx.Message.Nonce++
	_, err := f.exec.Execute(tx)
	assert.ErrorIs(t, err, ErrSignatureVerification)

	unsigned := NewTransaction(99, sysProgram.Transfer(f.donor.pubkey, f.stranger.pubkey, 1))
	_, err = f.exec.Execute(unsigned)
	assert.ErrorIs(t, err, ErrMissingSignature)

	err = unsigned.Sign(f.stranger.key)
	assert.Error(t, err)

	assert.EqualValues(t, startBalance, f.lamports(t, f.donor.pubkey))
}

func TestSkipSignatureVerification(t *testing.T) {
	db := accounts.NewMemoryDB()
	defer db.Close()
	from, to := types.Pubkey{1}, types.Pubkey{2}
	require.NoError(t, db.SetAccount(from, &accounts.Account{Lamports: 100}))

	config := DefaultConfig()
	config.SkipSignatureVerification = true
	exec := NewExecutor(db, config)

	tx := NewTransaction(1, sysProgram.Transfer(from, to, 40))
	tx.Signatures = []types.Signature{{9}}
	result, err := exec.Execute(tx)
	require.NoError(t, err)
	require.NoError(t, result.Err)

	acc, err := db.GetAccount(to)
	require.NoError(t, err)
	assert.EqualValues(t, 40, acc.Lamports)
}

func TestUnknownProgram(t *testing.T) {
	f := newFixture(t)
	result := f.execute(t, []signer{f.donor}, svm.Instruction{
		ProgramID: types.Pubkey{0xee},
		Accounts:  []svm.AccountMeta{svm.NewAccountMeta(f.donor.pubkey, true)},
	})
	assert.ErrorIs(t, result.Err, ErrUnknownProgram)
}

// programFunc adapts a function to svm.Program.
type programFunc func(ctx svm.InvokeContext, data []byte) error

func (fn programFunc) Process(ctx svm.InvokeContext, data []byte) error {
	return fn(ctx, data)
}

var testProgramID = types.Pubkey{0x7e, 0x57}

func TestHostRules(t *testing.T) {
	tests := []struct {
		name     string
		writable bool
		program  programFunc
		wantErr  error
	}{
		{
			name:     "debit unowned account",
			writable: true,
			program: func(ctx svm.InvokeContext, _ []byte) error {
				to, _ := ctx.GetAccount(0)
				from, _ := ctx.GetAccount(1)
				from.Lamports -= 10
				to.Lamports += 10
				return nil
			},
			wantErr: ErrExternalLamportSpend,
		},
		{
			name:     "mint lamports",
			writable: true,
			program: func(ctx svm.InvokeContext, _ []byte) error {
				to, _ := ctx.GetAccount(1)
				to.Lamports += 10
				return nil
			},
			wantErr: ErrUnbalancedInstruction,
		},
		{
			name:     "modify unowned data",
			writable: true,
			program: func(ctx svm.InvokeContext, _ []byte) error {
				to, _ := ctx.GetAccount(1)
				to.Data = []byte{1}
				return nil
			},
			wantErr: ErrExternalDataModified,
		},
		{
			name:     "credit read-only account",
			writable: false,
			program: func(ctx svm.InvokeContext, _ []byte) error {
				from, _ := ctx.GetAccount(0)
				to, _ := ctx.GetAccount(1)
				from.Lamports -= 10
				to.Lamports += 10
				return nil
			},
			wantErr: ErrReadonlyLamportChange,
		},
		{
			name:     "reassign unowned account",
			writable: true,
			program: func(ctx svm.InvokeContext, _ []byte) error {
				to, _ := ctx.GetAccount(1)
				to.Owner = testProgramID
				return nil
			},
			wantErr: ErrModifiedOwner,
		},
		{
			name:     "change rent epoch",
			writable: true,
			program: func(ctx svm.InvokeContext, _ []byte) error {
				to, _ := ctx.GetAccount(1)
				to.RentEpoch = 7
				return nil
			},
			wantErr: ErrRentEpochModified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithProgram(testProgramID, "test", tt.program))
			owned := types.Pubkey{0x0d}
			require.NoError(t, f.db.SetAccount(owned, &accounts.Account{Lamports: 1_000, Owner: testProgramID}))

			// Account 0 is owned by the test program, account 1 is not.
			ix := svm.Instruction{
				ProgramID: testProgramID,
				Accounts: []svm.AccountMeta{
					svm.NewAccountMeta(owned, false),
					{Pubkey: f.stranger.pubkey, IsSigner: true, IsWritable: tt.writable},
				},
			}
			result := f.execute(t, []signer{f.stranger}, ix)
			assert.ErrorIs(t, result.Err, tt.wantErr)
			assert.EqualValues(t, startBalance, f.lamports(t, f.stranger.pubkey))
			assert.EqualValues(t, 1_000, f.lamports(t, owned))
		})
	}
}

func TestCPIPrivilegeEscalation(t *testing.T) {
	program := programFunc(func(ctx svm.InvokeContext, _ []byte) error {
		victim, _ := ctx.GetAccount(0)
		thief, _ := ctx.GetAccount(1)
		return ctx.Invoke(sysProgram.Transfer(victim.Key, thief.Key, 1))
	})
	f := newFixture(t, WithProgram(testProgramID, "test", program))

	result := f.execute(t, []signer{f.stranger}, svm.Instruction{
		ProgramID: testProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(f.donor.pubkey, false),
			svm.NewAccountMeta(f.stranger.pubkey, true),
		},
	})
	assert.ErrorIs(t, result.Err, ErrPrivilegeEscalation)
	assert.EqualValues(t, startBalance, f.lamports(t, f.donor.pubkey))
}

func TestCPIDepth(t *testing.T) {
	var calls int
	program := programFunc(func(ctx svm.InvokeContext, _ []byte) error {
		calls++
		payer, _ := ctx.GetAccount(0)
		return ctx.Invoke(svm.Instruction{
			ProgramID: testProgramID,
			Accounts:  []svm.AccountMeta{svm.NewReadonlyAccountMeta(payer.Key, true)},
		})
	})
	f := newFixture(t, WithProgram(testProgramID, "test", program))

	result := f.execute(t, []signer{f.stranger}, svm.Instruction{
		ProgramID: testProgramID,
		Accounts:  []svm.AccountMeta{svm.NewReadonlyAccountMeta(f.stranger.pubkey, true)},
	})
	assert.ErrorIs(t, result.Err, ErrCallDepth)
	assert.Equal(t, svm.CPIDepthMax, calls)
}

func TestSysvarIsReadonly(t *testing.T) {
	var writable bool
	program := programFunc(func(ctx svm.InvokeContext, _ []byte) error {
		sysvar, _ := ctx.GetAccount(1)
		writable = sysvar.IsWritable
		return nil
	})
	f := newFixture(t, WithProgram(testProgramID, "test", program))

	result := f.execute(t, []signer{f.stranger}, svm.Instruction{
		ProgramID: testProgramID,
		Accounts: []svm.AccountMeta{
			svm.NewAccountMeta(f.stranger.pubkey, true),
			svm.NewAccountMeta(types.SysvarRentAddr, false),
		},
	})
	require.NoError(t, result.Err)
	assert.False(t, writable)
	assert.Empty(t, result.Modified)
}

func TestJournalReceipts(t *testing.T) {
	j, err := journal.Open(journal.DefaultConfig(filepath.Join(t.TempDir(), "receipts.db")))
	require.NoError(t, err)
	defer j.Close()

	f := newFixture(t, WithJournal(j))
	created := f.createCampaign(t)
	require.NoError(t, created.Err)

	failed := f.execute(t, []signer{f.stranger},
		crowdfund.NewWithdrawInstruction(f.campaign.pubkey, f.stranger.pubkey, 1))
	require.Error(t, failed.Err)

	receipt, err := j.Get(created.Signature)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, []types.Pubkey{sysProgram.ProgramID, crowdfund.ProgramID}, receipt.Programs)
	assert.Equal(t, created.Modified, receipt.Modified)
	assert.Equal(t, created.DeltaHash, receipt.DeltaHash)
	assert.Equal(t, created.Logs, receipt.Logs)

	receipt, err = j.Get(failed.Signature)
	require.NoError(t, err)
	assert.False(t, receipt.Succeeded())
	assert.Equal(t, failed.Err.Error(), receipt.Err)

	recent, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, failed.Signature, recent[0].Signature)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.createCampaign(t).Err)

	path := filepath.Join(t.TempDir(), "state.x1cf")
	hash, err := f.exec.Snapshot(path)
	require.NoError(t, err)

	restored := NewExecutor(accounts.NewMemoryDB(), DefaultConfig())
	defer restored.Accounts().Close()
	require.NoError(t, restored.Restore(path))

	restoredHash, err := accounts.ComputeStateHash(restored.Accounts())
	require.NoError(t, err)
	assert.Equal(t, hash, restoredHash)

	acc, err := restored.GetAccount(f.campaign.pubkey)
	require.NoError(t, err)
	assert.Equal(t, crowdfund.ProgramID, acc.Owner)
}

func TestOpenPersistentStores(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfig()
	config.AccountsPath = filepath.Join(dir, "accounts")
	config.JournalPath = filepath.Join(dir, "journal", "receipts.db")

	from, to := types.Pubkey{1}, types.Pubkey{2}
	config.SkipSignatureVerification = true

	exec, err := Open(config)
	require.NoError(t, err)
	require.NoError(t, exec.Accounts().SetAccount(from, &accounts.Account{Lamports: 100}))

	tx := NewTransaction(1, sysProgram.Transfer(from, to, 30))
	tx.Signatures = []types.Signature{{5}}
	result, err := exec.Execute(tx)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.NoError(t, exec.Close())

	exec, err = Open(config)
	require.NoError(t, err)
	defer exec.Close()

	acc, err := exec.GetAccount(to)
	require.NoError(t, err)
	assert.EqualValues(t, 30, acc.Lamports)

	_, err = exec.Execute(tx)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestOpenRequiresJournalForPersistentAccounts(t *testing.T) {
	config := DefaultConfig()
	config.AccountsPath = filepath.Join(t.TempDir(), "accounts")

	_, err := Open(config)
	assert.ErrorIs(t, err, ErrJournalRequired)

	config.AccountsPath = ""
	exec, err := Open(config)
	require.NoError(t, err)
	assert.Nil(t, exec.Journal())
	require.NoError(t, exec.Close())
}
