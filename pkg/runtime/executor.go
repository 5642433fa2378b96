// Package runtime executes crowdfund transactions against an accounts
// database.
//
// The executor is responsible for:
// - Verifying signatures and refusing transactions it has already processed
// - Loading every account a transaction references
// - Running each instruction through its native program, including
//   cross-program invocations
// - Checking the host rules after every program call
// - Committing all changes of a successful transaction in one batch
// - Recording a receipt for every executed transaction
package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
	"github.com/fortiblox/X1-Crowdfund/pkg/accounts"
	"github.com/fortiblox/X1-Crowdfund/pkg/journal"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm/programs/crowdfund"
	sysProgram "github.com/fortiblox/X1-Crowdfund/pkg/svm/programs/system"
)

var (
	// ErrAlreadyProcessed is returned for a transaction whose signature has
	// already been executed.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrJournalRequired is returned by Open when persistent accounts are
	// configured without a journal to guard them against replays.
	ErrJournalRequired = errors.New("persistent accounts require a journal path")
)

// InstructionError reports which top-level instruction failed.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

// Result is the outcome of an executed transaction.
type Result struct {
	Signature types.Signature

	// Err is the reason the transaction failed, nil on success. A failed
	// transaction changes no account.
	Err error

	Logs         []string
	ComputeUnits uint64

	// Modified lists the committed accounts in ascending key order.
	Modified []types.Pubkey

	// DeltaHash commits to the post-state of Modified.
	DeltaHash types.Hash
}

// Succeeded reports whether the transaction committed.
func (r *Result) Succeeded() bool {
	return r.Err == nil
}

type registeredProgram struct {
	name    string
	program svm.Program
	cost    uint64
}

// Option configures an Executor.
type Option func(*Executor)

// WithJournal records a receipt for every executed transaction in j and
// uses it as the replay guard.
func WithJournal(j *journal.Journal) Option {
	return func(e *Executor) {
		e.journal = j
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Executor) {
		e.log = log.WithField("type", "runtime/executor")
	}
}

// WithProgram registers an additional native program.
func WithProgram(id types.Pubkey, name string, program svm.Program) Option {
	return func(e *Executor) {
		e.programs[id] = registeredProgram{name: name, program: program, cost: svm.CUNativeProgramDefault}
	}
}

// Executor executes transactions. Execute calls are serialized.
type Executor struct {
	mu sync.Mutex

	accounts accounts.DB
	journal  *journal.Journal
	programs map[types.Pubkey]registeredProgram
	config   Config
	rent     svm.Rent
	log      *logrus.Entry

	// processed is the replay guard when no journal is configured. It also
	// holds committed signatures the journal failed to record.
	processed map[types.Signature]struct{}

	// ownsStores is set by Open.
	ownsStores bool
}

// NewExecutor creates an executor over db with the System and crowdfund
// programs registered.
func NewExecutor(db accounts.DB, config Config, opts ...Option) *Executor {
	e := &Executor{
		accounts: db,
		programs: map[types.Pubkey]registeredProgram{
			sysProgram.ProgramID: {name: "system", program: sysProgram.NewProcessor(), cost: svm.CUSystemProgramDefault},
			crowdfund.ProgramID:  {name: "crowdfund", program: crowdfund.NewProcessor(), cost: svm.CUNativeProgramDefault},
		},
		config:    config,
		rent:      config.Rent(),
		log:       logrus.StandardLogger().WithField("type", "runtime/executor"),
		processed: make(map[types.Signature]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open creates an executor with the stores named by config: a Badger
// accounts database at AccountsPath (memory when empty) and a journal at
// JournalPath (none when empty). A persistent accounts database needs a
// journal. The stores are closed by Close.
func Open(config Config, opts ...Option) (*Executor, error) {
	if config.AccountsPath != "" && config.JournalPath == "" {
		return nil, ErrJournalRequired
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	var db accounts.DB
	if config.AccountsPath == "" {
		db = accounts.NewMemoryDB()
	} else {
		badgerDB, err := accounts.NewBadgerDB(accounts.DefaultBadgerDBConfig(config.AccountsPath))
		if err != nil {
			return nil, fmt.Errorf("open accounts: %w", err)
		}
		db = badgerDB
	}

	opts = append([]Option{WithLogger(logrus.NewEntry(logger))}, opts...)
	if config.JournalPath != "" {
		journalConfig := journal.DefaultConfig(config.JournalPath)
		journalConfig.Retain = config.JournalRetain
		j, err := journal.Open(journalConfig)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		opts = append(opts, WithJournal(j))
	}

	e := NewExecutor(db, config, opts...)
	e.ownsStores = true
	return e, nil
}

// Accounts returns the accounts database.
func (e *Executor) Accounts() accounts.DB {
	return e.accounts
}

// Journal returns the receipt journal, nil when none is configured.
func (e *Executor) Journal() *journal.Journal {
	return e.journal
}

// Execute runs tx. Transactions that fail during execution are reported in
// Result.Err and leave every account unchanged. An error is returned when
// tx is refused before execution or the result cannot be stored. When only
// the receipt cannot be stored, the committed Result is returned with the
// error and the signature is still consumed.
func (e *Executor) Execute(tx *Transaction) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	sig := tx.Signature()
	log := e.log.WithFields(logrus.Fields{
		"method":    "Execute",
		"signature": sig.String(),
	})

	if len(tx.Signatures) == 0 {
		ObserveRejected()
		return nil, ErrMissingSignature
	}
	processed, err := e.isProcessed(sig)
	if err != nil {
		return nil, err
	}
	if processed {
		ObserveRejected()
		return nil, ErrAlreadyProcessed
	}
	if !e.config.SkipSignatureVerification {
		if err := tx.Verify(); err != nil {
			ObserveRejected()
			return nil, err
		}
	}

	state, err := e.load(tx)
	if err != nil {
		return nil, err
	}

	result := &Result{Signature: sig}
	for i, ix := range tx.Message.Instructions {
		name := e.programName(ix.ProgramID)
		if err := e.invoke(state, ix, 1); err != nil {
			ObserveInstruction(name, resultFailed)
			result.Err = &InstructionError{Index: i, Err: err}
			break
		}
		ObserveInstruction(name, resultSuccess)
	}
	result.Logs = state.logs
	result.ComputeUnits = state.meter.Consumed()

	if result.Err == nil {
		if err := e.commit(state, result); err != nil {
			log.WithError(err).Warn("failure committing accounts")
			return nil, err
		}
	}

	if err := e.record(tx, result); err != nil {
		e.processed[sig] = struct{}{}
		log.WithError(err).Warn("failure recording receipt")
		return result, err
	}

	outcome := resultSuccess
	if result.Err != nil {
		outcome = resultFailed
		log.WithError(result.Err).Debug("transaction failed")
	} else {
		log.WithField("modified", len(result.Modified)).Debug("transaction committed")
	}
	ObserveTransaction(outcome, result.ComputeUnits, time.Since(start))

	return result, nil
}

func (e *Executor) isProcessed(sig types.Signature) (bool, error) {
	if _, ok := e.processed[sig]; ok {
		return true, nil
	}
	if e.journal != nil {
		return e.journal.Has(sig)
	}
	return false, nil
}

// load reads every account referenced by tx. Missing accounts start as
// empty System-owned accounts.
func (e *Executor) load(tx *Transaction) (*txState, error) {
	state := &txState{
		accounts: make(map[types.Pubkey]*txAccount),
		signers:  make(map[types.Pubkey]struct{}),
		meter:    svm.NewComputeMeter(e.config.ComputeLimit),
	}
	for _, signer := range tx.Message.Signers() {
		state.signers[signer] = struct{}{}
	}

	for _, ix := range tx.Message.Instructions {
		for _, meta := range ix.Accounts {
			if _, ok := state.accounts[meta.Pubkey]; ok {
				continue
			}

			acc := &txAccount{key: meta.Pubkey}
			stored, err := e.accounts.GetAccount(meta.Pubkey)
			switch {
			case err == nil:
				acc.original = stored
				acc.current = *stored.Clone()
			case errors.Is(err, accounts.ErrAccountNotFound):
				acc.current = accounts.Account{Owner: sysProgram.ProgramID}
			default:
				return nil, fmt.Errorf("load account %s: %w", meta.Pubkey, err)
			}

			state.accounts[meta.Pubkey] = acc
			state.order = append(state.order, meta.Pubkey)
		}
	}
	return state, nil
}

// invoke runs one instruction at the given call depth and publishes its
// verified changes to state.
func (e *Executor) invoke(state *txState, ix svm.Instruction, depth int) error {
	registered, ok := e.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID)
	}

	metas := ix.Accounts
	if depth == 1 {
		// Signer privileges of a top-level instruction come from the
		// transaction's signatures. Sysvars are never writable.
		metas = make([]svm.AccountMeta, len(ix.Accounts))
		for i, meta := range ix.Accounts {
			_, signed := state.signers[meta.Pubkey]
			metas[i] = svm.AccountMeta{
				Pubkey:     meta.Pubkey,
				IsSigner:   meta.IsSigner && signed,
				IsWritable: meta.IsWritable && !types.IsSysvar(meta.Pubkey),
			}
		}
	}

	if err := state.meter.Consume(registered.cost); err != nil {
		return err
	}

	state.logs = append(state.logs, fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, depth))
	state.stack = append(state.stack, ix.ProgramID)
	defer func() { state.stack = state.stack[:len(state.stack)-1] }()

	inv := newInvocation(e, state, ix.ProgramID, metas, depth)
	err := registered.program.Process(inv, ix.Data)
	if err == nil {
		err = inv.commit()
	}
	if err != nil {
		state.logs = append(state.logs, fmt.Sprintf("Program %s failed: %s", ix.ProgramID, describe(err)))
		return err
	}

	state.logs = append(state.logs, fmt.Sprintf("Program %s success", ix.ProgramID))
	return nil
}

// describe renders err the way it appears in program logs.
func describe(err error) string {
	var custom svm.CustomError
	if errors.As(err, &custom) {
		return fmt.Sprintf("custom program error: %#x (%s)", custom.Code(), custom.Error())
	}
	return err.Error()
}

// commit writes every changed account of state in one batch.
func (e *Executor) commit(state *txState, result *Result) error {
	batch := make(map[types.Pubkey]*accounts.Account)
	for _, key := range state.order {
		acc := state.accounts[key]
		if acc.original == nil && acc.current.IsZero() {
			continue
		}
		if acc.original != nil && accountsEqual(acc.original, &acc.current) {
			continue
		}
		current := acc.current
		batch[key] = &current
	}

	if len(batch) == 0 {
		return nil
	}
	if err := e.accounts.CommitBatch(batch); err != nil {
		return fmt.Errorf("commit accounts: %w", err)
	}

	modified := make([]types.Pubkey, 0, len(batch))
	for key := range batch {
		modified = append(modified, key)
	}
	accounts.SortPubkeys(modified)
	result.Modified = modified

	hash, err := accounts.ComputeDeltaHash(e.accounts, modified)
	if err != nil {
		return fmt.Errorf("compute delta hash: %w", err)
	}
	result.DeltaHash = hash
	return nil
}

// record stores the receipt of an executed transaction.
func (e *Executor) record(tx *Transaction, result *Result) error {
	if e.journal == nil {
		e.processed[result.Signature] = struct{}{}
		return nil
	}

	receipt := &journal.Receipt{
		Signature:    result.Signature,
		Logs:         result.Logs,
		ComputeUnits: result.ComputeUnits,
		Modified:     result.Modified,
		DeltaHash:    result.DeltaHash,
		ProcessedAt:  time.Now().UTC(),
	}
	for _, ix := range tx.Message.Instructions {
		receipt.Programs = append(receipt.Programs, ix.ProgramID)
	}
	if result.Err != nil {
		receipt.Err = result.Err.Error()
	}
	return e.journal.Put(receipt)
}

func (e *Executor) programName(id types.Pubkey) string {
	if registered, ok := e.programs[id]; ok {
		return registered.name
	}
	return "unknown"
}

// GetAccount returns the committed state of pubkey.
func (e *Executor) GetAccount(pubkey types.Pubkey) (*accounts.Account, error) {
	return e.accounts.GetAccount(pubkey)
}

// Snapshot writes the committed accounts to a snapshot file and returns
// the state hash it records.
func (e *Executor) Snapshot(path string) (types.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return accounts.CreateSnapshot(e.accounts, path)
}

// Restore replaces the committed accounts with a snapshot.
func (e *Executor) Restore(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return accounts.LoadSnapshot(e.accounts, path)
}

// Close closes the stores opened by Open. It is a no-op for an executor
// created with NewExecutor.
func (e *Executor) Close() error {
	if !e.ownsStores {
		return nil
	}

	var errs []error
	if e.journal != nil {
		errs = append(errs, e.journal.Close())
	}
	errs = append(errs, e.accounts.Close())
	return errors.Join(errs...)
}

func accountsEqual(a, b *accounts.Account) bool {
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		a.RentEpoch == b.RentEpoch &&
		string(a.Data) == string(b.Data)
}
