package runtime

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

var (
	// ErrMissingSignature is returned for a transaction with no signer.
	ErrMissingSignature = errors.New("transaction has no signatures")

	// ErrSignatureVerification is returned when a signature does not match
	// its signer or a required signature is absent.
	ErrSignatureVerification = errors.New("signature verification failed")
)

// Message is the signed part of a transaction.
type Message struct {
	// Nonce distinguishes otherwise identical messages, so that repeating an
	// operation produces a new signature.
	Nonce uint64

	Instructions []svm.Instruction
}

// Signers returns the accounts marked as signers by any instruction, in
// order of first appearance.
func (m *Message) Signers() []types.Pubkey {
	seen := make(map[types.Pubkey]struct{})
	var signers []types.Pubkey
	for _, ix := range m.Instructions {
		for _, meta := range ix.Accounts {
			if !meta.IsSigner {
				continue
			}
			if _, ok := seen[meta.Pubkey]; ok {
				continue
			}
			seen[meta.Pubkey] = struct{}{}
			signers = append(signers, meta.Pubkey)
		}
	}
	return signers
}

// MarshalWithEncoder implements bin.BinaryMarshaler.
func (m Message) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint64(m.Nonce, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteUint32(uint32(len(m.Instructions)), bin.LE); err != nil {
		return err
	}
	for _, ix := range m.Instructions {
		if err := encoder.WriteBytes(ix.ProgramID[:], false); err != nil {
			return err
		}
		if err := encoder.WriteUint32(uint32(len(ix.Accounts)), bin.LE); err != nil {
			return err
		}
		for _, meta := range ix.Accounts {
			if err := encoder.WriteBytes(meta.Pubkey[:], false); err != nil {
				return err
			}
			if err := encoder.WriteBool(meta.IsSigner); err != nil {
				return err
			}
			if err := encoder.WriteBool(meta.IsWritable); err != nil {
				return err
			}
		}
		if err := encoder.WriteBytes(ix.Data, true); err != nil {
			return err
		}
	}
	return nil
}

// Marshal returns the bytes that signers sign.
func (m *Message) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Transaction is a signed message. Signatures are ordered like
// Message.Signers and the first one identifies the transaction.
type Transaction struct {
	Signatures []types.Signature
	Message    Message
}

// NewTransaction creates an unsigned transaction.
func NewTransaction(nonce uint64, instructions ...svm.Instruction) *Transaction {
	return &Transaction{
		Message: Message{
			Nonce:        nonce,
			Instructions: instructions,
		},
	}
}

// Signature returns the transaction id, the zero signature if unsigned.
func (tx *Transaction) Signature() types.Signature {
	if len(tx.Signatures) == 0 {
		return types.Signature{}
	}
	return tx.Signatures[0]
}

// Sign signs the message with the keys of every required signer. Extra
// keys are ignored.
func (tx *Transaction) Sign(keys ...ed25519.PrivateKey) error {
	message, err := tx.Message.Marshal()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	byPubkey := make(map[types.Pubkey]ed25519.PrivateKey, len(keys))
	for _, key := range keys {
		pubkey, err := types.PubkeyFromPublicKey(key.Public().(ed25519.PublicKey))
		if err != nil {
			return err
		}
		byPubkey[pubkey] = key
	}

	signers := tx.Message.Signers()
	signatures := make([]types.Signature, len(signers))
	for i, signer := range signers {
		key, ok := byPubkey[signer]
		if !ok {
			return fmt.Errorf("no key for signer %s", signer)
		}
		copy(signatures[i][:], ed25519.Sign(key, message))
	}
	tx.Signatures = signatures
	return nil
}

// Verify checks that every required signer has a valid signature.
func (tx *Transaction) Verify() error {
	signers := tx.Message.Signers()
	if len(signers) == 0 {
		return ErrMissingSignature
	}
	if len(tx.Signatures) != len(signers) {
		return fmt.Errorf("%w: %d signatures for %d signers",
			ErrSignatureVerification, len(tx.Signatures), len(signers))
	}

	message, err := tx.Message.Marshal()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	for i, signer := range signers {
		if !tx.Signatures[i].Verify(signer, message) {
			return fmt.Errorf("%w: signer %s", ErrSignatureVerification, signer)
		}
	}
	return nil
}
