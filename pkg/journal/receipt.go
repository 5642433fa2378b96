package journal

import (
	"bytes"
	"errors"
	"time"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
)

var errShortReceipt = errors.New("receipt: length prefix exceeds data")

// Receipt records the outcome of one transaction.
type Receipt struct {
	// Signature is the transaction's first signature.
	Signature types.Signature

	// Sequence is the insertion order, assigned by Put.
	Sequence uint64

	// Programs are the top-level programs invoked, in instruction order.
	Programs []types.Pubkey

	// Err is the failure message, empty on success.
	Err string

	// Logs are the program log lines, including those of failed
	// instructions.
	Logs []string

	// ComputeUnits is the compute consumed.
	ComputeUnits uint64

	// Modified lists the accounts written by the transaction.
	Modified []types.Pubkey

	// DeltaHash commits to the post-state of Modified.
	DeltaHash types.Hash

	// ProcessedAt is when the runtime finished the transaction.
	ProcessedAt time.Time
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool {
	return r.Err == ""
}

// MarshalWithEncoder implements bin.BinaryMarshaler.
func (r Receipt) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(r.Signature[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint64(r.Sequence, bin.LE); err != nil {
		return err
	}
	if err := writePubkeys(encoder, r.Programs); err != nil {
		return err
	}
	if err := encoder.WriteString(r.Err); err != nil {
		return err
	}
	if err := encoder.WriteUint32(uint32(len(r.Logs)), bin.LE); err != nil {
		return err
	}
	for _, line := range r.Logs {
		if err := encoder.WriteString(line); err != nil {
			return err
		}
	}
	if err := encoder.WriteUint64(r.ComputeUnits, bin.LE); err != nil {
		return err
	}
	if err := writePubkeys(encoder, r.Modified); err != nil {
		return err
	}
	if err := encoder.WriteBytes(r.DeltaHash[:], false); err != nil {
		return err
	}
	return encoder.WriteInt64(r.ProcessedAt.UnixNano(), bin.LE)
}

// UnmarshalWithDecoder implements bin.BinaryUnmarshaler.
func (r *Receipt) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	sig, err := decoder.ReadNBytes(types.SignatureSize)
	if err != nil {
		return err
	}
	copy(r.Signature[:], sig)

	if r.Sequence, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if r.Programs, err = readPubkeys(decoder); err != nil {
		return err
	}
	if r.Err, err = decoder.ReadString(); err != nil {
		return err
	}

	n, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	if int(n) > decoder.Remaining() {
		return errShortReceipt
	}
	r.Logs = make([]string, n)
	for i := range r.Logs {
		if r.Logs[i], err = decoder.ReadString(); err != nil {
			return err
		}
	}

	if r.ComputeUnits, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if r.Modified, err = readPubkeys(decoder); err != nil {
		return err
	}

	hash, err := decoder.ReadNBytes(types.HashSize)
	if err != nil {
		return err
	}
	copy(r.DeltaHash[:], hash)

	nanos, err := decoder.ReadInt64(bin.LE)
	if err != nil {
		return err
	}
	r.ProcessedAt = time.Unix(0, nanos).UTC()
	return nil
}

// Marshal returns the stored encoding of r.
func (r *Receipt) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalReceipt decodes a stored receipt.
func UnmarshalReceipt(data []byte) (*Receipt, error) {
	var r Receipt
	if err := bin.NewBorshDecoder(data).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func writePubkeys(encoder *bin.Encoder, keys []types.Pubkey) error {
	if err := encoder.WriteUint32(uint32(len(keys)), bin.LE); err != nil {
		return err
	}
	for _, k := range keys {
		if err := encoder.WriteBytes(k[:], false); err != nil {
			return err
		}
	}
	return nil
}

func readPubkeys(decoder *bin.Decoder) ([]types.Pubkey, error) {
	n, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	if int(n)*types.PubkeySize > decoder.Remaining() {
		return nil, errShortReceipt
	}
	keys := make([]types.Pubkey, n)
	for i := range keys {
		b, err := decoder.ReadNBytes(types.PubkeySize)
		if err != nil {
			return nil, err
		}
		copy(keys[i][:], b)
	}
	return keys, nil
}
