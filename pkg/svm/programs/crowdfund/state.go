package crowdfund

import (
	"bytes"
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
)

// Campaign is the record stored in a campaign account.
//
// Layout (Borsh):
//
//	admin           [32]byte
//	name            u32 length | bytes
//	description     u32 length | bytes
//	image_link      u32 length | bytes
//	amount_donated  u64
type Campaign struct {
	Admin         types.Pubkey
	Name          string
	Description   string
	ImageLink     string
	AmountDonated uint64
}

// Size returns the encoded length of c.
func (c *Campaign) Size() int {
	return types.PubkeySize +
		4 + len(c.Name) +
		4 + len(c.Description) +
		4 + len(c.ImageLink) +
		8
}

// MarshalWithEncoder implements bin.BinaryMarshaler.
func (c Campaign) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(c.Admin[:], false); err != nil {
		return err
	}
	if err := encoder.WriteString(c.Name); err != nil {
		return err
	}
	if err := encoder.WriteString(c.Description); err != nil {
		return err
	}
	if err := encoder.WriteString(c.ImageLink); err != nil {
		return err
	}
	return encoder.WriteUint64(c.AmountDonated, bin.LE)
}

// UnmarshalWithDecoder implements bin.BinaryUnmarshaler.
func (c *Campaign) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	admin, err := decoder.ReadNBytes(types.PubkeySize)
	if err != nil {
		return err
	}
	copy(c.Admin[:], admin)

	for _, field := range []*string{&c.Name, &c.Description, &c.ImageLink} {
		s, err := decoder.ReadString()
		if err != nil {
			return err
		}
		if !utf8.ValidString(s) {
			return ErrMalformedRecord
		}
		*field = s
	}

	c.AmountDonated, err = decoder.ReadUint64(bin.LE)
	return err
}

// Marshal returns the Borsh encoding of c.
func (c *Campaign) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, c.Size()))
	if err := bin.NewBorshEncoder(buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalInto encodes c into dst and zero-fills the rest of dst. dst is
// never grown.
func (c *Campaign) MarshalInto(dst []byte) error {
	if c.Size() > len(dst) {
		return ErrAccountDataTooSmall
	}

	encoded, err := c.Marshal()
	if err != nil {
		return ErrMalformedRecord
	}

	n := copy(dst, encoded)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

// UnmarshalCampaignPayload decodes a campaign from instruction data. The
// payload must contain exactly one record.
func UnmarshalCampaignPayload(data []byte) (*Campaign, error) {
	var c Campaign
	decoder := bin.NewBorshDecoder(data)
	if err := decoder.Decode(&c); err != nil {
		return nil, ErrMalformedRecord
	}
	if decoder.Remaining() != 0 {
		return nil, ErrMalformedRecord
	}
	return &c, nil
}

// UnmarshalCampaignAccount decodes a campaign from account data. Account
// buffers may be allocated larger than the record, so trailing zero bytes are
// accepted. Any other trailing byte means the buffer does not hold a record.
func UnmarshalCampaignAccount(data []byte) (*Campaign, error) {
	var c Campaign
	decoder := bin.NewBorshDecoder(data)
	if err := decoder.Decode(&c); err != nil {
		return nil, ErrMalformedRecord
	}

	for _, b := range data[len(data)-decoder.Remaining():] {
		if b != 0 {
			return nil, ErrMalformedRecord
		}
	}
	return &c, nil
}

// WithdrawRequest is the payload of a Withdraw instruction.
type WithdrawRequest struct {
	Amount uint64
}

// Marshal returns the encoded request.
func (r *WithdrawRequest) Marshal() []byte {
	return marshalAmount(r.Amount)
}

// UnmarshalWithdrawRequest decodes a Withdraw payload.
func UnmarshalWithdrawRequest(data []byte) (*WithdrawRequest, error) {
	amount, err := unmarshalAmount(data)
	if err != nil {
		return nil, err
	}
	return &WithdrawRequest{Amount: amount}, nil
}

// DonationRequest is the payload of a Donate instruction.
type DonationRequest struct {
	Amount uint64
}

// Marshal returns the encoded request.
func (r *DonationRequest) Marshal() []byte {
	return marshalAmount(r.Amount)
}

// UnmarshalDonationRequest decodes a Donate payload.
func UnmarshalDonationRequest(data []byte) (*DonationRequest, error) {
	amount, err := unmarshalAmount(data)
	if err != nil {
		return nil, err
	}
	return &DonationRequest{Amount: amount}, nil
}

func marshalAmount(amount uint64) []byte {
	buf := new(bytes.Buffer)
	// Writes to a bytes.Buffer cannot fail.
	_ = bin.NewBorshEncoder(buf).WriteUint64(amount, bin.LE)
	return buf.Bytes()
}

func unmarshalAmount(data []byte) (uint64, error) {
	decoder := bin.NewBorshDecoder(data)
	amount, err := decoder.ReadUint64(bin.LE)
	if err != nil || decoder.Remaining() != 0 {
		return 0, ErrMalformedRecord
	}
	return amount, nil
}
