package accounts

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/fortiblox/X1-Crowdfund/internal/types"
)

// Hashes commit to account state so two stores, or a store and a snapshot,
// can be compared without a byte-for-byte diff.
//
// Account hash: BLAKE3(lamports || rent_epoch || data || executable || owner || pubkey)
// Merkle leaf:  BLAKE3(0x00 || account_hash)
// Merkle node:  BLAKE3(0x01 || left || right), odd nodes paired with a zero hash
//
// The state hash is the Merkle root over every account hash in pubkey order;
// the delta hash is the same root over a sorted subset of pubkeys.

// ComputeAccountHash computes the hash of a single account.
func ComputeAccountHash(pubkey types.Pubkey, account *Account) types.Hash {
	h := blake3.New()

	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], account.Lamports)
	h.Write(word[:])
	binary.LittleEndian.PutUint64(word[:], account.RentEpoch)
	h.Write(word[:])

	h.Write(account.Data)
	if account.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(account.Owner[:])
	h.Write(pubkey[:])

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeStateHash computes the Merkle root over all accounts in db.
func ComputeStateHash(db DB) (types.Hash, error) {
	var hashes []types.Hash
	err := db.ForEach(func(pubkey types.Pubkey, account *Account) error {
		hashes = append(hashes, ComputeAccountHash(pubkey, account))
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}
	return ComputeMerkleRoot(hashes), nil
}

// ComputeDeltaHash computes the Merkle root over the given accounts. The
// pubkeys are sorted first; deleted accounts contribute a zero hash.
func ComputeDeltaHash(db DB, pubkeys []types.Pubkey) (types.Hash, error) {
	if len(pubkeys) == 0 {
		return types.Hash{}, nil
	}

	sorted := append([]types.Pubkey(nil), pubkeys...)
	SortPubkeys(sorted)

	hashes := make([]types.Hash, 0, len(sorted))
	for _, pubkey := range sorted {
		account, err := db.GetAccount(pubkey)
		if err == ErrAccountNotFound {
			hashes = append(hashes, types.Hash{})
			continue
		}
		if err != nil {
			return types.Hash{}, err
		}
		hashes = append(hashes, ComputeAccountHash(pubkey, account))
	}

	return ComputeMerkleRoot(hashes), nil
}

// ComputeMerkleRoot computes the binary Merkle root of hashes.
func ComputeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.Hash{}
	}

	level := make([]types.Hash, len(hashes))
	for i, h := range hashes {
		level[i] = computeLeafHash(h)
	}

	for len(level) > 1 {
		next := make([]types.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var right types.Hash
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = computeNodeHash(level[i], right)
		}
		level = next
	}

	return level[0]
}

func computeLeafHash(data types.Hash) types.Hash {
	buf := make([]byte, 1+types.HashSize)
	buf[0] = 0x00
	copy(buf[1:], data[:])
	return blake3.Sum256(buf)
}

func computeNodeHash(left, right types.Hash) types.Hash {
	buf := make([]byte, 1+2*types.HashSize)
	buf[0] = 0x01
	copy(buf[1:], left[:])
	copy(buf[1+types.HashSize:], right[:])
	return blake3.Sum256(buf)
}

// SortPubkeys sorts a slice of pubkeys in ascending order.
func SortPubkeys(pubkeys []types.Pubkey) {
	sort.Slice(pubkeys, func(i, j int) bool {
		return bytes.Compare(pubkeys[i][:], pubkeys[j][:]) < 0
	})
}
