// Package dighash implements the SHA-256 hash primitives and the fixed
// 32-byte hash type shared by every other digstore package (chunks, file
// entries, layers, Merkle nodes, store IDs).
package dighash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Size is the length in bytes of a digstore hash.
const Size = sha256.Size

// Hash is a fixed 32-byte SHA-256 digest. The zero value is the all-zero
// hash used as the parent_hash of layer 0.
type Hash [Size]byte

// Zero is the all-zero hash, used as the parent_hash of the genesis layer.
var Zero Hash

// Sum computes the SHA-256 hash of data in one call.
func Sum(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// SumReader streams r through SHA-256 and returns the resulting hash.
func SumReader(r io.Reader) (Hash, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Hash{}, err
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Hasher is an incremental SHA-256 hasher. It satisfies io.Writer so it can
// be used as the write end of a chunk/file reader pipeline.
type Hasher struct {
	h interface {
		io.Writer
		Sum(b []byte) []byte
		Reset()
	}
}

// NewHasher returns a fresh incremental hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write implements io.Writer.
func (hr *Hasher) Write(p []byte) (int, error) {
	return hr.h.Write(p)
}

// Sum returns the hash of everything written so far without resetting state.
func (hr *Hasher) Sum() Hash {
	var out Hash
	copy(out[:], hr.h.Sum(nil))
	return out
}

// Reset clears the hasher so it can be reused.
func (hr *Hasher) Reset() {
	hr.h.Reset()
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns a copy of the raw 32 bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// Hex returns the lower-case hex encoding of h, with no prefix.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer as the hex encoding.
func (h Hash) String() string {
	return h.Hex()
}

// Compare returns -1, 0, or 1 comparing h and other lexicographically on
// their raw bytes, matching the ordering spec §4.1 requires.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// Less reports whether h sorts strictly before other.
func (h Hash) Less(other Hash) bool {
	return h.Compare(other) < 0
}

// Equal reports whether h and other are the same hash.
func (h Hash) Equal(other Hash) bool {
	return h == other
}

// ParseHex decodes a lower-case hex string with no prefix into a Hash.
func ParseHex(s string) (Hash, error) {
	if len(s) != Size*2 {
		return Hash{}, fmt.Errorf("dighash: invalid hex length %d, want %d", len(s), Size*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("dighash: invalid hex: %w", err)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// FromBytes copies b (which must be exactly Size bytes) into a new Hash.
func FromBytes(b []byte) (Hash, error) {
	if len(b) != Size {
		return Hash{}, fmt.Errorf("dighash: invalid byte length %d, want %d", len(b), Size)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MarshalCBOR implements cbor.Marshaler so Hash values can appear directly
// in proof structs encoded via the canonical CBOR codec.
func (h Hash) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(h[:])
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (h *Hash) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("dighash: decoding CBOR hash: %w", err)
	}
	if len(b) != Size {
		return fmt.Errorf("dighash: decoded CBOR byte string has length %d, want %d", len(b), Size)
	}
	copy(h[:], b)
	return nil
}

// Sort sorts a slice of hashes in place, ascending lexicographic order —
// used to build deterministic Merkle leaf order independent of insertion
// order (spec §4.3).
func Sort(hashes []Hash) {
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })
}
