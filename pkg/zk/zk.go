// Package zk implements the optional zero-knowledge layer (spec §4.10):
// a storage-address transform keyed on a publisher public key, per-chunk
// AES-256-GCM encryption, and deterministic decoy generation for reads
// against unknown addresses.
package zk

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
	"github.com/DIG-Network/digstore-sub002/pkg/digerr"
)

const (
	addressDomain    = "digstore_urn_transform_v1:"
	encryptionDomain = "digstore_encryption_key:"
	sizeDomain       = "size_generation"

	nonceSize = 12 // 96 bits, per spec §4.10
)

// algoBytes tags the hash algorithm bound into the address transform.
// Spec §4.10 only ever mandates SHA-256, so this is the sole value in
// use; it exists in the transform to bind the digest choice into T so a
// future algorithm change cannot collide with today's addresses.
var algoBytes = []byte("sha256")

// Transformer applies the address transform, chunk encryption, and decoy
// generation for a single publisher public key.
type Transformer struct {
	pubKey [32]byte
}

// NewTransformer returns a Transformer bound to pubKey.
func NewTransformer(pubKey [32]byte) *Transformer {
	return &Transformer{pubKey: pubKey}
}

// Address computes the transformed storage address T(layerHash) used as
// the archive index key, per spec §4.10.
func (t *Transformer) Address(layerHash dighash.Hash) dighash.Hash {
	urn := "urn:dig:layer:" + layerHash.Hex()

	h := sha256.New()
	h.Write([]byte(addressDomain))
	h.Write(algoBytes)
	writeLenPrefixed(h, t.pubKey[:])
	writeLenPrefixed(h, []byte(urn))

	var out dighash.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func writeLenPrefixed(h interface{ Write([]byte) (int, error) }, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	h.Write(lenBuf[:])
	h.Write(b)
}

// chunkKey derives the AES-256-GCM key for a chunk belonging to storeID,
// per spec §4.10's chunk_urn construction.
func chunkKey(storeID, chunkHash dighash.Hash) [32]byte {
	chunkURN := "urn:dig:chia:" + storeID.Hex() + "/chunk/" + chunkHash.Hex()
	return sha256.Sum256(append([]byte(encryptionDomain), chunkURN...))
}

// EncryptChunk encrypts plaintext for storeID/chunkHash using the given
// 96-bit nonce, which the caller generates and must store adjacent to
// the ciphertext for DecryptChunk.
func (t *Transformer) EncryptChunk(storeID, chunkHash dighash.Hash, plaintext []byte, nonce []byte) (ciphertext []byte, err error) {
	if len(nonce) != nonceSize {
		return nil, digerr.New(digerr.CryptoFailure, "zk.EncryptChunk")
	}
	gcm, err := newGCM(chunkKey(storeID, chunkHash))
	if err != nil {
		return nil, digerr.Wrap(digerr.CryptoFailure, "zk.EncryptChunk", err)
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

// DecryptChunk is the inverse of EncryptChunk.
func (t *Transformer) DecryptChunk(storeID, chunkHash dighash.Hash, ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := newGCM(chunkKey(storeID, chunkHash))
	if err != nil {
		return nil, digerr.Wrap(digerr.CryptoFailure, "zk.DecryptChunk", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, digerr.Wrap(digerr.CryptoFailure, "zk.DecryptChunk", err)
	}
	return plaintext, nil
}

func newGCM(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	return gcm, nil
}

// decoySizeBands mirrors the distribution in spec §4.10, evaluated in
// order against a uniform draw in [0, 1<<32).
var decoySizeBands = []struct {
	cumulative uint32 // upper bound of this band's cumulative weight, out of 1<<32
	min, max   uint64
}{
	{cumulative: uint32(float64(1<<32) * 0.40), min: 1 << 10, max: 100 << 10},
	{cumulative: uint32(float64(1<<32) * 0.75), min: 100 << 10, max: 1 << 20},
	{cumulative: uint32(float64(1<<32) * 0.95), min: 1 << 20, max: 10 << 20},
	{cumulative: ^uint32(0), min: 10 << 20, max: 20 << 20},
}

// Decoy deterministically generates a byte sequence indistinguishable
// from encrypted layer data for the given seed. The same seed always
// produces the same bytes; no error path exists, per spec §4.10's
// "no error path may leak existence" requirement.
func Decoy(seed dighash.Hash) []byte {
	size := decoySize(seed)
	return decoyBytes(seed, size)
}

func decoySize(seed dighash.Hash) uint64 {
	sizeSeed := sha256.Sum256(append(append([]byte{}, seed[:]...), sizeDomain...))
	draw := binary.BigEndian.Uint32(sizeSeed[:4])

	band := decoySizeBands[len(decoySizeBands)-1]
	for _, b := range decoySizeBands {
		if draw <= b.cumulative {
			band = b
			break
		}
	}
	span := band.max - band.min
	if span == 0 {
		return band.min
	}
	offset := binary.BigEndian.Uint32(sizeSeed[4:8])
	return band.min + uint64(offset)%span
}

func decoyBytes(seed dighash.Hash, size uint64) []byte {
	out := make([]byte, 0, size)
	var counter uint64
	for uint64(len(out)) < size {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], counter)
		h := sha256.Sum256(append(append([]byte{}, seed[:]...), buf[:]...))
		out = append(out, h[:]...)
		counter++
	}
	return out[:size]
}

