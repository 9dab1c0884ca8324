package zk

import (
	"bytes"
	"testing"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
)

func testPubKey() [32]byte {
	var pk [32]byte
	for i := range pk {
		pk[i] = byte(i)
	}
	return pk
}

func TestAddressIsDeterministic(t *testing.T) {
	tr := NewTransformer(testPubKey())
	layerHash := dighash.Sum([]byte("layer"))

	a1 := tr.Address(layerHash)
	a2 := tr.Address(layerHash)
	if a1 != a2 {
		t.Error("Address should be deterministic for the same input")
	}
}

func TestAddressDiffersByLayerHash(t *testing.T) {
	tr := NewTransformer(testPubKey())
	a := tr.Address(dighash.Sum([]byte("layer-a")))
	b := tr.Address(dighash.Sum([]byte("layer-b")))
	if a == b {
		t.Error("different layer hashes should transform to different addresses")
	}
}

func TestAddressDiffersByPublicKey(t *testing.T) {
	layerHash := dighash.Sum([]byte("layer"))
	pk1 := testPubKey()
	pk2 := testPubKey()
	pk2[0] ^= 0xff

	a := NewTransformer(pk1).Address(layerHash)
	b := NewTransformer(pk2).Address(layerHash)
	if a == b {
		t.Error("different public keys should transform to different addresses")
	}
}

func TestEncryptDecryptChunkRoundTrip(t *testing.T) {
	tr := NewTransformer(testPubKey())
	storeID := dighash.Sum([]byte("store"))
	chunkHash := dighash.Sum([]byte("chunk"))
	plaintext := []byte("some chunk bytes to protect")
	nonce := bytes.Repeat([]byte{0x01}, 12)

	ciphertext, err := tr.EncryptChunk(storeID, chunkHash, plaintext, nonce)
	if err != nil {
		t.Fatalf("EncryptChunk: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Error("ciphertext should not equal plaintext")
	}

	decrypted, err := tr.DecryptChunk(storeID, chunkHash, ciphertext, nonce)
	if err != nil {
		t.Fatalf("DecryptChunk: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("round trip did not recover the original plaintext")
	}
}

func TestDecryptWrongChunkHashFails(t *testing.T) {
	tr := NewTransformer(testPubKey())
	storeID := dighash.Sum([]byte("store"))
	nonce := bytes.Repeat([]byte{0x02}, 12)

	ciphertext, err := tr.EncryptChunk(storeID, dighash.Sum([]byte("chunk-a")), []byte("secret"), nonce)
	if err != nil {
		t.Fatalf("EncryptChunk: %v", err)
	}
	if _, err := tr.DecryptChunk(storeID, dighash.Sum([]byte("chunk-b")), ciphertext, nonce); err == nil {
		t.Error("expected decryption under the wrong chunk hash to fail")
	}
}

func TestEncryptChunkRejectsBadNonceSize(t *testing.T) {
	tr := NewTransformer(testPubKey())
	_, err := tr.EncryptChunk(dighash.Hash{}, dighash.Hash{}, []byte("x"), []byte("short"))
	if err == nil {
		t.Error("expected error for wrong nonce length")
	}
}

func TestDecoyIsDeterministic(t *testing.T) {
	seed := dighash.Sum([]byte("address-that-does-not-exist"))
	a := Decoy(seed)
	b := Decoy(seed)
	if !bytes.Equal(a, b) {
		t.Error("Decoy must return identical bytes for the same seed")
	}
}

func TestDecoyDiffersByOneBit(t *testing.T) {
	seed1 := dighash.Sum([]byte("address-a"))
	seed2 := seed1
	seed2[0] ^= 0x01

	a := Decoy(seed1)
	b := Decoy(seed2)
	if bytes.Equal(a, b) {
		t.Error("Decoy outputs for different seeds should not match")
	}
}

func TestDecoySizeWithinSpecBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		seed := dighash.Sum([]byte{byte(i), byte(i >> 8)})
		d := Decoy(seed)
		if len(d) < 1<<10 || len(d) > 20<<20 {
			t.Fatalf("decoy size %d out of spec bounds [1KiB, 20MiB]", len(d))
		}
	}
}

func TestDecoySizeDistributionRoughlyMatchesBands(t *testing.T) {
	const n = 2000
	counts := make([]int, 4)
	for i := 0; i < n; i++ {
		seed := dighash.Sum([]byte{byte(i), byte(i >> 8), byte(i >> 16)})
		size := uint64(len(Decoy(seed)))
		switch {
		case size < 100<<10:
			counts[0]++
		case size < 1<<20:
			counts[1]++
		case size < 10<<20:
			counts[2]++
		default:
			counts[3]++
		}
	}
	// Loose bounds: this is a statistical check over a hash-derived
	// distribution, not an exact one; allow generous slack per band.
	want := []float64{0.40, 0.35, 0.20, 0.05}
	for i, w := range want {
		frac := float64(counts[i]) / n
		if frac < w-0.08 || frac > w+0.08 {
			t.Errorf("band %d fraction = %.3f, want ~%.2f", i, frac, w)
		}
	}
}
