package layer

import (
	"bytes"
	"testing"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
)

func sampleLayer() *Layer {
	chunkA := []byte("hello ")
	chunkB := []byte("world")
	chunks := []ChunkRecord{
		{Hash: dighash.Sum(chunkA), Length: uint32(len(chunkA)), Data: chunkA},
		{Hash: dighash.Sum(chunkB), Length: uint32(len(chunkB)), Data: chunkB},
	}
	fileHash := dighash.Sum(append(append([]byte{}, chunkA...), chunkB...))
	files := []FileEntry{
		{
			Path:  "dir/hello.txt",
			Size:  uint64(len(chunkA) + len(chunkB)),
			Mode:  0644,
			MTime: 1700000000,
			Chunks: []ChunkRef{
				{ChunkIndex: 0, OffsetInFile: 0, Length: uint32(len(chunkA))},
				{ChunkIndex: 1, OffsetInFile: uint64(len(chunkA)), Length: uint32(len(chunkB))},
			},
			FileHash: fileHash,
		},
	}
	return New(TypeContent, 1, dighash.Zero, files, chunks, 1700000000, "tester", "sample commit")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := sampleLayer()
	encoded, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.LayerNumber != l.LayerNumber {
		t.Errorf("LayerNumber = %d, want %d", decoded.LayerNumber, l.LayerNumber)
	}
	if decoded.MerkleRoot != l.MerkleRoot {
		t.Errorf("MerkleRoot mismatch")
	}
	if decoded.LayerHash != l.LayerHash {
		t.Errorf("LayerHash mismatch: got %s want %s", decoded.LayerHash.Hex(), l.LayerHash.Hex())
	}
	if len(decoded.Files) != 1 || decoded.Files[0].Path != "dir/hello.txt" {
		t.Fatalf("unexpected decoded files: %+v", decoded.Files)
	}
	if decoded.Author != "tester" || decoded.Message != "sample commit" {
		t.Errorf("Author/Message = %q/%q, want %q/%q", decoded.Author, decoded.Message, "tester", "sample commit")
	}
}

func TestChunkBytesLazyFetch(t *testing.T) {
	l := sampleLayer()
	encoded, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got, err := decoded.ChunkBytes(dighash.Sum([]byte("hello ")))
	if err != nil {
		t.Fatalf("ChunkBytes: %v", err)
	}
	if !bytes.Equal(got, []byte("hello ")) {
		t.Errorf("ChunkBytes = %q, want %q", got, "hello ")
	}

	if _, err := decoded.ChunkBytes(dighash.Sum([]byte("missing"))); err == nil {
		t.Error("ChunkBytes should fail for an unknown hash")
	}
}

func TestRawChunkBytesSkipsHashCheck(t *testing.T) {
	l := sampleLayer()
	encoded, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got, err := decoded.RawChunkBytes(dighash.Sum([]byte("hello ")))
	if err != nil {
		t.Fatalf("RawChunkBytes: %v", err)
	}
	if !bytes.Equal(got, []byte("hello ")) {
		t.Errorf("RawChunkBytes = %q, want %q", got, "hello ")
	}

	if _, err := decoded.RawChunkBytes(dighash.Sum([]byte("missing"))); err == nil {
		t.Error("RawChunkBytes should fail for an unknown hash")
	}
}

func TestChunkHashAt(t *testing.T) {
	l := sampleLayer()
	encoded, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	h, ok := decoded.ChunkHashAt(0)
	if !ok || h != dighash.Sum([]byte("hello ")) {
		t.Errorf("ChunkHashAt(0) = (%s, %v)", h.Hex(), ok)
	}
	if _, ok := decoded.ChunkHashAt(99); ok {
		t.Error("ChunkHashAt(99) should fail, out of range")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	l := sampleLayer()
	encoded, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	tampered := append([]byte(nil), encoded...)
	tampered[0] = 'X'
	if _, err := Decode(tampered); err == nil {
		t.Error("Decode should reject a corrupted magic header")
	}
}

func TestDecodeRejectsHeaderChecksumMismatch(t *testing.T) {
	l := sampleLayer()
	encoded, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	tampered := append([]byte(nil), encoded...)
	tampered[20] ^= 0xFF // flip a byte inside the header, leaving magic intact
	if _, err := Decode(tampered); err == nil {
		t.Error("Decode should reject a header whose CRC32C no longer matches")
	}
}

func TestDecodeRejectsBodyChecksumMismatch(t *testing.T) {
	l := sampleLayer()
	encoded, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	tampered := append([]byte(nil), encoded...)
	// Flip a byte just past the header (inside the file index), which the
	// body CRC32C covers.
	tampered[headerSize+2] ^= 0xFF
	if _, err := Decode(tampered); err == nil {
		t.Error("Decode should reject a body whose CRC32C no longer matches")
	}
}

func TestEmptyLayerRoundTrip(t *testing.T) {
	l := New(TypeMetadata, 0, dighash.Zero, nil, nil, 0, "", "")
	encoded, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.MerkleRoot != dighash.Zero {
		t.Errorf("empty metadata layer should have zero Merkle root, got %s", decoded.MerkleRoot.Hex())
	}
	if len(decoded.Files) != 0 {
		t.Errorf("expected no files, got %d", len(decoded.Files))
	}
}

func noChunks(uint32) (dighash.Hash, bool) { return dighash.Hash{}, false }

func TestFileLeafHashBindsPath(t *testing.T) {
	fileHash := dighash.Sum([]byte("identical content"))
	a := FileEntry{Path: "a.txt", FileHash: fileHash}
	b := FileEntry{Path: "b.txt", FileHash: fileHash}
	if FileLeafHash(a, noChunks) == FileLeafHash(b, noChunks) {
		t.Error("FileLeafHash should differ for the same content at different paths")
	}
}

func TestFileLeafHashBindsChunkLadder(t *testing.T) {
	fileHash := dighash.Sum([]byte("identical content"))
	refs := []ChunkRef{{ChunkIndex: 0, OffsetInFile: 0, Length: 4}}
	hashes := []dighash.Hash{dighash.Sum([]byte("abcd"))}
	chunkHashAt := func(i uint32) (dighash.Hash, bool) {
		if int(i) >= len(hashes) {
			return dighash.Hash{}, false
		}
		return hashes[i], true
	}
	f := FileEntry{Path: "a.txt", FileHash: fileHash, Size: 4, Chunks: refs}
	base := FileLeafHash(f, chunkHashAt)

	tamperedHash := func(i uint32) (dighash.Hash, bool) { return dighash.Sum([]byte("wxyz")), true }
	if FileLeafHash(f, tamperedHash) == base {
		t.Error("FileLeafHash should change when a chunk hash changes")
	}

	tamperedLen := f
	tamperedLen.Chunks = []ChunkRef{{ChunkIndex: 0, OffsetInFile: 0, Length: 5}}
	if FileLeafHash(tamperedLen, chunkHashAt) == base {
		t.Error("FileLeafHash should change when a chunk length changes")
	}

	tamperedOffset := f
	tamperedOffset.Chunks = []ChunkRef{{ChunkIndex: 0, OffsetInFile: 1, Length: 4}}
	if FileLeafHash(tamperedOffset, chunkHashAt) == base {
		t.Error("FileLeafHash should change when a chunk offset changes")
	}
}

func TestRootHistoryLayerType(t *testing.T) {
	l := New(TypeRootHistory, 0, dighash.Zero, nil, nil, 0, "", "")
	encoded, err := Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != TypeRootHistory {
		t.Errorf("Type = %v, want TypeRootHistory", decoded.Type)
	}
}
