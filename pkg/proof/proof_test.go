package proof

import (
	"path/filepath"
	"testing"

	"github.com/DIG-Network/digstore-sub002/pkg/archive"
	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
	"github.com/DIG-Network/digstore-sub002/pkg/layer"
)

func buildTestArchive(t *testing.T) (*archive.Archive, dighash.Hash, dighash.Hash) {
	t.Helper()
	dir := t.TempDir()
	storeID := dighash.Sum([]byte("store"))

	arc, err := archive.Create(filepath.Join(dir, "store.dga"), storeID)
	if err != nil {
		t.Fatalf("archive.Create: %v", err)
	}
	t.Cleanup(func() { arc.Close() })

	chunkA := []byte("hello ")
	chunkB := []byte("world, this is chunk two")
	fileHash := dighash.Sum(append(append([]byte{}, chunkA...), chunkB...))
	files := []layer.FileEntry{
		{
			Path:  "docs/readme.txt",
			Size:  uint64(len(chunkA) + len(chunkB)),
			Mode:  0644,
			MTime: 1700000000,
			Chunks: []layer.ChunkRef{
				{ChunkIndex: 0, OffsetInFile: 0, Length: uint32(len(chunkA))},
				{ChunkIndex: 1, OffsetInFile: uint64(len(chunkA)), Length: uint32(len(chunkB))},
			},
			FileHash: fileHash,
		},
		{
			Path:     "docs/other.txt",
			Size:     0,
			FileHash: dighash.Sum(nil),
		},
	}
	chunks := []layer.ChunkRecord{
		{Hash: dighash.Sum(chunkA), Length: uint32(len(chunkA)), Data: chunkA},
		{Hash: dighash.Sum(chunkB), Length: uint32(len(chunkB)), Data: chunkB},
	}

	l := layer.New(layer.TypeContent, 1, dighash.Zero, files, chunks, 1700000000, "tester", "initial commit")
	encoded, err := layer.Encode(l)
	if err != nil {
		t.Fatalf("layer.Encode: %v", err)
	}
	if err := arc.Append(l.LayerHash, encoded); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return arc, storeID, l.LayerHash
}

func TestGenerateAndVerifyInclusionProofWholeFile(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)

	p, err := GenerateInclusionProof(arc, storeID, rootHash, "docs/readme.txt", false, 0, 0)
	if err != nil {
		t.Fatalf("GenerateInclusionProof: %v", err)
	}
	if err := p.Verify(storeID, rootHash); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(p.ChunkHashes) != 2 {
		t.Fatalf("expected 2 chunk hashes covering the whole file, got %d", len(p.ChunkHashes))
	}
}

func TestGenerateAndVerifyInclusionProofRange(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)

	p, err := GenerateInclusionProof(arc, storeID, rootHash, "docs/readme.txt", true, 3, 8)
	if err != nil {
		t.Fatalf("GenerateInclusionProof: %v", err)
	}
	if err := p.Verify(storeID, rootHash); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestInclusionProofRejectsWrongRoot(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	p, err := GenerateInclusionProof(arc, storeID, rootHash, "docs/readme.txt", false, 0, 0)
	if err != nil {
		t.Fatalf("GenerateInclusionProof: %v", err)
	}
	if err := p.Verify(storeID, dighash.Sum([]byte("wrong"))); err == nil {
		t.Error("expected verification to fail against a different root hash")
	}
}

func TestInclusionProofRejectsTamperedLeaf(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	p, err := GenerateInclusionProof(arc, storeID, rootHash, "docs/readme.txt", false, 0, 0)
	if err != nil {
		t.Fatalf("GenerateInclusionProof: %v", err)
	}
	p.FileHash[0] ^= 0xFF
	if err := p.Verify(storeID, rootHash); err == nil {
		t.Error("expected verification to fail after tampering with FileHash")
	}
}

func TestInclusionProofRejectsTamperedChunkHash(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	p, err := GenerateInclusionProof(arc, storeID, rootHash, "docs/readme.txt", false, 0, 0)
	if err != nil {
		t.Fatalf("GenerateInclusionProof: %v", err)
	}
	p.ChunkHashes[0][0] ^= 0xFF
	if err := p.Verify(storeID, rootHash); err == nil {
		t.Error("expected verification to fail after tampering with a ChunkHashes entry")
	}
}

func TestInclusionProofRejectsTamperedChunkLength(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	p, err := GenerateInclusionProof(arc, storeID, rootHash, "docs/readme.txt", false, 0, 0)
	if err != nil {
		t.Fatalf("GenerateInclusionProof: %v", err)
	}
	p.ChunkLengths[0]++
	if err := p.Verify(storeID, rootHash); err == nil {
		t.Error("expected verification to fail after tampering with a ChunkLengths entry")
	}
}

func TestInclusionProofRejectsTamperedChunkOffset(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	p, err := GenerateInclusionProof(arc, storeID, rootHash, "docs/readme.txt", false, 0, 0)
	if err != nil {
		t.Fatalf("GenerateInclusionProof: %v", err)
	}
	p.ChunkOffsets[1]++
	if err := p.Verify(storeID, rootHash); err == nil {
		t.Error("expected verification to fail after tampering with a ChunkOffsets entry")
	}
}

func TestInclusionProofRejectsOutOfRangeClaim(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	if _, err := GenerateInclusionProof(arc, storeID, rootHash, "docs/readme.txt", true, 0, 9999); err == nil {
		t.Error("expected generation to reject an out-of-bounds range")
	}
}

func TestInclusionProofUnknownPath(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	if _, err := GenerateInclusionProof(arc, storeID, rootHash, "nope.txt", false, 0, 0); err == nil {
		t.Error("expected NotFound for an unknown path")
	}
}

func TestInclusionProofEncodeDecodeRoundTrip(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	p, err := GenerateInclusionProof(arc, storeID, rootHash, "docs/readme.txt", false, 0, 0)
	if err != nil {
		t.Fatalf("GenerateInclusionProof: %v", err)
	}

	encoded, err := EncodeInclusionProof(p)
	if err != nil {
		t.Fatalf("EncodeInclusionProof: %v", err)
	}
	decoded, err := DecodeInclusionProof(encoded)
	if err != nil {
		t.Fatalf("DecodeInclusionProof: %v", err)
	}
	if err := decoded.Verify(storeID, rootHash); err != nil {
		t.Fatalf("Verify decoded proof: %v", err)
	}
}

func TestGenerateAndVerifySizeProof(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)

	sp, err := GenerateSizeProof(arc, storeID, rootHash)
	if err != nil {
		t.Fatalf("GenerateSizeProof: %v", err)
	}
	totalSize, err := arc.TotalSize()
	if err != nil {
		t.Fatalf("TotalSize: %v", err)
	}
	if err := sp.Verify(storeID, rootHash, uint64(totalSize)); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestSizeProofRejectsWrongClaimedSize(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	sp, err := GenerateSizeProof(arc, storeID, rootHash)
	if err != nil {
		t.Fatalf("GenerateSizeProof: %v", err)
	}
	if err := sp.Verify(storeID, rootHash, sp.TotalSize+1); err == nil {
		t.Error("expected verification to fail for a wrong claimed size")
	}
}

func TestSizeProofRejectsTamperedLayerSizes(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	sp, err := GenerateSizeProof(arc, storeID, rootHash)
	if err != nil {
		t.Fatalf("GenerateSizeProof: %v", err)
	}
	sp.LayerSizes[0]++
	if err := sp.Verify(storeID, rootHash, sp.TotalSize); err == nil {
		t.Error("expected verification to fail after tampering with a layer size")
	}
}

func TestSizeProofEncodeDecodeRoundTrip(t *testing.T) {
	arc, storeID, rootHash := buildTestArchive(t)
	sp, err := GenerateSizeProof(arc, storeID, rootHash)
	if err != nil {
		t.Fatalf("GenerateSizeProof: %v", err)
	}

	encoded, err := EncodeSizeProof(sp)
	if err != nil {
		t.Fatalf("EncodeSizeProof: %v", err)
	}
	decoded, err := DecodeSizeProof(encoded)
	if err != nil {
		t.Fatalf("DecodeSizeProof: %v", err)
	}
	if err := decoded.Verify(storeID, rootHash, sp.TotalSize); err != nil {
		t.Fatalf("Verify decoded size proof: %v", err)
	}
}
