package staging

import (
	"bytes"
	"testing"

	"github.com/DIG-Network/digstore-sub002/pkg/chunker"
	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
)

func TestAddAndList(t *testing.T) {
	dir := t.TempDir()
	storeID := dighash.Sum([]byte("store"))

	area, err := Open(dir, storeID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := []byte("hello world, this is a staged file")
	entry, err := area.Add("a/b.txt", data, 0644, 100, chunker.DefaultProfile)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if entry.FileHash != dighash.Sum(data) {
		t.Errorf("FileHash mismatch")
	}

	list := area.List()
	if len(list) != 1 || list[0].Path != "a/b.txt" {
		t.Fatalf("List = %+v", list)
	}
}

func TestAddLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	area, err := Open(dir, dighash.Sum([]byte("store")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := area.Add("f.txt", []byte("version one"), 0644, 1, chunker.DefaultProfile); err != nil {
		t.Fatalf("Add v1: %v", err)
	}
	if _, err := area.Add("f.txt", []byte("version two is different"), 0644, 2, chunker.DefaultProfile); err != nil {
		t.Fatalf("Add v2: %v", err)
	}

	list := area.List()
	if len(list) != 1 {
		t.Fatalf("expected exactly one staged entry for repeated path, got %d", len(list))
	}
	if list[0].FileHash != dighash.Sum([]byte("version two is different")) {
		t.Error("last-write-wins: staged entry should reflect the second Add")
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	area, err := Open(dir, dighash.Sum([]byte("store")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := area.Add("f.txt", []byte("data"), 0644, 1, chunker.DefaultProfile); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := area.Remove("f.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(area.List()) != 0 {
		t.Error("expected empty staging area after Remove")
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	area, err := Open(dir, dighash.Sum([]byte("store")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := area.Add("f.txt", []byte("data"), 0644, 1, chunker.DefaultProfile); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := area.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, chunks := area.Snapshot()
	if len(entries) != 0 || len(chunks) != 0 {
		t.Error("expected empty snapshot after Clear")
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	storeID := dighash.Sum([]byte("store"))

	area, err := Open(dir, storeID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data := []byte("persisted across restart")
	if _, err := area.Add("p.txt", data, 0644, 1, chunker.DefaultProfile); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened, err := Open(dir, storeID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	list := reopened.List()
	if len(list) != 1 || list[0].Path != "p.txt" {
		t.Fatalf("List after reopen = %+v", list)
	}

	entries, chunks := reopened.Snapshot()
	if len(entries) != 1 || len(chunks) == 0 {
		t.Fatalf("Snapshot after reopen = entries=%+v chunks=%d", entries, len(chunks))
	}

	var reconstructed bytes.Buffer
	for _, c := range chunks {
		reconstructed.Write(c.Data)
	}
	if !bytes.Equal(reconstructed.Bytes(), data) {
		t.Error("reconstructed staged chunk bytes do not match original data")
	}
}

func TestChunkDedupWithinStagingArea(t *testing.T) {
	dir := t.TempDir()
	area, err := Open(dir, dighash.Sum([]byte("store")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := bytes.Repeat([]byte("same chunk content over and over "), 5000)
	if _, err := area.Add("a.bin", data, 0644, 1, chunker.DefaultProfile); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if _, err := area.Add("b.bin", data, 0644, 1, chunker.DefaultProfile); err != nil {
		t.Fatalf("Add b: %v", err)
	}

	_, chunks := area.Snapshot()
	seen := map[dighash.Hash]bool{}
	for _, c := range chunks {
		if seen[c.Hash] {
			t.Fatalf("chunk %s appears more than once in staging blob", c.Hash.Hex())
		}
		seen[c.Hash] = true
	}
}
