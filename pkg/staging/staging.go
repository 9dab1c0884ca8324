// Package staging implements the on-disk staging area (spec §4.6): files
// and chunks added with `add` before the next `commit`, persisted across
// restarts in two files per store, and replaced last-write-wins when the
// same path is staged twice.
package staging

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/DIG-Network/digstore-sub002/pkg/chunker"
	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
	"github.com/DIG-Network/digstore-sub002/pkg/digerr"
)

// ChunkRef mirrors pkg/layer.ChunkRef so staged files can be handed
// straight to layer.New at commit time.
type ChunkRef struct {
	ChunkIndex   uint32
	OffsetInFile uint64
	Length       uint32
}

// Entry is one staged file.
type Entry struct {
	Path     string
	Size     uint64
	Mode     uint32
	MTime    int64
	Chunks   []ChunkRef
	FileHash dighash.Hash
}

// Chunk is one staged chunk's bytes, unique within the staging area.
type Chunk struct {
	Hash dighash.Hash
	Data []byte
}

// Area is a store's staging area: files queued for the next commit and
// the deduplicated chunk bytes backing them.
type Area struct {
	idxPath  string
	blobPath string

	mu      sync.Mutex
	entries map[string]Entry // by path, last-write-wins
	chunks  map[dighash.Hash]Chunk
	order   []dighash.Hash          // chunk insertion order, for deterministic blob layout
	indexOf map[dighash.Hash]uint32 // chunk hash -> position in order, for O(1) lookup in Add
}

// Open loads (or creates) the staging area for storeID under dir.
func Open(dir string, storeID dighash.Hash) (*Area, error) {
	base := storeID.Hex()
	a := &Area{
		idxPath:  filepath.Join(dir, base+".staging.idx"),
		blobPath: filepath.Join(dir, base+".staging"),
		entries:  make(map[string]Entry),
		chunks:   make(map[dighash.Hash]Chunk),
		indexOf:  make(map[dighash.Hash]uint32),
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Area) load() error {
	idxBytes, err := os.ReadFile(a.idxPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return digerr.Wrap(digerr.IO, "staging.load", err).WithPath(a.idxPath)
	}
	blobBytes, err := os.ReadFile(a.blobPath)
	if err != nil && !os.IsNotExist(err) {
		return digerr.Wrap(digerr.IO, "staging.load", err).WithPath(a.blobPath)
	}

	chunkLocs, order, err := decodeBlob(blobBytes)
	if err != nil {
		return digerr.Wrap(digerr.CorruptChunk, "staging.load", err).WithPath(a.blobPath)
	}
	for h, data := range chunkLocs {
		a.chunks[h] = Chunk{Hash: h, Data: data}
	}
	a.order = order
	for i, h := range order {
		a.indexOf[h] = uint32(i)
	}

	entries, err := decodeIndex(idxBytes)
	if err != nil {
		return digerr.Wrap(digerr.CorruptIndex, "staging.load", err).WithPath(a.idxPath)
	}
	for _, e := range entries {
		a.entries[e.Path] = e
	}
	return nil
}

// Add chunks data via profile, stages it as path (last-write-wins if
// already staged), and persists the staging area atomically.
func (a *Area) Add(path string, data []byte, mode uint32, mtime int64, profile chunker.Profile) (Entry, error) {
	chunks, err := chunker.ChunkAll(bytes.NewReader(data), profile, true)
	if err != nil {
		return Entry{}, digerr.Wrap(digerr.IO, "staging.Add", err).WithPath(path)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	refs := make([]ChunkRef, len(chunks))
	var offset uint64
	for i, c := range chunks {
		if _, exists := a.chunks[c.Hash]; !exists {
			a.chunks[c.Hash] = Chunk{Hash: c.Hash, Data: c.Data}
			a.indexOf[c.Hash] = uint32(len(a.order))
			a.order = append(a.order, c.Hash)
		}
		refs[i] = ChunkRef{
			ChunkIndex:   a.indexOf[c.Hash],
			OffsetInFile: offset,
			Length:       c.Length,
		}
		offset += uint64(c.Length)
	}

	entry := Entry{
		Path:     path,
		Size:     uint64(len(data)),
		Mode:     mode,
		MTime:    mtime,
		Chunks:   refs,
		FileHash: dighash.Sum(data),
	}
	a.entries[path] = entry // last-write-wins, see DESIGN.md Open Question 1

	if err := a.persist(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Remove unstages path, if present.
func (a *Area) Remove(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, path)
	return a.persist()
}

// List returns every currently staged entry, sorted by path.
func (a *Area) List() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// Clear empties the staging area after a successful commit.
func (a *Area) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[string]Entry)
	a.chunks = make(map[dighash.Hash]Chunk)
	a.order = nil
	a.indexOf = make(map[dighash.Hash]uint32)
	return a.persist()
}

// Snapshot returns every staged entry together with the chunk bytes
// backing it, in chunk-blob order, ready to hand to layer.New. The
// caller is responsible for calling Clear once the commit succeeds.
func (a *Area) Snapshot() ([]Entry, []Chunk) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		entries = append(entries, e)
	}
	sortEntries(entries)

	chunks := make([]Chunk, len(a.order))
	for i, h := range a.order {
		chunks[i] = a.chunks[h]
	}
	return entries, chunks
}

func sortEntries(entries []Entry) {
	// insertion sort is fine here: staging areas hold at most a commit's
	// worth of files, not archive-scale leaf counts.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Path < entries[j-1].Path; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func (a *Area) persist() error {
	idxBytes := encodeIndex(a.entries)
	blobBytes := encodeBlob(a.order, a.chunks)

	if err := writeAtomic(a.idxPath, idxBytes); err != nil {
		return digerr.Wrap(digerr.IO, "staging.persist", err).WithPath(a.idxPath)
	}
	if err := writeAtomic(a.blobPath, blobBytes); err != nil {
		return digerr.Wrap(digerr.IO, "staging.persist", err).WithPath(a.blobPath)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encodeIndex(entries map[string]Entry) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(entries)))
	for _, e := range entries {
		pathBytes := []byte(e.Path)
		writeUint16(&buf, uint16(len(pathBytes)))
		buf.Write(pathBytes)
		writeUint64(&buf, e.Size)
		writeUint32(&buf, e.Mode)
		writeUint64(&buf, uint64(e.MTime))
		buf.Write(e.FileHash[:])
		writeUint32(&buf, uint32(len(e.Chunks)))
		for _, c := range e.Chunks {
			writeUint32(&buf, c.ChunkIndex)
			writeUint64(&buf, c.OffsetInFile)
			writeUint32(&buf, c.Length)
		}
	}
	return buf.Bytes()
}

func decodeIndex(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(data)
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, count)
	for i := uint32(0); i < count; i++ {
		pathLen, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBytes); err != nil {
			return nil, err
		}
		size, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		mode, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		mtime, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		var fh dighash.Hash
		if _, err := io.ReadFull(r, fh[:]); err != nil {
			return nil, err
		}
		refCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		refs := make([]ChunkRef, refCount)
		for j := uint32(0); j < refCount; j++ {
			idx, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			off, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			length, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			refs[j] = ChunkRef{ChunkIndex: idx, OffsetInFile: off, Length: length}
		}
		out[i] = Entry{
			Path:     string(pathBytes),
			Size:     size,
			Mode:     mode,
			MTime:    int64(mtime),
			Chunks:   refs,
			FileHash: fh,
		}
	}
	return out, nil
}

func encodeBlob(order []dighash.Hash, chunks map[dighash.Hash]Chunk) []byte {
	var buf bytes.Buffer
	for _, h := range order {
		c := chunks[h]
		buf.Write(c.Hash[:])
		writeUint32(&buf, uint32(len(c.Data)))
		buf.Write(c.Data)
	}
	return buf.Bytes()
}

func decodeBlob(data []byte) (map[dighash.Hash][]byte, []dighash.Hash, error) {
	out := make(map[dighash.Hash][]byte)
	var order []dighash.Hash
	if len(data) == 0 {
		return out, order, nil
	}
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		var h dighash.Hash
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, nil, err
		}
		length, err := readUint32(r)
		if err != nil {
			return nil, nil, err
		}
		chunkData := make([]byte, length)
		if _, err := io.ReadFull(r, chunkData); err != nil {
			return nil, nil, err
		}
		out[h] = chunkData
		order = append(order, h)
	}
	return out, order, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
