// Package archive implements the packed single-file archive format (spec
// §4.5): an append-only sequence of encoded layers behind a sorted index,
// with a crash-safe header-swap commit protocol and OS advisory locking
// so only one writer touches a given archive file at a time.
//
// The lock is acquired at Open and released at Close, an RAII-style
// resource-acquisition shape, via github.com/gofrs/flock.
package archive

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
	"github.com/DIG-Network/digstore-sub002/pkg/digerr"
)

const (
	archiveMagic = "DIGA"
	headerSize   = 96
	indexEntrySize = 80
	formatVersion  = 1
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// OpenMode selects the advisory lock an Archive takes on its file.
type OpenMode int

const (
	// ReadOnly takes a shared lock; any number of readers may hold it.
	ReadOnly OpenMode = iota
	// ReadWrite takes an exclusive lock; Open fails with digerr.WriteLocked
	// if another process already holds it.
	ReadWrite
)

// IndexEntry is one 80-byte record in the archive's layer index.
type IndexEntry struct {
	LayerHash dighash.Hash
	Offset    uint64
	Size      uint64
	Checksum  dighash.Hash
}

// AddressTransform maps a plaintext layer hash to the address actually
// stored in the on-disk index. The zero value is the identity transform;
// pkg/zk supplies a non-identity one for zero-knowledge stores (spec §4.10).
type AddressTransform func(dighash.Hash) dighash.Hash

// Archive is an open handle on a packed archive file.
type Archive struct {
	path      string
	mode      OpenMode
	flock     *flock.Flock
	file      *os.File
	mu        sync.Mutex // guards in-process access to index/file below

	StoreID               dighash.Hash
	RootHistoryLayerHash  dighash.Hash
	index                 []IndexEntry // sorted by transformed LayerHash
	indexOffset           uint64
	indexSize             uint64

	// Transform, when non-nil, is applied to every layer hash before it
	// touches the on-disk index (spec §4.10's single chokepoint).
	Transform AddressTransform

	// DecoyFn, when non-nil, supplies a deterministic decoy response for a
	// ReadLayer miss (spec §4.10's "reads against unknown addresses must
	// succeed and return indistinguishable bytes"). It is seeded with the
	// already-transformed address so repeated queries for the same unknown
	// address return the same decoy. pkg/zk.Decoy satisfies this directly.
	DecoyFn func(seed dighash.Hash) []byte
}

func identity(h dighash.Hash) dighash.Hash { return h }

// Create initializes a new, empty archive file at path for storeID.
func Create(path string, storeID dighash.Hash) (*Archive, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, digerr.Wrap(digerr.IO, "archive.Create", err).WithPath(path)
	}

	a := &Archive{
		path:      path,
		mode:      ReadWrite,
		file:      f,
		StoreID:   storeID,
		Transform: identity,
	}
	if err := a.writeHeaderAndIndex(nil); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, digerr.Wrap(digerr.IO, "archive.Create", err).WithPath(path)
	}

	fl := flock.New(lockPath(path))
	locked, err := fl.TryLock()
	if err != nil {
		f.Close()
		return nil, digerr.Wrap(digerr.IO, "archive.Create", err).WithPath(path)
	}
	if !locked {
		f.Close()
		return nil, digerr.New(digerr.WriteLocked, "archive.Create").WithPath(path)
	}
	a.flock = fl
	return a, nil
}

// Open opens an existing archive file at path with the given lock mode.
func Open(path string, mode OpenMode) (*Archive, error) {
	flags := os.O_RDONLY
	if mode == ReadWrite {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, digerr.Wrap(digerr.IO, "archive.Open", err).WithPath(path)
	}

	fl := flock.New(lockPath(path))
	var locked bool
	if mode == ReadWrite {
		locked, err = fl.TryLock()
	} else {
		locked, err = fl.TryRLock()
	}
	if err != nil {
		f.Close()
		return nil, digerr.Wrap(digerr.IO, "archive.Open", err).WithPath(path)
	}
	if !locked {
		f.Close()
		return nil, digerr.New(digerr.WriteLocked, "archive.Open").WithPath(path)
	}

	a := &Archive{path: path, mode: mode, file: f, flock: fl, Transform: identity}
	if err := a.readHeaderAndIndex(); err != nil {
		fl.Unlock()
		f.Close()
		return nil, err
	}
	return a, nil
}

func lockPath(path string) string { return path + ".lock" }

// Close releases the advisory lock and the underlying file handle.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.flock != nil {
		err = a.flock.Unlock()
	}
	if cerr := a.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *Archive) readHeaderAndIndex() error {
	header := make([]byte, headerSize)
	if _, err := a.file.ReadAt(header, 0); err != nil {
		return digerr.Wrap(digerr.CorruptHeader, "archive.readHeaderAndIndex", err).WithPath(a.path)
	}
	if string(header[0:4]) != archiveMagic {
		return digerr.New(digerr.CorruptHeader, "archive.readHeaderAndIndex").WithPath(a.path)
	}
	version := binary.LittleEndian.Uint16(header[4:6])
	if version != formatVersion {
		return digerr.New(digerr.UnsupportedVersion, "archive.readHeaderAndIndex").WithPath(a.path)
	}
	copy(a.StoreID[:], header[8:40])
	layerCount := binary.LittleEndian.Uint32(header[40:44])
	indexOffset := binary.LittleEndian.Uint64(header[44:52])
	indexSize := binary.LittleEndian.Uint64(header[52:60])
	copy(a.RootHistoryLayerHash[:], header[60:92])
	storedCRC := binary.LittleEndian.Uint32(header[92:96])

	check := make([]byte, headerSize)
	copy(check, header)
	binary.LittleEndian.PutUint32(check[92:96], 0)
	if crc32.Checksum(check, crcTable) != storedCRC {
		return digerr.New(digerr.CorruptHeader, "archive.readHeaderAndIndex").WithPath(a.path)
	}

	a.indexOffset = indexOffset
	a.indexSize = indexSize

	raw := make([]byte, indexSize)
	if indexSize > 0 {
		if _, err := a.file.ReadAt(raw, int64(indexOffset)); err != nil {
			return digerr.Wrap(digerr.CorruptIndex, "archive.readHeaderAndIndex", err).WithPath(a.path)
		}
	}
	entries, err := decodeIndex(raw)
	if err != nil {
		return digerr.Wrap(digerr.CorruptIndex, "archive.readHeaderAndIndex", err).WithPath(a.path)
	}
	if uint32(len(entries)) != layerCount {
		return digerr.New(digerr.CorruptIndex, "archive.readHeaderAndIndex").WithPath(a.path)
	}
	a.index = entries
	return nil
}

func decodeIndex(raw []byte) ([]IndexEntry, error) {
	if len(raw)%indexEntrySize != 0 {
		return nil, digerr.New(digerr.CorruptIndex, "archive.decodeIndex")
	}
	n := len(raw) / indexEntrySize
	out := make([]IndexEntry, n)
	for i := 0; i < n; i++ {
		rec := raw[i*indexEntrySize : (i+1)*indexEntrySize]
		var e IndexEntry
		copy(e.LayerHash[:], rec[0:32])
		e.Offset = binary.LittleEndian.Uint64(rec[32:40])
		e.Size = binary.LittleEndian.Uint64(rec[40:48])
		copy(e.Checksum[:], rec[48:80])
		out[i] = e
	}
	return out, nil
}

func encodeIndex(entries []IndexEntry) []byte {
	buf := make([]byte, len(entries)*indexEntrySize)
	for i, e := range entries {
		rec := buf[i*indexEntrySize : (i+1)*indexEntrySize]
		copy(rec[0:32], e.LayerHash[:])
		binary.LittleEndian.PutUint64(rec[32:40], e.Offset)
		binary.LittleEndian.PutUint64(rec[40:48], e.Size)
		copy(rec[48:80], e.Checksum[:])
	}
	return buf
}

// Append writes layerBytes (an already §4.4-encoded layer) to the end of
// the data section, then commits a new index containing it via the
// write-data -> write-new-index -> swap-header protocol of spec §4.5.
func (a *Archive) Append(layerHash dighash.Hash, layerBytes []byte) error {
	if a.mode != ReadWrite {
		return digerr.New(digerr.WriteLocked, "archive.Append").WithPath(a.path)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := a.file.Stat()
	if err != nil {
		return digerr.Wrap(digerr.IO, "archive.Append", err).WithPath(a.path)
	}
	dataOffset := dataSectionStart(info.Size(), a.indexOffset, a.indexSize)

	if _, err := a.file.WriteAt(layerBytes, int64(dataOffset)); err != nil {
		return digerr.Wrap(digerr.IO, "archive.Append", err).WithPath(a.path)
	}
	if err := a.file.Sync(); err != nil {
		return digerr.Wrap(digerr.IO, "archive.Append", err).WithPath(a.path)
	}

	addr := a.Transform(layerHash)
	newEntry := IndexEntry{
		LayerHash: addr,
		Offset:    dataOffset,
		Size:      uint64(len(layerBytes)),
		Checksum:  dighash.Sum(layerBytes),
	}
	newIndex := append(append([]IndexEntry{}, a.index...), newEntry)
	sort.Slice(newIndex, func(i, j int) bool { return newIndex[i].LayerHash.Less(newIndex[j].LayerHash) })

	newIndexBytes := encodeIndex(newIndex)
	newIndexOffset := dataOffset + uint64(len(layerBytes))
	if _, err := a.file.WriteAt(newIndexBytes, int64(newIndexOffset)); err != nil {
		return digerr.Wrap(digerr.IO, "archive.Append", err).WithPath(a.path)
	}
	if err := a.file.Sync(); err != nil {
		return digerr.Wrap(digerr.IO, "archive.Append", err).WithPath(a.path)
	}

	if err := a.writeHeader(uint32(len(newIndex)), newIndexOffset, uint64(len(newIndexBytes))); err != nil {
		return err
	}
	if err := a.file.Sync(); err != nil {
		return digerr.Wrap(digerr.IO, "archive.Append", err).WithPath(a.path)
	}

	a.index = newIndex
	a.indexOffset = newIndexOffset
	a.indexSize = uint64(len(newIndexBytes))
	return nil
}

// SetRootHistoryLayer records which archived layer carries root history,
// persisting it into the header on the next header write.
func (a *Archive) SetRootHistoryLayer(h dighash.Hash) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.RootHistoryLayerHash = h
	return a.writeHeader(uint32(len(a.index)), a.indexOffset, a.indexSize)
}

func (a *Archive) writeHeaderAndIndex(entries []IndexEntry) error {
	indexBytes := encodeIndex(entries)
	indexOffset := uint64(headerSize)
	if _, err := a.file.WriteAt(indexBytes, int64(indexOffset)); err != nil {
		return digerr.Wrap(digerr.IO, "archive.writeHeaderAndIndex", err).WithPath(a.path)
	}
	a.index = entries
	return a.writeHeader(uint32(len(entries)), indexOffset, uint64(len(indexBytes)))
}

func (a *Archive) writeHeader(layerCount uint32, indexOffset, indexSize uint64) error {
	header := make([]byte, headerSize)
	copy(header[0:4], archiveMagic)
	binary.LittleEndian.PutUint16(header[4:6], formatVersion)
	copy(header[8:40], a.StoreID[:])
	binary.LittleEndian.PutUint32(header[40:44], layerCount)
	binary.LittleEndian.PutUint64(header[44:52], indexOffset)
	binary.LittleEndian.PutUint64(header[52:60], indexSize)
	copy(header[60:92], a.RootHistoryLayerHash[:])
	binary.LittleEndian.PutUint32(header[92:96], 0)
	crc := crc32.Checksum(header, crcTable)
	binary.LittleEndian.PutUint32(header[92:96], crc)

	if _, err := a.file.WriteAt(header, 0); err != nil {
		return digerr.Wrap(digerr.IO, "archive.writeHeader", err).WithPath(a.path)
	}
	a.indexOffset = indexOffset
	a.indexSize = indexSize
	return nil
}

// dataSectionStart returns where the next layer should be appended: right
// after the current index region if the file is exactly header+index
// long (fresh archive), otherwise after the current file end, since the
// data section always sits between the header and whatever index region
// is currently live.
func dataSectionStart(fileSize int64, indexOffset, indexSize uint64) uint64 {
	indexEnd := indexOffset + indexSize
	if uint64(fileSize) <= indexEnd {
		return indexEnd
	}
	return uint64(fileSize)
}

// Lookup resolves a plaintext layer hash to its index entry, applying the
// archive's address transform first — the single chokepoint spec §4.10
// requires so readers never bypass the zero-knowledge indirection.
func (a *Archive) Lookup(layerHash dighash.Hash) (IndexEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr := a.Transform(layerHash)
	i := sort.Search(len(a.index), func(i int) bool { return !a.index[i].LayerHash.Less(addr) })
	if i < len(a.index) && a.index[i].LayerHash == addr {
		return a.index[i], true
	}
	return IndexEntry{}, false
}

// ReadLayer reads and returns the raw encoded bytes of the layer whose
// plaintext hash is layerHash.
func (a *Archive) ReadLayer(layerHash dighash.Hash) ([]byte, error) {
	entry, ok := a.Lookup(layerHash)
	if !ok {
		if a.DecoyFn != nil {
			return a.DecoyFn(a.Transform(layerHash)), nil
		}
		return nil, digerr.New(digerr.NotFound, "archive.ReadLayer").WithPath(layerHash.Hex())
	}
	buf := make([]byte, entry.Size)
	a.mu.Lock()
	_, err := a.file.ReadAt(buf, int64(entry.Offset))
	a.mu.Unlock()
	if err != nil {
		return nil, digerr.Wrap(digerr.IO, "archive.ReadLayer", err).WithPath(layerHash.Hex())
	}
	if dighash.Sum(buf) != entry.Checksum {
		return nil, digerr.New(digerr.ChecksumMismatch, "archive.ReadLayer").WithPath(layerHash.Hex())
	}
	return buf, nil
}

// ReadIndexEntry reads the raw bytes an index entry points at directly,
// bypassing Lookup's address transform. Use this when iterating
// IndexSnapshot's entries, whose LayerHash fields are already transformed
// addresses that cannot be un-transformed (the transform is a one-way
// hash) to feed back into ReadLayer.
func (a *Archive) ReadIndexEntry(e IndexEntry) ([]byte, error) {
	buf := make([]byte, e.Size)
	a.mu.Lock()
	_, err := a.file.ReadAt(buf, int64(e.Offset))
	a.mu.Unlock()
	if err != nil {
		return nil, digerr.Wrap(digerr.IO, "archive.ReadIndexEntry", err).WithPath(e.LayerHash.Hex())
	}
	if dighash.Sum(buf) != e.Checksum {
		return nil, digerr.New(digerr.ChecksumMismatch, "archive.ReadIndexEntry").WithPath(e.LayerHash.Hex())
	}
	return buf, nil
}

// LayerCount returns the number of layers currently indexed.
func (a *Archive) LayerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.index)
}

// TotalSize returns the archive file's current byte length, for size
// proofs (spec §4.9) that must read only the header and index.
func (a *Archive) TotalSize() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, err := a.file.Stat()
	if err != nil {
		return 0, digerr.Wrap(digerr.IO, "archive.TotalSize", err).WithPath(a.path)
	}
	return info.Size(), nil
}

// IndexSnapshot returns a copy of the current layer index, sorted by
// transformed hash, for size-proof generation and index scans such as
// pkg/store's search for the metadata layer.
func (a *Archive) IndexSnapshot() []IndexEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]IndexEntry, len(a.index))
	copy(out, a.index)
	return out
}

// ReadAll returns the archive file's entire current byte content (header,
// index, and every appended layer), for URN resolution with no path
// component (spec §4.8: "omitted path = entire store archive").
func (a *Archive) ReadAll() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, err := a.file.Stat()
	if err != nil {
		return nil, digerr.Wrap(digerr.IO, "archive.ReadAll", err).WithPath(a.path)
	}
	buf := make([]byte, info.Size())
	if _, err := a.file.ReadAt(buf, 0); err != nil {
		return nil, digerr.Wrap(digerr.IO, "archive.ReadAll", err).WithPath(a.path)
	}
	return buf, nil
}

