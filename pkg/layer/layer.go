// Package layer implements the fixed-width binary layer format (spec
// §4.4): one record per commit inside a store's archive, made of a 256-byte header, a file index, a
// chunk data blob, a Merkle section carrying the full tree (so proofs
// never need to re-derive it from chunk bytes), and a footer checksum.
//
// The header's "magic + version + checksum-over-self-with-the-checksum-
// field-zeroed" shape is a versioned self-describing envelope; what's
// fixed-width here, in place of a CBOR frame, is the layout spec §4.4
// mandates.
package layer

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"time"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
	"github.com/DIG-Network/digstore-sub002/pkg/digerr"
	"github.com/DIG-Network/digstore-sub002/pkg/merkle"
)

// Type identifies the kind of content a Layer carries.
type Type uint8

const (
	// TypeMetadata is the genesis layer: no file content, layer_number 0.
	TypeMetadata Type = 0
	// TypeContent is an ordinary commit layer.
	TypeContent Type = 1
	// TypeRootHistory carries the append-only log of historical root
	// hashes a store has committed. Not named in spec §3's Layer type,
	// but required by the commit pipeline (spec §4.7 step 4) to persist
	// root history as a layer rather than inventing a second file format.
	TypeRootHistory Type = 2
)

const (
	magicHeader = "DIGS"
	magicFooter = "SGID"

	headerSize = 256
	footerSize = 8 // magic(4) + crc32c(4)

	formatVersion = 1
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ChunkRef points at one chunk's contribution to a file's bytes.
type ChunkRef struct {
	ChunkIndex   uint32 // index into Layer.Chunks, in chunk-data order
	OffsetInFile uint64
	Length       uint32
}

// FileEntry is one file recorded by a layer (spec §3).
type FileEntry struct {
	Path     string
	Size     uint64
	Mode     uint32
	MTime    int64
	Chunks   []ChunkRef
	FileHash dighash.Hash
}

// ChunkRecord is one physical chunk stored in a layer's chunk data section.
type ChunkRecord struct {
	Hash   dighash.Hash
	Length uint32
	Data   []byte
}

// Layer is one commit. A Layer built by New carries every chunk's bytes
// in Chunks; a Layer returned by Decode leaves Chunks empty and serves
// chunk bytes lazily through ChunkBytes and RawChunkBytes.
type Layer struct {
	Version     uint16
	Type        Type
	LayerNumber uint32
	ParentHash  dighash.Hash
	Timestamp   int64
	Author      string
	Message     string
	Files       []FileEntry
	Chunks      []ChunkRecord
	MerkleRoot  dighash.Hash
	MerkleTree  *merkle.Tree

	LayerHash dighash.Hash // set by Encode/Decode, SHA-256 of the canonical header

	// rawChunkData and chunkByHash back ChunkBytes's lazy lookups after
	// Decode; Decode never fills Chunks.
	rawChunkData []byte
	chunkByHash  map[dighash.Hash]chunkLocation
	chunkByIndex []dighash.Hash
}

type chunkLocation struct {
	offset int
	length uint32
}

// FileLeafHash is the Merkle leaf digesting a file entry: SHA-256 of the
// entry's path, content hash, size, and a hash binding its full chunk
// ladder (spec §4.9's "chunk-list hash ladder", folded in here rather than
// carried unchecked inside a proof). Binding path into the leaf (rather
// than using FileHash alone) is what lets an inclusion proof attest to a
// (path, content) pair instead of just "this content exists somewhere in
// this layer" — two files with identical bytes at different paths get
// distinct leaves. Binding the ladder and size means a proof that swaps in
// a different chunk hash, or flips a chunk length or offset, no longer
// reconstructs this leaf and fails the Merkle check the same way a
// tampered FileHash already does. chunkHashAt resolves a ChunkRef's
// ChunkIndex to its content hash.
func FileLeafHash(f FileEntry, chunkHashAt func(uint32) (dighash.Hash, bool)) dighash.Hash {
	ladder := ChunkLadderHash(f.Chunks, chunkHashAt)

	buf := make([]byte, 0, len(f.Path)+2*dighash.Size+8)
	buf = append(buf, f.Path...)
	buf = append(buf, f.FileHash[:]...)
	buf = append(buf, ladder[:]...)
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], f.Size)
	buf = append(buf, sizeBuf[:]...)
	return dighash.Sum(buf)
}

// ChunkLadderHash commits to the ordered (chunk_hash, offset, length)
// triple for every chunk ref in refs, in order — the "chunk-list hash
// ladder" spec §4.9 requires an inclusion proof to check against the file
// entry. A ref whose index chunkHashAt cannot resolve yields the zero
// hash, which cannot match any leaf built from a genuine, fully-resolved
// chunk list.
func ChunkLadderHash(refs []ChunkRef, chunkHashAt func(uint32) (dighash.Hash, bool)) dighash.Hash {
	var buf bytes.Buffer
	for _, r := range refs {
		h, ok := chunkHashAt(r.ChunkIndex)
		if !ok {
			return dighash.Hash{}
		}
		buf.Write(h[:])
		writeUint64(&buf, r.OffsetInFile)
		writeUint32(&buf, r.Length)
	}
	return dighash.Sum(buf.Bytes())
}

// New builds a Layer from files and chunks, computing its Merkle root over
// the file entries' leaf hashes (spec §3: "merkle_root = root of a Merkle
// tree whose leaves are the file entries"). author/message are the commit
// attribution spec §3 lists on every Layer; metadata and root-history
// layers, which aren't user commits, pass empty strings for both.
func New(typ Type, layerNumber uint32, parentHash dighash.Hash, files []FileEntry, chunks []ChunkRecord, timestamp int64, author, message string) *Layer {
	chunkHashAt := func(i uint32) (dighash.Hash, bool) {
		if int(i) >= len(chunks) {
			return dighash.Hash{}, false
		}
		return chunks[i].Hash, true
	}
	leaves := make([]dighash.Hash, len(files))
	for i, f := range files {
		leaves[i] = FileLeafHash(f, chunkHashAt)
	}
	tree := merkle.BuildTree(leaves)

	l := &Layer{
		Version:     formatVersion,
		Type:        typ,
		LayerNumber: layerNumber,
		ParentHash:  parentHash,
		Timestamp:   timestamp,
		Author:      author,
		Message:     message,
		Files:       files,
		Chunks:      chunks,
		MerkleRoot:  tree.Root(),
		MerkleTree:  tree,
	}
	return l
}

// NewNow is New with Timestamp set to the current time, for callers that
// don't need deterministic timestamps in tests.
func NewNow(typ Type, layerNumber uint32, parentHash dighash.Hash, files []FileEntry, chunks []ChunkRecord, author, message string) *Layer {
	return New(typ, layerNumber, parentHash, files, chunks, time.Now().Unix(), author, message)
}

// Encode serializes l into the bit-exact binary format of spec §4.4 and
// sets l.LayerHash as a side effect.
func Encode(l *Layer) ([]byte, error) {
	fileIndex, err := encodeFileIndex(l.Files)
	if err != nil {
		return nil, digerr.Wrap(digerr.IO, "layer.Encode", err)
	}
	chunkData := encodeChunkData(l.Chunks)
	merkleSection := encodeMerkleSection(l.MerkleTree)
	commitMeta := encodeCommitMeta(l.Author, l.Message)

	const (
		fileIndexOffset = headerSize
	)
	chunkDataOffset := uint64(fileIndexOffset + len(fileIndex))
	merkleOffset := chunkDataOffset + uint64(len(chunkData))
	commitMetaOffset := merkleOffset + uint64(len(merkleSection))

	header := make([]byte, headerSize)
	copy(header[0:4], magicHeader)
	binary.LittleEndian.PutUint16(header[4:6], l.Version)
	header[6] = byte(l.Type)
	header[7] = 0 // reserved
	binary.LittleEndian.PutUint32(header[8:12], l.LayerNumber)
	copy(header[12:44], l.ParentHash[:])
	binary.LittleEndian.PutUint64(header[44:52], uint64(l.Timestamp))
	binary.LittleEndian.PutUint32(header[52:56], uint32(len(l.Files)))
	binary.LittleEndian.PutUint32(header[56:60], uint32(len(l.Chunks)))
	binary.LittleEndian.PutUint64(header[60:68], uint64(fileIndexOffset))
	binary.LittleEndian.PutUint64(header[68:76], uint64(len(fileIndex)))
	binary.LittleEndian.PutUint64(header[76:84], chunkDataOffset)
	binary.LittleEndian.PutUint64(header[84:92], uint64(len(chunkData)))
	binary.LittleEndian.PutUint64(header[92:100], merkleOffset)
	binary.LittleEndian.PutUint64(header[100:108], uint64(len(merkleSection)))
	copy(header[108:140], l.MerkleRoot[:])
	binary.LittleEndian.PutUint64(header[144:152], commitMetaOffset)
	binary.LittleEndian.PutUint64(header[152:160], uint64(len(commitMeta)))
	// header checksum at [140:144], computed with the field itself zeroed
	binary.LittleEndian.PutUint32(header[140:144], 0)
	headerCRC := crc32.Checksum(header, crcTable)
	binary.LittleEndian.PutUint32(header[140:144], headerCRC)
	// bytes [160:256] are reserved padding, already zero

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(fileIndex)
	buf.Write(chunkData)
	buf.Write(merkleSection)
	buf.Write(commitMeta)

	body := buf.Bytes()
	bodyCRC := crc32.Checksum(body, crcTable)

	buf.WriteString(magicFooter)
	var crcBytes [4]byte
	binary.LittleEndian.PutUint32(crcBytes[:], bodyCRC)
	buf.Write(crcBytes[:])

	out := buf.Bytes()
	l.LayerHash = dighash.Sum(header) // layer_hash is SHA-256 of the canonical header bytes (spec §3)
	return out, nil
}

// Decode parses a serialized layer, eagerly parsing the header, file
// index, and Merkle section (all small, bounded by file/chunk counts) but
// deferring chunk payload materialization to ChunkBytes.
func Decode(data []byte) (*Layer, error) {
	if len(data) < headerSize+footerSize {
		return nil, digerr.New(digerr.CorruptLayer, "layer.Decode").WithPath("truncated header/footer")
	}
	header := data[:headerSize]
	if string(header[0:4]) != magicHeader {
		return nil, digerr.New(digerr.CorruptLayer, "layer.Decode").WithPath("bad header magic")
	}

	version := binary.LittleEndian.Uint16(header[4:6])
	if version != formatVersion {
		return nil, digerr.New(digerr.UnsupportedVersion, "layer.Decode")
	}
	typ := Type(header[6])
	layerNumber := binary.LittleEndian.Uint32(header[8:12])
	var parentHash dighash.Hash
	copy(parentHash[:], header[12:44])
	timestamp := int64(binary.LittleEndian.Uint64(header[44:52]))
	fileCount := binary.LittleEndian.Uint32(header[52:56])
	chunkCount := binary.LittleEndian.Uint32(header[56:60])
	fileIndexOffset := binary.LittleEndian.Uint64(header[60:68])
	fileIndexSize := binary.LittleEndian.Uint64(header[68:76])
	chunkDataOffset := binary.LittleEndian.Uint64(header[76:84])
	chunkDataSize := binary.LittleEndian.Uint64(header[84:92])
	merkleOffset := binary.LittleEndian.Uint64(header[92:100])
	merkleSize := binary.LittleEndian.Uint64(header[100:108])
	var merkleRoot dighash.Hash
	copy(merkleRoot[:], header[108:140])
	commitMetaOffset := binary.LittleEndian.Uint64(header[144:152])
	commitMetaSize := binary.LittleEndian.Uint64(header[152:160])
	storedHeaderCRC := binary.LittleEndian.Uint32(header[140:144])

	headerCopy := make([]byte, headerSize)
	copy(headerCopy, header)
	binary.LittleEndian.PutUint32(headerCopy[140:144], 0)
	if crc32.Checksum(headerCopy, crcTable) != storedHeaderCRC {
		return nil, digerr.New(digerr.CorruptHeader, "layer.Decode").WithPath("header CRC32C mismatch")
	}

	bodyEnd := commitMetaOffset + commitMetaSize
	end := bodyEnd + uint64(footerSize)
	if end > uint64(len(data)) {
		return nil, digerr.New(digerr.CorruptLayer, "layer.Decode").WithPath("truncated body")
	}
	body := data[:bodyEnd]
	footer := data[bodyEnd:end]
	if string(footer[0:4]) != magicFooter {
		return nil, digerr.New(digerr.CorruptLayer, "layer.Decode").WithPath("bad footer magic")
	}
	storedBodyCRC := binary.LittleEndian.Uint32(footer[4:8])
	if crc32.Checksum(body, crcTable) != storedBodyCRC {
		return nil, digerr.New(digerr.ChecksumMismatch, "layer.Decode").WithPath("body CRC32C mismatch")
	}

	fileIndexBytes := data[fileIndexOffset : fileIndexOffset+fileIndexSize]
	files, err := decodeFileIndex(fileIndexBytes, fileCount)
	if err != nil {
		return nil, digerr.Wrap(digerr.CorruptIndex, "layer.Decode", err)
	}

	chunkDataBytes := data[chunkDataOffset : chunkDataOffset+chunkDataSize]
	chunkByHash, chunkByIndex, err := indexChunkData(chunkDataBytes, chunkCount)
	if err != nil {
		return nil, digerr.Wrap(digerr.CorruptChunk, "layer.Decode", err)
	}

	merkleBytes := data[merkleOffset : merkleOffset+merkleSize]
	tree, err := decodeMerkleSection(merkleBytes)
	if err != nil {
		return nil, digerr.Wrap(digerr.CorruptLayer, "layer.Decode", err)
	}

	commitMetaBytes := data[commitMetaOffset:bodyEnd]
	author, message, err := decodeCommitMeta(commitMetaBytes)
	if err != nil {
		return nil, digerr.Wrap(digerr.CorruptLayer, "layer.Decode", err)
	}

	l := &Layer{
		Version:      version,
		Type:         typ,
		LayerNumber:  layerNumber,
		ParentHash:   parentHash,
		Timestamp:    timestamp,
		Author:       author,
		Message:      message,
		Files:        files,
		MerkleRoot:   merkleRoot,
		MerkleTree:   tree,
		LayerHash:    dighash.Sum(header),
		rawChunkData: chunkDataBytes,
		chunkByHash:  chunkByHash,
		chunkByIndex: chunkByIndex,
	}
	return l, nil
}

// ChunkBytes returns the plaintext bytes of the chunk identified by h,
// reading only that chunk's span out of the chunk data section rather
// than materializing the whole layer (spec §4.4's lazy-decode contract).
func (l *Layer) ChunkBytes(h dighash.Hash) ([]byte, error) {
	loc, ok := l.chunkByHash[h]
	if !ok {
		return nil, digerr.New(digerr.NotFound, "layer.ChunkBytes").WithPath(h.Hex())
	}
	if loc.offset+int(loc.length) > len(l.rawChunkData) {
		return nil, digerr.New(digerr.CorruptChunk, "layer.ChunkBytes").WithPath(h.Hex())
	}
	data := l.rawChunkData[loc.offset : loc.offset+int(loc.length)]
	if dighash.Sum(data) != h {
		return nil, digerr.New(digerr.HashMismatch, "layer.ChunkBytes").WithPath(h.Hex())
	}
	return data, nil
}

// RawChunkBytes returns a chunk's bytes exactly as stored in the data
// section, skipping the hash-equality check ChunkBytes performs. Use this
// for chunks encrypted under the zero-knowledge layer (spec §4.10), whose
// stored bytes are ciphertext and cannot be checked against the plaintext
// chunk hash until the caller decrypts them.
func (l *Layer) RawChunkBytes(h dighash.Hash) ([]byte, error) {
	loc, ok := l.chunkByHash[h]
	if !ok {
		return nil, digerr.New(digerr.NotFound, "layer.RawChunkBytes").WithPath(h.Hex())
	}
	if loc.offset+int(loc.length) > len(l.rawChunkData) {
		return nil, digerr.New(digerr.CorruptChunk, "layer.RawChunkBytes").WithPath(h.Hex())
	}
	return l.rawChunkData[loc.offset : loc.offset+int(loc.length)], nil
}

// ChunkHashAt returns the hash of the chunk at the given chunk-data index,
// for resolving a FileEntry's ChunkRef.ChunkIndex fields back to content.
func (l *Layer) ChunkHashAt(index uint32) (dighash.Hash, bool) {
	if int(index) >= len(l.chunkByIndex) {
		return dighash.Hash{}, false
	}
	return l.chunkByIndex[index], true
}

func encodeFileIndex(files []FileEntry) ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range files {
		pathBytes := []byte(f.Path)
		if len(pathBytes) > 0xFFFF {
			return nil, digerr.New(digerr.IO, "layer.encodeFileIndex").WithPath(f.Path)
		}
		writeUint16(&buf, uint16(len(pathBytes)))
		buf.Write(pathBytes)
		writeUint64(&buf, f.Size)
		writeUint32(&buf, f.Mode)
		writeInt64(&buf, f.MTime)
		buf.Write(f.FileHash[:])
		writeUint32(&buf, uint32(len(f.Chunks)))
		for _, c := range f.Chunks {
			writeUint32(&buf, c.ChunkIndex)
			writeUint64(&buf, c.OffsetInFile)
			writeUint32(&buf, c.Length)
		}
	}
	return buf.Bytes(), nil
}

func decodeFileIndex(data []byte, fileCount uint32) ([]FileEntry, error) {
	r := bytes.NewReader(data)
	files := make([]FileEntry, fileCount)
	for i := uint32(0); i < fileCount; i++ {
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
		mtime, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		var fileHash dighash.Hash
		if _, err := io.ReadFull(r, fileHash[:]); err != nil {
			return nil, err
		}
		chunkRefCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		refs := make([]ChunkRef, chunkRefCount)
		for j := uint32(0); j < chunkRefCount; j++ {
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
		files[i] = FileEntry{
			Path:     string(pathBytes),
			Size:     size,
			Mode:     mode,
			MTime:    mtime,
			Chunks:   refs,
			FileHash: fileHash,
		}
	}
	return files, nil
}

// encodeCommitMeta serializes author/message as a small trailing section:
// author_len u16 + author bytes, message_len u32 + message bytes. Spec
// §4.4's fixed 256-byte header has no room for these variable-length
// commit-attribution fields, so they get their own section the same way
// the file index and Merkle section already do, addressed from the
// reserved header bytes at [144:160].
func encodeCommitMeta(author, message string) []byte {
	var buf bytes.Buffer
	authorBytes := []byte(author)
	writeUint16(&buf, uint16(len(authorBytes)))
	buf.Write(authorBytes)
	messageBytes := []byte(message)
	writeUint32(&buf, uint32(len(messageBytes)))
	buf.Write(messageBytes)
	return buf.Bytes()
}

func decodeCommitMeta(data []byte) (author, message string, err error) {
	if len(data) == 0 {
		return "", "", nil
	}
	r := bytes.NewReader(data)
	authorLen, err := readUint16(r)
	if err != nil {
		return "", "", err
	}
	authorBytes := make([]byte, authorLen)
	if _, err := io.ReadFull(r, authorBytes); err != nil {
		return "", "", err
	}
	messageLen, err := readUint32(r)
	if err != nil {
		return "", "", err
	}
	messageBytes := make([]byte, messageLen)
	if _, err := io.ReadFull(r, messageBytes); err != nil {
		return "", "", err
	}
	return string(authorBytes), string(messageBytes), nil
}

func encodeChunkData(chunks []ChunkRecord) []byte {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c.Hash[:])
		writeUint32(&buf, c.Length)
		buf.Write(c.Data)
	}
	return buf.Bytes()
}

func indexChunkData(data []byte, chunkCount uint32) (map[dighash.Hash]chunkLocation, []dighash.Hash, error) {
	r := bytes.NewReader(data)
	byHash := make(map[dighash.Hash]chunkLocation, chunkCount)
	byIndex := make([]dighash.Hash, chunkCount)
	pos := 0
	for i := uint32(0); i < chunkCount; i++ {
		var h dighash.Hash
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, nil, err
		}
		length, err := readUint32(r)
		if err != nil {
			return nil, nil, err
		}
		dataStart := pos + dighash.Size + 4
		byHash[h] = chunkLocation{offset: dataStart, length: length}
		byIndex[i] = h
		if _, err := r.Seek(int64(length), io.SeekCurrent); err != nil {
			return nil, nil, err
		}
		pos = dataStart + int(length)
	}
	return byHash, byIndex, nil
}

// encodeMerkleSection serializes the sorted leaves and every internal
// level so a proof can be built without rehashing chunk data: leaf_count,
// leaves[32B]*, level_count, then per level node_count + nodes[32B]*.
func encodeMerkleSection(tree *merkle.Tree) []byte {
	var buf bytes.Buffer
	leaves := tree.Leaves()
	writeUint32(&buf, uint32(len(leaves)))
	for _, h := range leaves {
		buf.Write(h[:])
	}

	levels := merkleLevels(tree)
	writeUint32(&buf, uint32(len(levels)))
	for _, level := range levels {
		writeUint32(&buf, uint32(len(level)))
		for _, h := range level {
			buf.Write(h[:])
		}
	}
	return buf.Bytes()
}

func decodeMerkleSection(data []byte) (*merkle.Tree, error) {
	r := bytes.NewReader(data)
	leafCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	leaves := make([]dighash.Hash, leafCount)
	for i := range leaves {
		if _, err := io.ReadFull(r, leaves[i][:]); err != nil {
			return nil, err
		}
	}
	// The persisted levels above the leaves are redundant with what
	// BuildTree recomputes deterministically from the sorted leaves, so
	// decoding just rebuilds the tree rather than threading a second
	// constructor through pkg/merkle for a pre-leveled tree.
	levelCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < levelCount; i++ {
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		skip := int64(n) * int64(dighash.Size)
		if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
			return nil, err
		}
	}
	return merkle.BuildTree(leaves), nil
}

// merkleLevels exposes every level of tree for serialization. Building
// the accessor here (rather than on merkle.Tree) keeps the on-disk layout
// concern local to the codec that needs it.
func merkleLevels(tree *merkle.Tree) [][]dighash.Hash {
	leaves := tree.Leaves()
	if len(leaves) == 0 {
		return nil
	}
	levels := [][]dighash.Hash{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([]dighash.Hash, (len(cur)+1)/2)
		// Recompute this level directly rather than reaching into
		// unexported tree state: pairwise-hash the previous level using
		// the same duplicate-last-if-odd rule pkg/merkle uses internally.
		for i := range next {
			left := cur[2*i]
			right := left
			if 2*i+1 < len(cur) {
				right = cur[2*i+1]
			}
			next[i] = hashPairLocal(left, right)
		}
		levels = append(levels, next)
		cur = next
	}
	return levels
}

func hashPairLocal(a, b dighash.Hash) dighash.Hash {
	var buf [2 * dighash.Size]byte
	copy(buf[:dighash.Size], a[:])
	copy(buf[dighash.Size:], b[:])
	return dighash.Sum(buf[:])
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

func writeInt64(buf *bytes.Buffer, v int64) {
	writeUint64(buf, uint64(v))
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

func readInt64(r *bytes.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}
