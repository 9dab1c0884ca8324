package store

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
	"github.com/DIG-Network/digstore-sub002/pkg/digerr"
	"github.com/DIG-Network/digstore-sub002/pkg/layer"
)

// metadataBlob is layer 0's payload (spec §4.7 "init"): name, created_at,
// and whether the store was created under zero-knowledge mode. Carried as
// a single synthetic chunk rather than a FileEntry, the same way the
// root-history layer carries its list — layer 0 has no files of its own.
type metadataBlob struct {
	Name      string
	CreatedAt int64
	Encrypted bool
}

func encodeMetadata(m metadataBlob) []byte {
	var buf bytes.Buffer
	nameBytes := []byte(m.Name)
	writeUint32(&buf, uint32(len(nameBytes)))
	buf.Write(nameBytes)
	writeInt64(&buf, m.CreatedAt)
	if m.Encrypted {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func decodeMetadata(data []byte) (metadataBlob, error) {
	r := bytes.NewReader(data)
	nameLen, err := readUint32(r)
	if err != nil {
		return metadataBlob{}, err
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return metadataBlob{}, err
	}
	createdAt, err := readInt64(r)
	if err != nil {
		return metadataBlob{}, err
	}
	encByte, err := r.ReadByte()
	if err != nil {
		return metadataBlob{}, err
	}
	return metadataBlob{Name: string(nameBytes), CreatedAt: createdAt, Encrypted: encByte != 0}, nil
}

// rootHistoryChunk wraps an encoded RootEntry list as the single chunk a
// TypeRootHistory layer carries.
func rootHistoryChunk(entries []RootEntry) layer.ChunkRecord {
	data := encodeRootHistory(entries)
	return layer.ChunkRecord{Hash: dighash.Sum(data), Length: uint32(len(data)), Data: data}
}

func encodeRootHistory(entries []RootEntry) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(entries)))
	for _, e := range entries {
		writeUint32(&buf, e.LayerNumber)
		buf.Write(e.LayerHash[:])
		writeInt64(&buf, e.Timestamp)
	}
	return buf.Bytes()
}

func decodeRootHistory(data []byte) ([]RootEntry, error) {
	r := bytes.NewReader(data)
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]RootEntry, count)
	for i := uint32(0); i < count; i++ {
		num, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		var h dighash.Hash
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, err
		}
		ts, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		out[i] = RootEntry{LayerNumber: num, LayerHash: h, Timestamp: ts}
	}
	return out, nil
}

const zkNonceSize = 12

// encryptChunk encrypts plaintext for storage in the layer data section,
// prefixing the result with the freshly generated nonce so ciphertext and
// nonce travel together (spec §4.10: "stored adjacent to the ciphertext").
func (s *Store) encryptChunk(chunkHash dighash.Hash, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, zkNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, digerr.Wrap(digerr.CryptoFailure, "store.encryptChunk", err)
	}
	ciphertext, err := s.zk.EncryptChunk(s.storeID, chunkHash, plaintext, nonce)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func (s *Store) decryptChunk(chunkHash dighash.Hash, raw []byte) ([]byte, error) {
	if len(raw) < zkNonceSize {
		return nil, digerr.New(digerr.CorruptChunk, "store.decryptChunk").WithPath(chunkHash.Hex())
	}
	nonce, ciphertext := raw[:zkNonceSize], raw[zkNonceSize:]
	return s.zk.DecryptChunk(s.storeID, chunkHash, ciphertext, nonce)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
