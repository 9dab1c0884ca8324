// Package store implements the store engine (spec §4.7): init/open, the
// atomic commit pipeline, retrieval, and root history, wiring together
// pkg/staging, pkg/layer, pkg/archive, and (when a publisher public key is
// configured) pkg/zk. Store is the single exported handle — no
// process-global state; a caller opens one, uses it, and closes it.
package store

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/DIG-Network/digstore-sub002/pkg/archive"
	"github.com/DIG-Network/digstore-sub002/pkg/chunker"
	"github.com/DIG-Network/digstore-sub002/pkg/digconfig"
	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
	"github.com/DIG-Network/digstore-sub002/pkg/digerr"
	"github.com/DIG-Network/digstore-sub002/pkg/layer"
	"github.com/DIG-Network/digstore-sub002/pkg/staging"
	"github.com/DIG-Network/digstore-sub002/pkg/zk"
)

// RootEntry is one record in the root history (spec §3): the layer
// number, its hash, and the commit timestamp.
type RootEntry struct {
	LayerNumber uint32
	LayerHash   dighash.Hash
	Timestamp   int64
}

// Store is a handle on one open digstore archive plus its staging area.
// A Store holds the archive's advisory lock from Init or Open until Close:
// exclusive for Init and for archive.ReadWrite, shared for archive.ReadOnly.
// staging's own mutex (inside pkg/staging) is acquired only to snapshot
// and to clear, never held across the archive append (spec §5).
type Store struct {
	mu sync.Mutex // serializes Commit against this handle

	arc     *archive.Archive
	staging *staging.Area
	profile chunker.Profile
	zk      *zk.Transformer // nil unless a publisher public key is configured

	storeID  dighash.Hash
	metaHash dighash.Hash // hash of the layer-0 metadata layer
	root     dighash.Hash // current root layer hash, zero if no content committed yet
	layerN   uint32       // layer_number of the current root, 0 if none
	history  []RootEntry  // newest-last, mirrors the root-history layer's contents
}

// Options bundle the optional knobs Open/Init read from digconfig.Store.
type Options struct {
	Mode   archive.OpenMode
	Config digconfig.Store
}

// Init creates a new store archive at path. If storeID is nil a fresh
// one is generated from crypto/rand (spec §3: "generated ... from a
// high-entropy source. Never derived from user data").
func Init(path string, storeID *dighash.Hash, cfg digconfig.Store) (*Store, error) {
	sid, err := resolveStoreID(storeID)
	if err != nil {
		return nil, digerr.Wrap(digerr.IO, "store.Init", err).WithPath(path)
	}

	arc, err := archive.Create(path, sid)
	if err != nil {
		return nil, err
	}

	s := &Store{arc: arc, storeID: sid, profile: chunker.DefaultProfile}
	if err := s.configure(cfg); err != nil {
		arc.Close()
		return nil, err
	}

	meta := encodeMetadata(metadataBlob{
		Name:      userName(cfg),
		CreatedAt: time.Now().Unix(),
		Encrypted: s.zk != nil,
	})
	l := layer.New(layer.TypeMetadata, 0, dighash.Zero, nil,
		[]layer.ChunkRecord{{Hash: dighash.Sum(meta), Length: uint32(len(meta)), Data: meta}}, time.Now().Unix(), "", "")
	encoded, err := layer.Encode(l)
	if err != nil {
		arc.Close()
		return nil, err
	}
	if err := arc.Append(l.LayerHash, encoded); err != nil {
		arc.Close()
		return nil, err
	}
	s.metaHash = l.LayerHash

	st, err := staging.Open(filepath.Dir(path), sid)
	if err != nil {
		arc.Close()
		return nil, err
	}
	s.staging = st
	return s, nil
}

func resolveStoreID(storeID *dighash.Hash) (dighash.Hash, error) {
	if storeID != nil {
		return *storeID, nil
	}
	var b [dighash.Size]byte
	if _, err := rand.Read(b[:]); err != nil {
		return dighash.Hash{}, err
	}
	return dighash.Hash(b), nil
}

func userName(cfg digconfig.Store) string {
	if cfg == nil {
		return ""
	}
	name, _ := digconfig.UserName(cfg)
	return name
}

// Open opens an existing store archive at path, reconstructing its root
// history and current root from the archive's root-history layer.
func Open(path string, opts Options) (*Store, error) {
	arc, err := archive.Open(path, opts.Mode)
	if err != nil {
		return nil, err
	}

	s := &Store{arc: arc, storeID: arc.StoreID, profile: chunker.DefaultProfile}
	if err := s.configure(opts.Config); err != nil {
		arc.Close()
		return nil, err
	}

	if !arc.RootHistoryLayerHash.IsZero() {
		entries, err := s.readRootHistory(arc.RootHistoryLayerHash)
		if err != nil {
			arc.Close()
			return nil, err
		}
		s.history = entries
		if len(entries) > 0 {
			last := entries[len(entries)-1]
			s.root = last.LayerHash
			s.layerN = last.LayerNumber
		}
	}

	if h, ok := s.findMetadataLayer(); ok {
		s.metaHash = h
	}

	st, err := staging.Open(filepath.Dir(path), arc.StoreID)
	if err != nil {
		arc.Close()
		return nil, err
	}
	s.staging = st
	return s, nil
}

func (s *Store) configure(cfg digconfig.Store) error {
	if cfg == nil {
		return nil
	}
	s.profile = digconfig.ChunkingProfile(cfg)
	pk, ok, err := digconfig.PublicKey(cfg)
	if err != nil {
		return digerr.Wrap(digerr.CryptoFailure, "store.configure", err)
	}
	if ok {
		s.zk = zk.NewTransformer(pk)
		s.arc.Transform = s.zk.Address
		s.arc.DecoyFn = zk.Decoy
	}
	return nil
}

// Close releases the archive's advisory lock.
func (s *Store) Close() error {
	return s.arc.Close()
}

// StoreID returns the store's 32-byte identifier.
func (s *Store) StoreID() dighash.Hash { return s.storeID }

// Root returns the current root layer hash (zero if nothing committed).
func (s *Store) Root() dighash.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Archive exposes the underlying archive handle for callers that need it
// directly, such as pkg/proof's generators.
func (s *Store) Archive() *archive.Archive { return s.arc }

// Add chunks data per the store's chunking profile and stages it under
// path, ready for the next Commit (spec §4.7 "add").
func (s *Store) Add(path string, data []byte, mode uint32, mtime int64) (staging.Entry, error) {
	return s.staging.Add(path, data, mode, mtime, s.profile)
}

// Remove unstages path, if staged.
func (s *Store) Remove(path string) error {
	return s.staging.Remove(path)
}

// Commit builds a new layer from everything currently staged and appends
// it atomically to the archive, following the five steps of spec §4.7.
// ctx is checked before each staged file entry and each staged chunk, before
// the content layer is built, and again after it is appended. Cancellation
// seen before the content layer's append leaves the store unchanged; seen
// after it, the content layer stays appended and indexed in the archive but
// is not recorded in root history, and the root stays at the previous
// commit. Merkle tree construction is not interrupted by ctx.
func (s *Store) Commit(ctx context.Context, message, author string) (dighash.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, chunks := s.staging.Snapshot()
	if len(entries) == 0 {
		return dighash.Hash{}, digerr.New(digerr.NotFound, "store.Commit").WithPath("nothing staged")
	}

	files := make([]layer.FileEntry, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return dighash.Hash{}, digerr.Wrap(digerr.Cancelled, "store.Commit", err)
		}
		refs := make([]layer.ChunkRef, len(e.Chunks))
		for j, c := range e.Chunks {
			refs[j] = layer.ChunkRef{ChunkIndex: c.ChunkIndex, OffsetInFile: c.OffsetInFile, Length: c.Length}
		}
		files[i] = layer.FileEntry{Path: e.Path, Size: e.Size, Mode: e.Mode, MTime: e.MTime, Chunks: refs, FileHash: e.FileHash}
	}

	records := make([]layer.ChunkRecord, len(chunks))
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return dighash.Hash{}, digerr.Wrap(digerr.Cancelled, "store.Commit", err)
		}
		data := c.Data
		if s.zk != nil {
			enc, err := s.encryptChunk(c.Hash, c.Data)
			if err != nil {
				return dighash.Hash{}, err
			}
			data = enc
		}
		records[i] = layer.ChunkRecord{Hash: c.Hash, Length: uint32(len(data)), Data: data}
	}

	if err := ctx.Err(); err != nil {
		return dighash.Hash{}, digerr.Wrap(digerr.Cancelled, "store.Commit", err)
	}

	newLayerNumber := s.layerN + 1
	timestamp := time.Now().Unix()
	l := layer.New(layer.TypeContent, newLayerNumber, s.root, files, records, timestamp, author, message)

	encoded, err := layer.Encode(l)
	if err != nil {
		return dighash.Hash{}, err
	}
	if err := s.arc.Append(l.LayerHash, encoded); err != nil {
		return dighash.Hash{}, err
	}

	if err := ctx.Err(); err != nil {
		// The content layer is already appended and indexed, but it is not
		// added to root history; no later Commit or Open records it.
		return dighash.Hash{}, digerr.Wrap(digerr.Cancelled, "store.Commit", err)
	}

	newHistory := append(append([]RootEntry{}, s.history...), RootEntry{
		LayerNumber: newLayerNumber,
		LayerHash:   l.LayerHash,
		Timestamp:   timestamp,
	})
	historyLayer := layer.New(layer.TypeRootHistory, newLayerNumber, s.arc.RootHistoryLayerHash,
		nil, []layer.ChunkRecord{rootHistoryChunk(newHistory)}, timestamp, "", "")
	historyEncoded, err := layer.Encode(historyLayer)
	if err != nil {
		return dighash.Hash{}, err
	}
	if err := s.arc.Append(historyLayer.LayerHash, historyEncoded); err != nil {
		return dighash.Hash{}, err
	}
	if err := s.arc.SetRootHistoryLayer(historyLayer.LayerHash); err != nil {
		return dighash.Hash{}, err
	}

	s.root = l.LayerHash
	s.layerN = newLayerNumber
	s.history = newHistory

	if err := s.staging.Clear(); err != nil {
		// The commit is already durable and this handle's root has moved to
		// it; the committed entries stay staged. Open does not compare
		// staged entries against committed layers.
		return l.LayerHash, err
	}
	return l.LayerHash, nil
}

// Get resolves path's bytes as of the layer hash at (the current root if
// at is the zero hash), per spec §4.7 "get(path, at=root)".
func (s *Store) Get(path string, at dighash.Hash) ([]byte, error) {
	root := at
	if root.IsZero() {
		root = s.Root()
	}
	if root.IsZero() {
		return nil, digerr.New(digerr.NotFound, "store.Get").WithPath(path)
	}

	raw, err := s.arc.ReadLayer(root)
	if err != nil {
		return nil, err
	}
	l, err := layer.Decode(raw)
	if err != nil {
		return nil, err
	}

	var entry *layer.FileEntry
	for i := range l.Files {
		if l.Files[i].Path == path {
			entry = &l.Files[i]
			break
		}
	}
	if entry == nil {
		return nil, digerr.New(digerr.NotFound, "store.Get").WithPath(path)
	}

	out := make([]byte, 0, entry.Size)
	for _, ref := range entry.Chunks {
		hash, ok := l.ChunkHashAt(ref.ChunkIndex)
		if !ok {
			return nil, digerr.New(digerr.CorruptLayer, "store.Get").WithPath(path)
		}
		data, err := s.chunkPlaintext(l, hash)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	if dighash.Sum(out) != entry.FileHash {
		return nil, digerr.New(digerr.HashMismatch, "store.Get").WithPath(path)
	}
	return out, nil
}

// chunkPlaintext returns a chunk's plaintext bytes, decrypting and
// re-verifying against the content hash when the store is in
// zero-knowledge mode (spec §4.10: "the core returns ciphertext to
// callers unless explicitly asked to decrypt").
func (s *Store) chunkPlaintext(l *layer.Layer, hash dighash.Hash) ([]byte, error) {
	if s.zk == nil {
		return l.ChunkBytes(hash)
	}
	raw, err := l.RawChunkBytes(hash)
	if err != nil {
		return nil, err
	}
	plain, err := s.decryptChunk(hash, raw)
	if err != nil {
		return nil, err
	}
	if dighash.Sum(plain) != hash {
		return nil, digerr.New(digerr.HashMismatch, "store.chunkPlaintext").WithPath(hash.Hex())
	}
	return plain, nil
}

// History returns the root history, newest-first (spec §4.7 "history/log").
func (s *Store) History() []RootEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RootEntry, len(s.history))
	for i, e := range s.history {
		out[len(out)-1-i] = e
	}
	return out
}

// findMetadataLayer scans the archive's index for the layer-0 metadata
// layer. Open is a rare, one-time-per-handle operation, so a full decode
// of each index entry is acceptable against the layer counts this engine
// targets; a store with very long commit history would want a dedicated
// header pointer instead, the way RootHistoryLayerHash already works.
func (s *Store) findMetadataLayer() (dighash.Hash, bool) {
	for _, entry := range s.arc.IndexSnapshot() {
		raw, err := s.arc.ReadIndexEntry(entry)
		if err != nil {
			continue
		}
		l, err := layer.Decode(raw)
		if err != nil {
			continue
		}
		if l.Type == layer.TypeMetadata {
			return l.LayerHash, true
		}
	}
	return dighash.Hash{}, false
}

// Name returns the store's name as recorded in layer 0's metadata at init.
func (s *Store) Name() (string, error) {
	raw, err := s.arc.ReadLayer(s.metaHash)
	if err != nil {
		return "", err
	}
	l, err := layer.Decode(raw)
	if err != nil {
		return "", err
	}
	hash, ok := l.ChunkHashAt(0)
	if !ok {
		return "", digerr.New(digerr.CorruptLayer, "store.Name").WithPath(s.metaHash.Hex())
	}
	blob, err := l.RawChunkBytes(hash)
	if err != nil {
		return "", err
	}
	m, err := decodeMetadata(blob)
	if err != nil {
		return "", digerr.Wrap(digerr.CorruptLayer, "store.Name", err)
	}
	return m.Name, nil
}

func (s *Store) readRootHistory(layerHash dighash.Hash) ([]RootEntry, error) {
	raw, err := s.arc.ReadLayer(layerHash)
	if err != nil {
		return nil, err
	}
	l, err := layer.Decode(raw)
	if err != nil {
		return nil, err
	}
	hash, ok := l.ChunkHashAt(0)
	if !ok {
		return nil, digerr.New(digerr.CorruptLayer, "store.readRootHistory").WithPath(layerHash.Hex())
	}
	blob, err := l.RawChunkBytes(hash)
	if err != nil {
		return nil, err
	}
	return decodeRootHistory(blob)
}
