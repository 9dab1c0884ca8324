// Package chunker implements FastCDC-style content-defined chunking (spec
// §4.2): a rolling gear hash that cuts a byte stream into variable-length
// chunks whose boundaries depend only on local content, so a small edit
// anywhere in the stream only reshuffles the chunks near the edit.
//
// Chunks are produced by a pull-based reader loop: each call to Next reads
// ahead until the rolling hash signals a cut point, rather than slicing
// the whole input up front.
package chunker

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"golang.org/x/sync/errgroup"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
)

// Profile bounds the chunk sizes a Chunker produces.
type Profile struct {
	Min uint32
	Avg uint32
	Max uint32
}

// DefaultProfile is the standard preset from spec §3/§4.2: 64 KiB / 256 KiB / 1 MiB.
var DefaultProfile = Profile{Min: 64 * 1024, Avg: 256 * 1024, Max: 1024 * 1024}

// LargeProfile is the "large file" preset, 16x the default.
var LargeProfile = Profile{Min: 16 * 64 * 1024, Avg: 16 * 256 * 1024, Max: 16 * 1024 * 1024}

// Chunk describes one content-defined chunk within a stream.
type Chunk struct {
	Offset uint64
	Length uint32
	Hash   dighash.Hash
	Data   []byte // populated only when the caller asked to retain bytes
}

const gearTableSize = 256

// gearTable is generated once from a fixed seed via SHA-256 expansion so
// chunk boundaries are reproducible across builds and platforms — no
// math/rand involved, unlike a typical FastCDC reference implementation
// that seeds from a PRNG.
var gearTable [gearTableSize]uint64

func init() {
	for i := 0; i < gearTableSize; i++ {
		var seed [5]byte
		copy(seed[:4], []byte("gear"))
		seed[4] = byte(i)
		h := sha256.Sum256(seed[:])
		gearTable[i] = binary.LittleEndian.Uint64(h[:8])
	}
}

// maskPair returns the stricter mask (used below the average offset, harder
// to satisfy so early cuts are discouraged) and the looser mask (used at or
// above the average offset, easier to satisfy so the cut probability rises
// quickly past the average) — FastCDC's "normalized chunking" trick for
// tightening the size distribution around avg.
func maskPair(avg uint32) (strict, loose uint64) {
	b := bits.Len32(avg)
	if b < 3 {
		b = 3
	}
	strict = (uint64(1) << uint(b+1)) - 1
	loose = (uint64(1) << uint(b-1)) - 1
	return strict, loose
}

// Chunker pulls content-defined chunks out of an io.Reader, one at a time.
type Chunker struct {
	r        io.Reader
	profile  Profile
	strict   uint64
	loose    uint64
	buf      []byte
	buflen   int
	bufpos   int
	offset   uint64
	retain   bool
	eof      bool
	emittedEmpty bool
}

// New returns a Chunker over r using profile. If retainData is true, each
// returned Chunk carries its plaintext bytes; otherwise Data is nil and the
// caller is responsible for re-reading the bytes from wherever they store
// them (staging blob, layer chunk-data section, ...).
func New(r io.Reader, profile Profile, retainData bool) *Chunker {
	strict, loose := maskPair(profile.Avg)
	return &Chunker{
		r:       r,
		profile: profile,
		strict:  strict,
		loose:   loose,
		buf:     make([]byte, profile.Max),
		retain:  retainData,
	}
}

// fill tops up the internal buffer so at least one more chunk's worth of
// lookahead (up to Max bytes) is available, compacting already-consumed
// bytes out of the front of buf.
func (c *Chunker) fill() error {
	if c.bufpos > 0 {
		copy(c.buf, c.buf[c.bufpos:c.buflen])
		c.buflen -= c.bufpos
		c.bufpos = 0
	}
	for c.buflen < len(c.buf) && !c.eof {
		n, err := c.r.Read(c.buf[c.buflen:])
		c.buflen += n
		if err == io.EOF {
			c.eof = true
			break
		}
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// Next returns the next chunk, or ok=false once the stream is exhausted. An
// empty input stream yields exactly one zero-length chunk whose hash is
// SHA-256 of the empty string, per spec §4.2's edge case.
func (c *Chunker) Next() (Chunk, bool, error) {
	if err := c.fill(); err != nil {
		return Chunk{}, false, err
	}

	avail := c.buflen - c.bufpos
	if avail == 0 {
		if c.eof && !c.emittedEmpty && c.offset == 0 {
			c.emittedEmpty = true
			return Chunk{Offset: 0, Length: 0, Hash: dighash.Sum(nil), Data: emptyDataIf(c.retain)}, true, nil
		}
		return Chunk{}, false, nil
	}

	cut := c.findCut(c.buf[c.bufpos : c.bufpos+avail])
	data := c.buf[c.bufpos : c.bufpos+cut]

	chunk := Chunk{
		Offset: c.offset,
		Length: uint32(cut),
		Hash:   dighash.Sum(data),
	}
	if c.retain {
		chunk.Data = append([]byte(nil), data...)
	}

	c.bufpos += cut
	c.offset += uint64(cut)
	return chunk, true, nil
}

func emptyDataIf(retain bool) []byte {
	if !retain {
		return nil
	}
	return []byte{}
}

// findCut scans window for a FastCDC boundary and returns the cut length.
// window is at most profile.Max bytes (the buffer never holds more), and is
// the entire remaining stream if the stream itself is shorter than Min —
// the "file smaller than min" edge case from spec §4.2.
func (c *Chunker) findCut(window []byte) int {
	n := len(window)
	maxCut := n
	if uint32(maxCut) > c.profile.Max {
		maxCut = int(c.profile.Max)
	}
	if !c.eof && uint32(n) >= c.profile.Max {
		// Buffer is full and more data may follow; only consider forcing a
		// cut at Max once we actually have Max bytes buffered.
		maxCut = int(c.profile.Max)
	} else if !c.eof {
		// Not enough lookahead yet to be sure hashing further won't find a
		// boundary past what's buffered; fill already tried its best, so
		// treat whatever we have as the full window (stream ended or
		// buffer is genuinely all there is right now).
		maxCut = n
	}

	minCut := int(c.profile.Min)
	if minCut > maxCut {
		minCut = maxCut
	}

	if maxCut <= minCut {
		return maxCut
	}

	var hash uint64
	avg := int(c.profile.Avg)
	if avg > maxCut {
		avg = maxCut
	}

	for i := 0; i < minCut; i++ {
		hash = (hash << 1) + gearTable[window[i]]
	}
	for i := minCut; i < maxCut; i++ {
		hash = (hash << 1) + gearTable[window[i]]
		mask := c.loose
		if i < avg {
			mask = c.strict
		}
		if hash&mask == 0 {
			return i + 1
		}
	}
	return maxCut
}

// ChunkAll drains c and returns every chunk in order; a convenience for
// small inputs and for tests.
func ChunkAll(r io.Reader, profile Profile, retainData bool) ([]Chunk, error) {
	c := New(r, profile, retainData)
	var out []Chunk
	for {
		chunk, ok, err := c.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, chunk)
	}
}

// partition describes one coarse, Max-aligned byte range of a larger stream
// that ChunkFileParallel re-chunks independently.
type partition struct {
	start, end int64
}

// ChunkFileParallel chunks a io.ReaderAt of known size by splitting it into
// coarse partitions aligned to profile.Max and chunking each partition
// concurrently via errgroup (spec §5: "parallelism is used inside
// chunking ... partitioned at max-chunk boundaries"). Every partition
// boundary is also a chunk boundary, and cuts inside a partition are found
// relative to its start, so the result generally differs from ChunkAll
// over the same bytes. The chunks still cover the input contiguously, in
// order.
func ChunkFileParallel(ra io.ReaderAt, size int64, profile Profile, retainData bool, workers int) ([]Chunk, error) {
	if size == 0 {
		return ChunkAll(io.NewSectionReader(ra, 0, 0), profile, retainData)
	}
	if workers < 1 {
		workers = 1
	}

	step := int64(profile.Max)
	if step <= 0 {
		return nil, fmt.Errorf("chunker: invalid Max in profile %+v", profile)
	}

	var parts []partition
	for start := int64(0); start < size; start += step {
		end := start + step
		if end > size {
			end = size
		}
		parts = append(parts, partition{start: start, end: end})
	}

	results := make([][]Chunk, len(parts))
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i, p := range parts {
		i, p := i, p
		g.Go(func() error {
			sr := io.NewSectionReader(ra, p.start, p.end-p.start)
			chunks, err := ChunkAll(sr, profile, retainData)
			if err != nil {
				return err
			}
			for j := range chunks {
				chunks[j].Offset += uint64(p.start)
			}
			results[i] = chunks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Chunk
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
