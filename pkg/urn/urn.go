// Package urn parses and resolves digstore URNs (spec §3, §4.8):
// urn:dig:chia:<storeId>[:<rootHash>][/<path>][#bytes=<range>].
package urn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
	"github.com/DIG-Network/digstore-sub002/pkg/digerr"
)

const prefix = "urn:dig:chia:"

// Range is a byte range with open-ended bounds represented as nil,
// matching the `a-b` / `a-` / `-b` grammar of spec §4.8.
type Range struct {
	Start *uint64
	End   *uint64
}

// URN is a parsed digstore URN.
type URN struct {
	StoreID  dighash.Hash
	RootHash *dighash.Hash // nil means "current root"
	Path     string        // used only when HasPath is set; HasPath false means "entire store archive"
	HasPath  bool
	Range    *Range
}

// Parse parses s into a URN, or returns digerr.InvalidURN.
func Parse(s string) (URN, error) {
	if !strings.HasPrefix(s, prefix) {
		return URN{}, digerr.New(digerr.InvalidURN, "urn.Parse").WithPath(s)
	}
	rest := s[len(prefix):]

	var fragment string
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		fragment = rest[i+1:]
		rest = rest[:i]
	}

	var path string
	hasPath := false
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		path = rest[i+1:]
		hasPath = true
		rest = rest[:i]
	}

	parts := strings.SplitN(rest, ":", 2)
	storeHex := parts[0]
	storeID, err := dighash.ParseHex(storeHex)
	if err != nil {
		return URN{}, digerr.Wrap(digerr.InvalidURN, "urn.Parse", err).WithPath(s)
	}

	u := URN{StoreID: storeID, Path: path, HasPath: hasPath}

	if len(parts) == 2 {
		rootHash, err := dighash.ParseHex(parts[1])
		if err != nil {
			return URN{}, digerr.Wrap(digerr.InvalidURN, "urn.Parse", err).WithPath(s)
		}
		u.RootHash = &rootHash
	}

	if fragment != "" {
		r, err := parseFragment(fragment)
		if err != nil {
			return URN{}, digerr.Wrap(digerr.InvalidURN, "urn.Parse", err).WithPath(s)
		}
		u.Range = &r
	}

	return u, nil
}

func parseFragment(fragment string) (Range, error) {
	const bytesPrefix = "bytes="
	if !strings.HasPrefix(fragment, bytesPrefix) {
		return Range{}, fmt.Errorf("unsupported fragment %q", fragment)
	}
	spec := fragment[len(bytesPrefix):]

	i := strings.IndexByte(spec, '-')
	if i < 0 {
		return Range{}, fmt.Errorf("invalid range %q", spec)
	}
	startStr, endStr := spec[:i], spec[i+1:]

	var r Range
	if startStr != "" {
		v, err := strconv.ParseUint(startStr, 10, 64)
		if err != nil {
			return Range{}, err
		}
		r.Start = &v
	}
	if endStr != "" {
		v, err := strconv.ParseUint(endStr, 10, 64)
		if err != nil {
			return Range{}, err
		}
		r.End = &v
	}
	if r.Start == nil && r.End == nil {
		return Range{}, fmt.Errorf("range %q has neither bound", spec)
	}
	return r, nil
}

// String renders u back into canonical URN form.
func (u URN) String() string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(u.StoreID.Hex())
	if u.RootHash != nil {
		b.WriteByte(':')
		b.WriteString(u.RootHash.Hex())
	}
	if u.HasPath {
		b.WriteByte('/')
		b.WriteString(u.Path)
	}
	if u.Range != nil {
		b.WriteString("#bytes=")
		if u.Range.Start != nil {
			b.WriteString(strconv.FormatUint(*u.Range.Start, 10))
		}
		b.WriteByte('-')
		if u.Range.End != nil {
			b.WriteString(strconv.FormatUint(*u.Range.End, 10))
		}
	}
	return b.String()
}

// Resolve turns r into concrete [start, end] inclusive byte offsets
// against content of the given size, per spec §4.8's range semantics:
// a-b inclusive, a- open-ended to size, -b the last b bytes.
func (r Range) Resolve(size uint64) (start, end uint64, err error) {
	switch {
	case r.Start != nil && r.End != nil:
		start, end = *r.Start, *r.End
		if start > end || end >= size {
			return 0, 0, digerr.New(digerr.OutOfRange, "urn.Range.Resolve")
		}
	case r.Start != nil && r.End == nil:
		start = *r.Start
		if start >= size {
			return 0, 0, digerr.New(digerr.OutOfRange, "urn.Range.Resolve")
		}
		end = size - 1
	case r.Start == nil && r.End != nil:
		n := *r.End
		if n == 0 || n > size {
			return 0, 0, digerr.New(digerr.OutOfRange, "urn.Range.Resolve")
		}
		start = size - n
		end = size - 1
	default:
		return 0, 0, digerr.New(digerr.InvalidURN, "urn.Range.Resolve")
	}
	return start, end, nil
}
