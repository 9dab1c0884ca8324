package urn

import (
	"context"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
	"github.com/DIG-Network/digstore-sub002/pkg/store"
	"github.com/DIG-Network/digstore-sub002/pkg/zk"
)

// StoreOpener opens the store a URN addresses, by its parsed store ID.
// Resolve takes ownership of the returned handle and closes it before
// returning; a read-only handle is enough.
type StoreOpener func(storeID dighash.Hash) (*store.Store, error)

// ResolveOptions tunes Resolve's behavior at its one ambiguous boundary:
// what to do when a URN's byte range falls outside the resolved content.
type ResolveOptions struct {
	// DecoyOnOutOfRange, when true, makes an out-of-bounds range return a
	// deterministic decoy instead of digerr.OutOfRange (spec §4.10: an
	// out-of-range request must remain indistinguishable from a valid one
	// for zero-knowledge stores). Authenticated/local callers leave this
	// false so a real out-of-range request surfaces as a real error.
	DecoyOnOutOfRange bool
}

// Resolver resolves parsed URNs against stores obtained through an
// injected StoreOpener, keeping this package independent of how stores
// are laid out on disk.
type Resolver struct {
	open StoreOpener
}

// NewResolver returns a Resolver that opens stores via open.
func NewResolver(open StoreOpener) *Resolver {
	return &Resolver{open: open}
}

// Resolve returns the bytes a URN addresses: the whole store archive if
// no path is present (spec §4.8), a single file's reconstructed content
// otherwise, sliced to the URN's byte range fragment if one is present.
func (r *Resolver) Resolve(ctx context.Context, u URN, opts ResolveOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st, err := r.open(u.StoreID)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	root := st.Root()
	if u.RootHash != nil {
		root = *u.RootHash
	}

	var data []byte
	if u.HasPath {
		data, err = st.Get(u.Path, root)
	} else {
		data, err = st.Archive().ReadAll()
	}
	if err != nil {
		return nil, err
	}

	if u.Range == nil {
		return data, nil
	}

	start, end, rerr := u.Range.Resolve(uint64(len(data)))
	if rerr != nil {
		if opts.DecoyOnOutOfRange {
			return zk.Decoy(decoySeed(u)), nil
		}
		return nil, rerr
	}
	return data[start : end+1], nil
}

// decoySeed derives a stable decoy seed from a URN's canonical string form,
// so the same out-of-range request always produces the same decoy bytes
// (spec §4.10's determinism requirement).
func decoySeed(u URN) dighash.Hash {
	return dighash.Sum([]byte(u.String()))
}
