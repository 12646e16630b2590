package commitment

import (
	"golang.org/x/crypto/cryptobyte"

	"github.com/raster-lang/raster/internal/identity"
)

// SignatureMeta carries the small amount of descriptive metadata a
// TraceItem needs alongside its raw input/output bytes: which backend
// ran it and under what execution mode. It participates in the
// canonical encoding, so changing it changes the item's commitment.
type SignatureMeta struct {
	Backend string
	Mode    string // "estimate" or "prove"
}

// TraceItem is one tile invocation's I/O record, in program execution
// order.
type TraceItem struct {
	FnName        string
	Inputs        []byte
	Outputs       []byte
	SignatureMeta SignatureMeta
}

// CanonicalEncode renders a TraceItem as canonical/v1 bytes ahead of
// hashing, using the same cryptobyte positional builder as the tile
// codec (internal/codec) so the encoding rule (equal items serialize
// identically, no ambient non-determinism) holds here too.
func (t TraceItem) CanonicalEncode() []byte {
	var b cryptobyte.Builder
	b.AddUint32(uint32(len(t.FnName)))
	b.AddBytes([]byte(t.FnName))
	b.AddUint32(uint32(len(t.Inputs)))
	b.AddBytes(t.Inputs)
	b.AddUint32(uint32(len(t.Outputs)))
	b.AddBytes(t.Outputs)
	b.AddUint32(uint32(len(t.SignatureMeta.Backend)))
	b.AddBytes([]byte(t.SignatureMeta.Backend))
	b.AddUint32(uint32(len(t.SignatureMeta.Mode)))
	b.AddBytes([]byte(t.SignatureMeta.Mode))
	return b.BytesOrPanic()
}

// ItemHash computes item_hash_i = H(canonical_encode(TraceItem_i)).
func ItemHash(item TraceItem) identity.Hash {
	return identity.H(item.CanonicalEncode())
}
