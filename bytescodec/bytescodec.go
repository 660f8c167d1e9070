// Package bytescodec implements recordset.Codec[[]byte], the simplest
// possible payload codec: the wire encoding of a []byte is itself,
// verbatim. It is what the example cmd/* tools use so they can round-trip
// arbitrary payloads without knowing the shape of any particular
// application's records, the way spec.md §6 leaves EncodeDecode<T> as an
// external collaborator for the application to supply.
package bytescodec

// Codec implements recordset.Codec[[]byte] (and tsclient.Codec[[]byte],
// which has an identical method set).
type Codec struct{}

// Encode copies value into out when out is large enough (leaving out
// untouched otherwise) and always reports len(value) as the size needed,
// per the Codec contract's determinism requirement.
func (Codec) Encode(value []byte, out []byte) (int, error) {
	if len(out) >= len(value) {
		copy(out, value)
	}
	return len(value), nil
}

// Decode returns a copy of in, since in aliases a buffer the caller may
// reuse or grow after Decode returns.
func (Codec) Decode(in []byte) ([]byte, error) {
	out := make([]byte, len(in))
	copy(out, in)
	return out, nil
}
