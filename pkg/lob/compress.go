// Compression for LOB payloads, using klauspost/compress/zlib (spec.md
// §4.3's "compressed storage (zlib-style), chosen per object based on a
// size/ratio heuristic, with an uncompressed fallback"). Grounded on the
// teacher pack's dependency surface rather than any one teacher file —
// none of the teacher's packages compress values, so this is learned
// from the library itself plus spec.md's stated fallback rule.
package lob

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// compressThreshold: objects smaller than this are stored raw outright,
// since zlib's per-stream overhead dominates for tiny payloads.
const compressThreshold = 64

// compress returns the zlib-compressed form of data and true, unless
// compression does not pay for itself (small input, incompressible
// data), in which case it returns (nil, false) and the caller stores
// data raw.
func compress(data []byte) ([]byte, bool) {
	if len(data) < compressThreshold {
		return nil, false
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(data) {
		return nil, false
	}
	return buf.Bytes(), true
}

func decompress(data []byte, rawLen int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]byte, rawLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
