package stream

import (
	"bytes"
	"encoding/binary"
)

// wavHeaderSize is the canonical PCM header length produced by the mobile
// recorders this gateway serves. Chunks with richer headers still stitch,
// they just carry a little extra metadata in the data stream.
const wavHeaderSize = 44

var riffMagic = []byte("RIFF")

// ConcatWAV stitches sequentially recorded WAV slices into one file: the
// first chunk is kept whole and subsequent headers are stripped, then the
// RIFF and data sizes are patched. Non-WAV input degrades to a plain byte
// concatenation.
func ConcatWAV(chunks [][]byte) []byte {
	if len(chunks) == 1 {
		return chunks[0]
	}

	var out bytes.Buffer
	for i, chunk := range chunks {
		if i > 0 && isWAV(chunk) {
			chunk = chunk[wavHeaderSize:]
		}
		out.Write(chunk)
	}

	stitched := out.Bytes()
	if isWAV(stitched) {
		patchSizes(stitched)
	}
	return stitched
}

func isWAV(b []byte) bool {
	return len(b) > wavHeaderSize && bytes.HasPrefix(b, riffMagic)
}

func patchSizes(b []byte) {
	total := uint32(len(b))
	binary.LittleEndian.PutUint32(b[4:8], total-8)
	binary.LittleEndian.PutUint32(b[40:44], total-uint32(wavHeaderSize))
}
