package analysis

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint computes a stable hash over the paragraph sequence's text.
// Each text is length-prefixed so the hash is sensitive to both content and
// ordering; any edit to the chapter invalidates checkpoints bearing the old
// hash.
func Fingerprint(paragraphs []Paragraph) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only possible with an oversized key, and we pass none
		panic(err)
	}

	var prefix [8]byte
	for _, p := range paragraphs {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(p.Text)))
		h.Write(prefix[:])
		h.Write([]byte(p.Text))
	}

	return hex.EncodeToString(h.Sum(nil))
}
