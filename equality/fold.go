package equality

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

type foldString struct{}

// FoldString compares strings under Unicode simple case folding, the same
// relation strings.EqualFold uses ("Go", "GO" and "go" are one key).
func FoldString() Comparer[string] { return foldString{} }

func (foldString) Equal(a, b string) bool { return strings.EqualFold(a, b) }

func (foldString) Hash(k string) uint64 {
	d := xxhash.New()
	var buf [utf8.UTFMax]byte
	for _, r := range k {
		n := utf8.EncodeRune(buf[:], foldRune(r))
		_, _ = d.Write(buf[:n])
	}
	return d.Sum64()
}

// foldRune maps r to the smallest rune of its case-folding orbit, so every
// member of the orbit hashes identically.
func foldRune(r rune) rune {
	low := r
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		if f < low {
			low = f
		}
	}
	return low
}
