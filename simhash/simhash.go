// Package simhash fingerprints page text so near-duplicate pages in a site
// backup can be flagged.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"sync"
)

// DefaultThreshold is the Hamming distance at or below which two pages are
// reported as near-duplicates.
const DefaultThreshold = 3

// Fingerprint computes a 64-bit SimHash of text over lowercased word
// 2-shingles, falling back to single words for one-word texts.
func Fingerprint(text string) uint64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	features := words
	if len(words) > 1 {
		features = make([]string, 0, len(words)-1)
		for i := 0; i < len(words)-1; i++ {
			features = append(features, words[i]+" "+words[i+1])
		}
	}

	var vector [64]int
	h := fnv.New64a()
	for _, f := range features {
		h.Reset()
		h.Write([]byte(f))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Index remembers the fingerprints seen so far in one backup. It is safe for
// concurrent use.
type Index struct {
	mu        sync.Mutex
	threshold int
	ids       []string
	fps       []uint64
}

// NewIndex creates an Index. threshold <= 0 uses DefaultThreshold.
func NewIndex(threshold int) *Index {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Index{threshold: threshold}
}

// Add records fp under id and returns the id of the closest earlier
// near-duplicate, if any. Empty fingerprints never match.
func (x *Index) Add(id string, fp uint64) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	match, best := "", x.threshold+1
	if fp != 0 {
		for i, other := range x.fps {
			if d := Distance(fp, other); d < best {
				match, best = x.ids[i], d
			}
		}
	}
	x.ids = append(x.ids, id)
	x.fps = append(x.fps, fp)
	return match, match != ""
}
