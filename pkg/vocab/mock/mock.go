// Package mock provides a deterministic, dependency-free [vocab.Tokenizer]
// for tests and the demo CLI — standing in for a real model tokenizer the
// way this module's other narrow provider interfaces get a mock
// implementation for the same purpose.
package mock

import "sort"

// Tokenizer is a byte-level tokenizer plus a set of extra multi-byte
// "compound" tokens layered on top, letting tests exercise token healing
// without a real BPE model: a compound token like `"red"` can be chosen by a
// sampler and, when the acceptor can't consume it whole, healed back down to
// its constituent single bytes.
type Tokenizer struct {
	byID     map[int32][]byte
	nextFree int32
}

// New returns a [Tokenizer] with the 256 single-byte ids pre-populated plus
// any extra compound surface strings in extra, each assigned its own id.
func New(extra ...string) *Tokenizer {
	t := &Tokenizer{byID: make(map[int32][]byte, 256+len(extra))}
	for b := 0; b < 256; b++ {
		t.byID[int32(b)] = []byte{byte(b)}
	}
	t.nextFree = 256
	for _, s := range extra {
		t.byID[t.nextFree] = []byte(s)
		t.nextFree++
	}
	return t
}

func (t *Tokenizer) Vocab() map[int32][]byte {
	out := make(map[int32][]byte, len(t.byID))
	for id, b := range t.byID {
		cp := make([]byte, len(b))
		copy(cp, b)
		out[id] = cp
	}
	return out
}

// Encode greedily prefers the longest registered surface string at each
// position (so compound tokens are chosen over their byte decomposition
// when both match), falling back to single bytes.
func (t *Tokenizer) Encode(text string, _ bool) []int32 {
	words := make([]string, 0, len(t.byID))
	for _, b := range t.byID {
		words = append(words, string(b))
	}
	sort.Slice(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })

	byWord := make(map[string]int32, len(t.byID))
	for id, b := range t.byID {
		byWord[string(b)] = id
	}

	var ids []int32
	data := []byte(text)
	for len(data) > 0 {
		matched := false
		for _, w := range words {
			if len(w) > 0 && len(w) <= len(data) && string(data[:len(w)]) == w {
				ids = append(ids, byWord[w])
				data = data[len(w):]
				matched = true
				break
			}
		}
		if !matched {
			ids = append(ids, int32(data[0]))
			data = data[1:]
		}
	}
	return ids
}

func (t *Tokenizer) Decode(ids []int32) string {
	var out []byte
	for _, id := range ids {
		out = append(out, t.byID[id]...)
	}
	return string(out)
}
