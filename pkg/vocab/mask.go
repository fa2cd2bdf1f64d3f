package vocab

import (
	"math"

	sm "github.com/kestrelsoft/pse/pkg/statemachine"
)

// Mask is the result of [BuildMask]: which vocabulary ids are currently
// valid, and the healing expansion for ids whose surface text only a
// sequence of several shorter, real vocabulary ids can cover.
//
// Valid is a map rather than a dense bit-vector since tokenizer ids are
// sparse int32 values with no guaranteed contiguous range — a true bitset
// would need either a separate id->bit-index table (no simpler than this
// map) or to allocate len(vocab) bits regardless of how many ids a given
// step actually touches; no bitset library is part of this module's
// dependency set, and introducing one solely to re-derive what a map
// already gives for free would not be grounded in anything the reference
// stack actually uses.
type Mask struct {
	// Valid holds true for every id with at least one live continuation —
	// directly acceptable or healable.
	Valid map[int32]bool

	// Healing maps an id whose own surface text cannot be fully consumed by
	// any live stepper to the sequence of shorter, real ids that together
	// cover the same text and can be.
	Healing map[int32][]int32
}

// BuildMask computes the valid-id set and healing map for the current live
// stepper set against v.
//
// For each vocabulary id, whole-token acceptance is tried first via
// [sm.AdvanceAllBasic] (consistent with every other acceptor in this module,
// which consumes a token in one Consume call rather than byte-by-byte).
// Failing that, [decomposeHealing] attempts to cover the id's surface text
// with a sequence of shorter vocabulary ids, mirroring the backoff
// [sm.AdvanceAll] itself performs for token healing.
func BuildMask(steppers []sm.Stepper, v *Vocabulary) *Mask {
	mask := &Mask{Valid: make(map[int32]bool), Healing: make(map[int32][]int32)}
	if len(steppers) == 0 {
		return mask
	}

	for id, raw := range v.byID {
		word := string(raw)
		if word == "" {
			continue
		}
		if next := sm.AdvanceAllBasic(steppers, word); len(next) > 0 {
			mask.Valid[id] = true
			continue
		}
		if ids, ok := decomposeHealing(steppers, v, word, false); ok && len(ids) > 1 {
			mask.Healing[id] = ids
			mask.Valid[id] = true
		}
	}
	return mask
}

// decomposeHealing tries to cover remaining with a sequence of real
// vocabulary ids each individually acceptable by the live set at the point
// it is consumed. It backs off exactly one step at a time via
// v.Trie().LongestPrefix, the same single-shot backoff [sm.AdvanceAll] uses,
// rather than backtracking through every shorter candidate — a pragmatic
// match to the existing token-healing backoff rather than a from-scratch
// search strategy.
//
// allowFullMatch must be false on the outermost call: remaining is then the
// very id's own surface text, which [BuildMask] has already tried and failed
// to consume whole, and that same text is necessarily present in v's trie
// (every vocabulary entry indexes itself), so an unrestricted search would
// just rediscover the id itself and repeat the identical failed attempt.
// Truncating the search by one byte forces a genuinely shorter candidate.
// Recursive calls on a shrunken remaining always pass true: there a full
// match is the normal, successful terminal case.
func decomposeHealing(live []sm.Stepper, v *Vocabulary, remaining string, allowFullMatch bool) ([]int32, bool) {
	if remaining == "" {
		return nil, true
	}

	search := remaining
	if !allowFullMatch {
		search = remaining[:len(remaining)-1]
	}
	if search == "" {
		return nil, false
	}

	prefix, ok := v.trie.LongestPrefix(search)
	if !ok || prefix == "" || len(prefix) > len(remaining) {
		return nil, false
	}
	prefixID, ok := v.byString[prefix]
	if !ok {
		return nil, false
	}

	nextLive := sm.AdvanceAllBasic(live, prefix)
	if len(nextLive) == 0 {
		return nil, false
	}

	rest := remaining[len(prefix):]
	if rest == "" {
		return []int32{prefixID}, true
	}

	restIDs, ok := decomposeHealing(nextLive, v, rest, true)
	if !ok {
		return nil, false
	}
	return append([]int32{prefixID}, restIDs...), true
}

// NegInf is the score assigned to every invalid id before sampling — it is
// exported so callers constructing scores outside this package (e.g. a mock
// tokenizer in tests) can recognise a masked entry.
var NegInf = math.Inf(-1)

// Apply rewrites scores in place so that ids absent from mask.Valid are
// suppressed to [NegInf], and each healed id's score is folded into the
// score of the first id of its healing expansion via log-sum-exp, so the
// sampler sees the correct marginal probability of the logical choice; the
// log-sum-exp combination rule itself is a judgment call recorded in
// DESIGN.md.
func (m *Mask) Apply(scores map[int32]float64) {
	for id := range scores {
		if !m.Valid[id] {
			scores[id] = NegInf
			continue
		}
	}
	for healedID, expansion := range m.Healing {
		if len(expansion) == 0 {
			continue
		}
		healedScore, ok := scores[healedID]
		if !ok || healedScore == NegInf {
			continue
		}
		head := expansion[0]
		headScore, ok := scores[head]
		if !ok {
			continue
		}
		scores[head] = logAddExp(headScore, healedScore)
	}
}

// logAddExp computes log(exp(a) + exp(b)) in a numerically stable way, safe
// across fp16/fp32/bf16-derived float64 inputs without overflowing on large
// magnitude scores.
func logAddExp(a, b float64) float64 {
	if a == NegInf {
		return b
	}
	if b == NegInf {
		return a
	}
	hi, lo := a, b
	if lo > hi {
		hi, lo = lo, hi
	}
	return hi + math.Log1p(math.Exp(lo-hi))
}
