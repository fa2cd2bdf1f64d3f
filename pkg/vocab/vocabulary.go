package vocab

// Vocabulary is an immutable, tokenizer-derived id<->bytes mapping plus its
// byte-[Trie], built once via [NewVocabulary] and shared across engines.
type Vocabulary struct {
	byID     map[int32][]byte
	byString map[string]int32
	trie     *Trie
}

// NewVocabulary builds a [Vocabulary] from tok's full id->bytes mapping.
func NewVocabulary(tok Tokenizer) *Vocabulary {
	raw := tok.Vocab()
	v := &Vocabulary{
		byID:     make(map[int32][]byte, len(raw)),
		byString: make(map[string]int32, len(raw)),
		trie:     newTrie(),
	}
	for id, b := range raw {
		word := string(b)
		v.byID[id] = b
		v.byString[word] = id
		if word != "" {
			v.trie.insert(word, id)
		}
	}
	return v
}

// Trie returns the vocabulary's byte-trie, for callers (e.g. [BuildMask] or
// [sm.AdvanceAll]) that need prefix-based token-healing backoff.
func (v *Vocabulary) Trie() *Trie { return v.trie }

// Word returns the surface string for id.
func (v *Vocabulary) Word(id int32) (string, bool) {
	b, ok := v.byID[id]
	return string(b), ok
}

// ID returns the vocabulary id for the exact surface string word, if any.
func (v *Vocabulary) ID(word string) (int32, bool) {
	id, ok := v.byString[word]
	return id, ok
}

// Len returns the number of entries in the vocabulary.
func (v *Vocabulary) Len() int { return len(v.byID) }
