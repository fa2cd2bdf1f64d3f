package vocab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelsoft/pse/pkg/vocab"
	vocabmock "github.com/kestrelsoft/pse/pkg/vocab/mock"
)

func TestNewVocabulary_IndexesByIDAndString(t *testing.T) {
	tok := vocabmock.New(`"red"`)
	v := vocab.NewVocabulary(tok)

	assert.Equal(t, 256+1, v.Len())

	word, ok := v.Word(256)
	assert.True(t, ok)
	assert.Equal(t, `"red"`, word)

	id, ok := v.ID(`"red"`)
	assert.True(t, ok)
	assert.Equal(t, int32(256), id)
}

func TestVocabulary_WordAndID_UnknownMiss(t *testing.T) {
	v := vocab.NewVocabulary(vocabmock.New())

	_, ok := v.Word(99999)
	assert.False(t, ok)

	_, ok = v.ID("not a real token")
	assert.False(t, ok)
}

func TestVocabulary_TrieSharesCompoundEntries(t *testing.T) {
	tok := vocabmock.New("tr", "ue")
	v := vocab.NewVocabulary(tok)

	prefix, ok := v.Trie().LongestPrefix("true")
	assert.True(t, ok)
	assert.Equal(t, "tr", prefix)
}
