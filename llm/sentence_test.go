package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushCompletesSentences(t *testing.T) {
	a := NewSentenceAssembler()

	assert.Empty(t, a.Push("Hello"))
	assert.Empty(t, a.Push(" there"))
	assert.Equal(t, []string{"Hello there."}, a.Push("."))
}

func TestPushMultipleSentencesInOneToken(t *testing.T) {
	a := NewSentenceAssembler()
	got := a.Push("One. Two! Three? Four")
	assert.Equal(t, []string{"One.", "Two!", "Three?"}, got)
	assert.Equal(t, "Four", a.Flush())
}

func TestFlushReturnsLeftoverOnce(t *testing.T) {
	a := NewSentenceAssembler()
	a.Push("trailing text without punctuation")
	assert.Equal(t, "trailing text without punctuation", a.Flush())
	assert.Empty(t, a.Flush())
}

func TestPushAcrossTokenBoundaries(t *testing.T) {
	a := NewSentenceAssembler()

	var sentences []string
	for _, token := range []string{"The qu", "ick fox", ". It ju", "mps!", " Done"} {
		sentences = append(sentences, a.Push(token)...)
	}
	assert.Equal(t, []string{"The quick fox.", "It jumps!"}, sentences)
	assert.Equal(t, "Done", a.Flush())
}
