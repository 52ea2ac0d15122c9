package llm

import (
	"regexp"
	"strings"
)

var sentenceRe = regexp.MustCompile(`[^.!?]*[.!?]`)

// SentenceAssembler collates streamed tokens into complete sentences so
// synthesis can start on the first sentence while the rest of the reply is
// still generating.
type SentenceAssembler struct {
	buffer strings.Builder
}

// NewSentenceAssembler returns an empty assembler.
func NewSentenceAssembler() *SentenceAssembler {
	return &SentenceAssembler{}
}

// Push appends a token and returns any sentences completed by it.
func (a *SentenceAssembler) Push(chunk string) []string {
	a.buffer.WriteString(chunk)
	text := a.buffer.String()

	var sentences []string
	for {
		loc := sentenceRe.FindStringIndex(text)
		if loc == nil {
			break
		}
		sentence := strings.TrimSpace(text[:loc[1]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		text = text[loc[1]:]
	}

	a.buffer.Reset()
	a.buffer.WriteString(text)
	return sentences
}

// Flush returns whatever trailing text never reached a sentence boundary and
// resets the assembler.
func (a *SentenceAssembler) Flush() string {
	leftover := strings.TrimSpace(a.buffer.String())
	a.buffer.Reset()
	return leftover
}
