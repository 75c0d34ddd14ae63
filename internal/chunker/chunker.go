// Package chunker splits extracted document text into sentence-aligned chunks
// of bounded size.
package chunker

import (
	"regexp"
	"strings"
)

// sentenceEnd matches terminal punctuation followed by the whitespace run that
// separates it from the next sentence.
var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// Chunker splits text into chunks whose length stays within maxSize unless a
// single sentence is longer than that.
type Chunker struct {
	maxSize int
}

func New(maxSize int) *Chunker {
	return &Chunker{maxSize: maxSize}
}

// Chunk splits text using the configured size bound.
func (c *Chunker) Chunk(text string) []string {
	return Split(text, c.maxSize)
}

// Sentences cuts text after every '.', '!' or '?' that is followed by
// whitespace. The punctuation stays with its sentence; the whitespace run is
// dropped. Blank segments are omitted.
func Sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// Split greedily packs sentences, joined by single spaces, into chunks of at
// most maxSize bytes. A sentence that alone exceeds maxSize becomes its own
// chunk; it is never truncated. Empty text yields no chunks.
func Split(text string, maxSize int) []string {
	var (
		chunks []string
		buf    strings.Builder
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(buf.String()))
		buf.Reset()
	}

	for _, sentence := range Sentences(text) {
		if buf.Len() > 0 && buf.Len()+1+len(sentence) > maxSize {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(sentence)
	}
	flush()
	return chunks
}
