package service

import (
	"strings"

	"github.com/quernlabs/quern/internal/apperrors"
)

const paragraphSeparator = "\n\n"

// ChunkText splits extracted document text into bounded-size chunks with
// stable ordering. Paragraph boundaries are preferred, then sentence
// boundaries; text that still exceeds maxChunkSize is hard-cut into windows
// that share a trailing overlap so context survives the cut points. The same
// input and parameters always yield the same sequence.
//
// Sizes are byte lengths; hard cuts never split a UTF-8 rune.
func ChunkText(text string, maxChunkSize, overlap int) ([]string, error) {
	if maxChunkSize <= 0 {
		return nil, apperrors.New(apperrors.KindValidation, "max chunk size must be positive")
	}
	if overlap < 0 || overlap >= maxChunkSize {
		return nil, apperrors.Newf(apperrors.KindValidation, "overlap must be in [0, %d)", maxChunkSize)
	}

	text = normalizeText(text)
	if text == "" {
		return []string{}, nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range splitParagraphs(text) {
		if len(para) > maxChunkSize {
			flush()
			chunks = append(chunks, splitOversized(para, maxChunkSize, overlap)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(paragraphSeparator)+len(para) > maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(paragraphSeparator)
		}
		current.WriteString(para)
	}
	flush()

	return chunks, nil
}

// normalizeText unifies line endings and strips surrounding whitespace.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// splitParagraphs splits text on blank lines, dropping empty paragraphs.
func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, paragraphSeparator) {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// splitOversized breaks a paragraph that exceeds maxChunkSize, preferring
// sentence boundaries and falling back to hard cuts.
func splitOversized(para string, maxChunkSize, overlap int) []string {
	var pieces []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
		}
	}

	for _, sent := range splitSentences(para) {
		if len(sent) > maxChunkSize {
			flush()
			pieces = append(pieces, hardCut(sent, maxChunkSize, overlap)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(sent) > maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sent)
	}
	flush()

	return pieces
}

// splitSentences splits a paragraph at sentence-ending punctuation followed
// by whitespace, and at line breaks. Terminal punctuation stays attached to
// its sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	appendSentence := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' {
			appendSentence(text[start:i])
			start = i + 1
			continue
		}
		if (c == '.' || c == '!' || c == '?') && i+1 < len(text) && isSpace(text[i+1]) {
			appendSentence(text[start : i+1])
			start = i + 1
		}
	}
	appendSentence(text[start:])

	return sentences
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n'
}

// hardCut slices text into fixed-size windows stepping by
// maxChunkSize-overlap, so each window repeats the last overlap runes of its
// predecessor. Operates on runes to keep multi-byte characters intact.
func hardCut(text string, maxChunkSize, overlap int) []string {
	runes := []rune(text)
	step := maxChunkSize - overlap

	var pieces []string
	for start := 0; ; start += step {
		end := start + maxChunkSize
		if end >= len(runes) {
			pieces = append(pieces, string(runes[start:]))
			break
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}
