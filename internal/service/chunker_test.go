package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/quernlabs/quern/internal/apperrors"
)

func TestChunkText_SmallDocumentSingleChunk(t *testing.T) {
	text := "A short document that fits in one chunk."

	chunks, err := ChunkText(text, 1000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("expected chunk to equal input, got %q", chunks[0])
	}
}

// A 3000-character run with no paragraph or sentence boundaries must fall
// through to fixed windows: 4 chunks stepping by maxChunkSize-overlap, each
// window repeating the previous window's tail.
func TestChunkText_FixedWindows(t *testing.T) {
	text := strings.Repeat("abcdefghij", 300) // 3000 chars, no boundaries

	chunks, err := ChunkText(text, 1000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	wantLens := []int{1000, 1000, 1000, 300}
	for i, want := range wantLens {
		if len(chunks[i]) != want {
			t.Errorf("chunk %d: expected length %d, got %d", i, want, len(chunks[i]))
		}
	}

	// Overlap continuity: each chunk starts with the last 100 chars of its
	// predecessor.
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-100:]
		head := chunks[i+1][:100]
		if tail != head {
			t.Errorf("chunk %d->%d: overlap mismatch", i, i+1)
		}
	}

	// Windows reassemble to the original text.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		rebuilt.WriteString(chunks[i][100:])
	}
	if rebuilt.String() != text {
		t.Error("windows do not reassemble to the input")
	}
}

func TestChunkText_Deterministic(t *testing.T) {
	text := strings.Repeat("deterministic input ", 200)

	first, err := ChunkText(text, 350, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ChunkText(text, 350, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunkText_ParagraphPacking(t *testing.T) {
	text := "aaa\n\nbbb\n\nccc"

	chunks, err := ChunkText(text, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"aaa\n\nbbb", "ccc"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunks[i])
		}
	}
}

func TestChunkText_OversizedParagraphSplitsAtSentences(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine."

	chunks, err := ChunkText(text, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"One two three.", "Four five six.", "Seven eight nine."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunks[i])
		}
		if !strings.HasSuffix(chunks[i], ".") {
			t.Errorf("chunk %d: terminal punctuation detached: %q", i, chunks[i])
		}
	}
}

func TestChunkText_SentencePackingFillsChunks(t *testing.T) {
	// Two sentences fit together under the limit; the third forces a flush.
	text := "Aa bb. Cc dd. Ee ff gg hh."

	chunks, err := ChunkText(text, 14, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"Aa bb. Cc dd.", "Ee ff gg hh."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunks[i])
		}
	}
}

func TestChunkText_Normalization(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "windows line endings",
			text: "first\r\n\r\nsecond",
			want: []string{"first\n\nsecond"},
		},
		{
			name: "surrounding whitespace trimmed",
			text: "  \n padded \n ",
			want: []string{"padded"},
		},
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
		{
			name: "whitespace only",
			text: " \n\t \r\n ",
			want: []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chunks, err := ChunkText(tc.text, 100, 10)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(chunks) != len(tc.want) {
				t.Fatalf("expected %d chunks, got %d: %q", len(tc.want), len(chunks), chunks)
			}
			for i := range tc.want {
				if chunks[i] != tc.want[i] {
					t.Errorf("chunk %d: expected %q, got %q", i, tc.want[i], chunks[i])
				}
			}
		})
	}
}

func TestChunkText_ParameterValidation(t *testing.T) {
	tests := []struct {
		name         string
		maxChunkSize int
		overlap      int
	}{
		{name: "zero max size", maxChunkSize: 0, overlap: 0},
		{name: "negative max size", maxChunkSize: -5, overlap: 0},
		{name: "negative overlap", maxChunkSize: 100, overlap: -1},
		{name: "overlap equals max size", maxChunkSize: 100, overlap: 100},
		{name: "overlap exceeds max size", maxChunkSize: 100, overlap: 150},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ChunkText("some text", tc.maxChunkSize, tc.overlap)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !apperrors.IsKind(err, apperrors.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestChunkText_MultibyteWindowsStayValid(t *testing.T) {
	// 50 three-byte runes with no boundaries; windows are counted in runes so
	// cuts never land inside a character.
	text := strings.Repeat("语", 50)

	chunks, err := ChunkText(text, 40, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
	}
	if got := utf8.RuneCountInString(chunks[0]); got != 40 {
		t.Errorf("expected 40 runes in first chunk, got %d", got)
	}
	if got := utf8.RuneCountInString(chunks[1]); got != 20 {
		t.Errorf("expected 20 runes in second chunk, got %d", got)
	}
}
