package budget

import (
	"strings"
	"testing"

	"github.com/Gskdl78/Labor-saver/internal/rag"
)

// TestEstimate checks the rune-aware heuristic on ASCII, CJK and mixed text.
func TestEstimate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"tiny ascii rounds up", "ab", 1},
		{"ascii prose", strings.Repeat("word ", 8), 10}, // 40 chars / 4
		{"cjk one token per rune", "勞工保險失能給付", 8},
		{"mixed", "勞保 top-k", 2 + 6/4}, // 2 CJK runes + 6 ASCII chars
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Estimate(tt.in); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func passage(id, content string) rag.ScoredDocument {
	return rag.ScoredDocument{Document: rag.Document{ID: id, Content: content}}
}

// TestTrimPassages_AllFit checks that nothing is trimmed inside the budget.
func TestTrimPassages_AllFit(t *testing.T) {
	t.Parallel()

	passages := []rag.ScoredDocument{
		passage("a", strings.Repeat("勞", 10)),
		passage("b", strings.Repeat("保", 10)),
	}
	got := TrimPassages(passages, 100, 1000)
	if len(got) != 2 {
		t.Errorf("got %d passages, want 2", len(got))
	}
}

// TestTrimPassages_DropsTail checks that trimming removes the lowest-ranked
// passages first while keeping the best evidence intact.
func TestTrimPassages_DropsTail(t *testing.T) {
	t.Parallel()

	passages := []rag.ScoredDocument{
		passage("best", strings.Repeat("勞", 50)),
		passage("mid", strings.Repeat("保", 50)),
		passage("worst", strings.Repeat("局", 50)),
	}
	// Budget fits the first two passages only: 120 - 10 reserve = 110 tokens.
	got := TrimPassages(passages, 10, 120)
	if len(got) != 2 {
		t.Fatalf("got %d passages, want 2", len(got))
	}
	if got[0].ID != "best" || got[1].ID != "mid" {
		t.Errorf("wrong passages kept: %q, %q", got[0].ID, got[1].ID)
	}
}

// TestTrimPassages_OversizedBestPassage checks that a best passage too large
// for the budget yields an empty slice, never a truncated passage.
func TestTrimPassages_OversizedBestPassage(t *testing.T) {
	t.Parallel()

	passages := []rag.ScoredDocument{
		passage("huge", strings.Repeat("勞", 500)),
	}
	got := TrimPassages(passages, 0, 100)
	if len(got) != 0 {
		t.Errorf("got %d passages, want 0", len(got))
	}
}

// TestTrimPassages_NoHeadroom checks that a reserve at or over the budget
// leaves no room for context at all.
func TestTrimPassages_NoHeadroom(t *testing.T) {
	t.Parallel()

	passages := []rag.ScoredDocument{passage("a", "勞保")}
	if got := TrimPassages(passages, 6000, 6000); got != nil {
		t.Errorf("expected nil, got %d passages", len(got))
	}
}
