package preset

import (
	"os"
	"path/filepath"
	"testing"
)

// TestMatch_BuiltinExact checks that an exact builtin question returns its
// answer verbatim.
func TestMatch_BuiltinExact(t *testing.T) {
	t.Parallel()

	m := NewMatcher(nil)
	answer, ok := m.Match("什麼是勞工保險")
	if !ok {
		t.Fatal("expected a preset hit")
	}
	if answer == "" {
		t.Error("expected non-empty answer")
	}
}

// TestMatch_PunctuationNormalized checks that trailing question marks do not
// prevent a match.
func TestMatch_PunctuationNormalized(t *testing.T) {
	t.Parallel()

	m := NewMatcher(nil)
	plain, ok := m.Match("失能給付可以領幾次")
	if !ok {
		t.Fatal("expected a preset hit for plain form")
	}
	punctuated, ok := m.Match("失能給付可以領幾次？")
	if !ok {
		t.Fatal("expected a preset hit for punctuated form")
	}
	if plain != punctuated {
		t.Error("punctuated and plain forms should resolve to the same answer")
	}
}

// TestMatch_SubstringContainment checks that a longer user question
// containing a full preset question still hits.
func TestMatch_SubstringContainment(t *testing.T) {
	t.Parallel()

	m := NewMatcher(nil)
	if _, ok := m.Match("請問一下失能給付計算方式是什麼"); !ok {
		t.Error("expected substring containment to hit the preset table")
	}
}

// TestMatch_Miss checks that an unrelated question falls through.
func TestMatch_Miss(t *testing.T) {
	t.Parallel()

	m := NewMatcher(nil)
	if _, ok := m.Match("今天天氣如何"); ok {
		t.Error("unrelated question should not hit the preset table")
	}
	if _, ok := m.Match("   "); ok {
		t.Error("blank question should not hit the preset table")
	}
}

// TestMatch_DatabaseTakesPriority checks that the JSON database answer wins
// over the builtin table for the same question.
func TestMatch_DatabaseTakesPriority(t *testing.T) {
	t.Parallel()

	db := &Database{
		Categories: map[string]map[string]string{
			"給付": {
				"什麼是勞工保險": "database answer",
			},
		},
	}
	m := NewMatcher(db)

	answer, ok := m.Match("什麼是勞工保險")
	if !ok {
		t.Fatal("expected a hit")
	}
	if answer != "database answer" {
		t.Errorf("got %q, want database answer to win", answer)
	}
}

// TestMatch_SynonymRouting checks that a colloquial phrasing routes through
// the synonym map onto a database entry.
func TestMatch_SynonymRouting(t *testing.T) {
	t.Parallel()

	db := &Database{
		Categories: map[string]map[string]string{
			"給付": {
				"失能給付金額": "金額說明",
			},
		},
		Synonyms: map[string][]string{
			"失能給付": {"殘廢給付", "失能理賠"},
		},
	}
	m := NewMatcher(db)

	answer, ok := m.Match("殘廢給付可以領多少")
	if !ok {
		t.Fatal("expected synonym routing to hit")
	}
	if answer != "金額說明" {
		t.Errorf("got %q, want 金額說明", answer)
	}
}

// TestMatch_Deterministic checks that repeated matching of the same question
// against a multi-entry database always returns the same answer.
func TestMatch_Deterministic(t *testing.T) {
	t.Parallel()

	db := &Database{
		Categories: map[string]map[string]string{
			"b類": {"失能給付申請": "answer-b"},
			"a類": {"失能給付條件": "answer-a"},
		},
	}
	m := NewMatcher(db)

	first, ok := m.Match("失能給付")
	if ok {
		for i := 0; i < 20; i++ {
			got, _ := m.Match("失能給付")
			if got != first {
				t.Fatalf("matching is not deterministic: %q then %q", first, got)
			}
		}
	}
}

// TestQuestions_PrefersDatabase checks the question listing source priority.
func TestQuestions_PrefersDatabase(t *testing.T) {
	t.Parallel()

	m := NewMatcher(nil)
	if n := len(m.Questions()); n != len(builtinTable) {
		t.Errorf("builtin questions: got %d, want %d", n, len(builtinTable))
	}

	db := &Database{
		Categories: map[string]map[string]string{
			"給付": {"q1": "a1", "q2": "a2"},
		},
	}
	m = NewMatcher(db)
	qs := m.Questions()
	if len(qs) != 2 {
		t.Errorf("database questions: got %d, want 2", len(qs))
	}
}

// TestLoadDatabase round-trips a database file from disk.
func TestLoadDatabase(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "qa.json")
	content := `{
		"常見問題": {
			"給付": {"失能給付金額": "金額說明"}
		},
		"快速查詢關鍵詞": {
			"失能給付": ["殘廢給付"]
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := LoadDatabase(path)
	if err != nil {
		t.Fatalf("LoadDatabase failed: %v", err)
	}
	if len(db.Categories) != 1 || len(db.Synonyms) != 1 {
		t.Errorf("unexpected database shape: %+v", db)
	}

	if _, err := LoadDatabase(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
