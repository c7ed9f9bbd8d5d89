// Package preset answers frequently asked labor-insurance questions from a
// curated table without touching the retrieval or generation pipeline.
// Matching is pure string work — no I/O, no external calls — so a preset hit
// is the cheapest possible answer path.
package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Database is the optional JSON Q&A database. Questions are grouped by
// category; the synonym map routes colloquial phrasings onto table entries.
type Database struct {
	// Categories maps category name → question → answer.
	Categories map[string]map[string]string `json:"常見問題"`

	// Synonyms maps a canonical keyword to its colloquial variants.
	Synonyms map[string][]string `json:"快速查詢關鍵詞"`
}

// LoadDatabase reads and parses the JSON Q&A database at path.
func LoadDatabase(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preset: failed to read database %s: %w", path, err)
	}
	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("preset: failed to parse database %s: %w", path, err)
	}
	return &db, nil
}

// Matcher answers questions from the JSON database first and the builtin
// table second. It is immutable after construction and safe for concurrent use.
type Matcher struct {
	db *Database

	// sortedCategories and sortedQuestions fix the database iteration order
	// so matching is deterministic for a given table.
	sortedCategories []string
	sortedQuestions  map[string][]string
}

// NewMatcher constructs a Matcher. db may be nil, in which case only the
// builtin table is consulted.
func NewMatcher(db *Database) *Matcher {
	m := &Matcher{db: db, sortedQuestions: map[string][]string{}}
	if db != nil {
		for cat := range db.Categories {
			m.sortedCategories = append(m.sortedCategories, cat)
		}
		sort.Strings(m.sortedCategories)
		for cat, questions := range db.Categories {
			qs := make([]string, 0, len(questions))
			for q := range questions {
				qs = append(qs, q)
			}
			sort.Strings(qs)
			m.sortedQuestions[cat] = qs
		}
	}
	return m
}

// Match returns the preset answer for a question, or ok=false when the
// question must go down the retrieval pipeline. Resolution order:
//
//  1. database exact match (raw or punctuation-normalized)
//  2. database substring match
//  3. database synonym-keyword match
//  4. builtin exact match
//  5. builtin substring match
func (m *Matcher) Match(question string) (string, bool) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", false
	}
	clean := normalize(question)

	if m.db != nil {
		if answer, ok := m.matchDatabase(question, clean); ok {
			return answer, true
		}
	}

	for _, entry := range builtinTable {
		if entry.Question == question {
			return entry.Answer, true
		}
	}
	for _, entry := range builtinTable {
		if strings.Contains(clean, normalize(entry.Question)) {
			return entry.Answer, true
		}
	}

	return "", false
}

// matchDatabase resolves a question against the JSON database.
func (m *Matcher) matchDatabase(question, clean string) (string, bool) {
	// Exact match first.
	for _, cat := range m.sortedCategories {
		for _, q := range m.sortedQuestions[cat] {
			if q == question || q == clean {
				return m.db.Categories[cat][q], true
			}
		}
	}

	// Then: the table question, punctuation stripped, contained in the
	// user question.
	for _, cat := range m.sortedCategories {
		for _, q := range m.sortedQuestions[cat] {
			if strings.Contains(clean, normalize(q)) {
				return m.db.Categories[cat][q], true
			}
		}
	}

	// Finally route through the synonym keywords.
	if len(m.db.Synonyms) > 0 {
		keywords := make([]string, 0, len(m.db.Synonyms))
		for kw := range m.db.Synonyms {
			keywords = append(keywords, kw)
		}
		sort.Strings(keywords)

		for _, kw := range keywords {
			if !anyContained(clean, m.db.Synonyms[kw]) {
				continue
			}
			for _, cat := range m.sortedCategories {
				for _, q := range m.sortedQuestions[cat] {
					if strings.Contains(q, kw) || anyContained(q, m.db.Synonyms[kw]) {
						return m.db.Categories[cat][q], true
					}
				}
			}
		}
	}

	return "", false
}

// Questions returns every known preset question, database entries first.
// The list backs the preset-questions endpoint.
func (m *Matcher) Questions() []string {
	var out []string
	if m.db != nil && len(m.db.Categories) > 0 {
		for _, cat := range m.sortedCategories {
			out = append(out, m.sortedQuestions[cat]...)
		}
		return out
	}
	for _, entry := range builtinTable {
		out = append(out, entry.Question)
	}
	return out
}

// anyContained reports whether any of the needles appears in s.
func anyContained(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// normalize strips question-final punctuation so "怎麼申請？" and "怎麼申請"
// match the same entry.
func normalize(s string) string {
	r := strings.NewReplacer("？", "", "?", "", "。", "")
	return r.Replace(strings.TrimSpace(s))
}
