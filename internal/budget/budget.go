// Package budget provides token budget estimation and context trimming for
// the answer engine. Because the engine supports multiple LLM backends with
// different tokenizers, estimation uses a conservative character heuristic:
// each CJK rune counts as one token and ASCII prose counts 4 characters per
// token. This deliberately over-estimates CJK-heavy regulation text so the
// prompt never overflows the model's context window.
package budget

import (
	"github.com/Gskdl78/Labor-saver/internal/rag"
)

const (
	// asciiCharsPerToken is the character-to-token ratio for ASCII text.
	asciiCharsPerToken = 4

	// DefaultMaxContextTokens is the default budget for retrieved regulation
	// context in the prompt. Conservative enough to fit within 8k-context
	// models while leaving room for the question, instructions and output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Non-ASCII runes (regulation
// text is mostly Traditional Chinese) count as one token each; ASCII runs
// are counted at 4 characters per token.
func Estimate(s string) int {
	ascii := 0
	tokens := 0
	for _, r := range s {
		if r < 128 {
			ascii++
			continue
		}
		tokens++
	}
	tokens += ascii / asciiCharsPerToken
	if tokens == 0 && len(s) > 0 {
		return 1
	}
	return tokens
}

// TrimPassages drops the lowest-ranked passages until the retrieved context
// plus reservedTokens (question, instructions, answer headroom) fits within
// maxTokens. Passages must already be sorted best first; trimming only ever
// removes from the tail, so the strongest evidence always survives.
//
// If even the single best passage exceeds the budget, an empty slice is
// returned rather than a truncated passage: a partial regulation row is
// worse than none.
func TrimPassages(passages []rag.ScoredDocument, reservedTokens, maxTokens int) []rag.ScoredDocument {
	available := maxTokens - reservedTokens
	if available <= 0 {
		return nil
	}

	total := 0
	for i, p := range passages {
		total += Estimate(p.Content)
		if total > available {
			return passages[:i]
		}
	}
	return passages
}
