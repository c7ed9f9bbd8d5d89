package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If EMBEDDING_MODEL matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check of the embedding configuration. Retrieval is
// always on in this system — the regulation knowledge base is the product —
// so a broken embedder config should fail at startup with a clear message,
// not during the first question.
func Validate(log *slog.Logger) error {
	backend := resolveBackend()

	if backend != "ollama" && os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set — inheriting chat provider as embedding backend",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure) to be explicit"),
		)
	}

	switch backend {
	case "ollama":
		// Nothing to validate — no credentials required.

	case "openai":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: no OpenAI API key found — set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}

	case "azure":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: no Azure API key found — set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := os.Getenv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return fmt.Errorf("embedder: no Azure endpoint found — set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}

	default:
		return fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure", backend)
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model — "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}

	return nil
}
