package core

import "context"

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// Extractor turns a stored document's bytes into raw structured text.
// Implementations: the remote extraction protocol client and the local
// docconv fallback.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}
