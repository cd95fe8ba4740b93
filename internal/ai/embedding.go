package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"docbot/internal/rag"
)

// Embed returns the embedding vector for the given text. Failures are *rag.EmbeddingError.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &rag.EmbeddingError{
			Ordinal: rag.NoOrdinal,
			Err:     fmt.Errorf("%w: embedding input is empty", rag.ErrInputRejected),
		}
	}

	var vector []float32
	attempts, err := c.do(ctx, func(ctx context.Context) error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: c.embeddingModel,
		})
		if err != nil {
			return classify(err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return &callError{kind: rag.ErrUpstreamError, err: errors.New("no embedding returned")}
		}
		vector = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, &rag.EmbeddingError{Ordinal: rag.NoOrdinal, Attempts: attempts, Err: err}
	}
	return vector, nil
}
