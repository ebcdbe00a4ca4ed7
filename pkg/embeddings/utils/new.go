// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/engramhq/engram/pkg/embeddings"
	"github.com/engramhq/engram/pkg/embeddings/hashed"
	"github.com/engramhq/engram/pkg/embeddings/ollama"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	Dimensions   uint
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "hashed":
		return hashed.NewEmbedder(hashed.Config{
			Dimensions: o.Dimensions,
		}), nil
	case "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
