package embedding

import (
	"encoding/json"
	"fmt"
)

// ResponseAdapter maps one provider family's request/response wire shapes to
// plain float vectors. One variant exists per family rather than duck-typing
// the JSON at call sites.
type ResponseAdapter interface {
	// BuildRequest returns the JSON-serializable request body for a batch.
	BuildRequest(model string, input []string) any
	// ParseResponse extracts the embedding vectors, in input order.
	ParseResponse(body []byte) ([][]float32, error)
}

// AdapterFor returns the adapter for a provider family.
func AdapterFor(family string) (ResponseAdapter, error) {
	switch family {
	case "openai":
		return openaiAdapter{}, nil
	case "siliconflow":
		return siliconflowAdapter{}, nil
	case "zhipu":
		return zhipuAdapter{}, nil
	default:
		return nil, fmt.Errorf("no response adapter for provider family %q", family)
	}
}

// embeddingData is the data[].embedding shape shared by all current families.
type embeddingData struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func parseDataEmbeddings(body []byte) ([][]float32, error) {
	var resp embeddingData
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contains no data")
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing vector for input %d", i)
		}
	}
	return out, nil
}

// openaiAdapter speaks the OpenAI embeddings API.
type openaiAdapter struct{}

func (openaiAdapter) BuildRequest(model string, input []string) any {
	return map[string]any{
		"model":           model,
		"input":           input,
		"encoding_format": "float",
	}
}

func (openaiAdapter) ParseResponse(body []byte) ([][]float32, error) {
	return parseDataEmbeddings(body)
}

// siliconflowAdapter speaks SiliconFlow's OpenAI-compatible endpoint.
type siliconflowAdapter struct{}

func (siliconflowAdapter) BuildRequest(model string, input []string) any {
	return map[string]any{
		"model":           model,
		"input":           input,
		"encoding_format": "float",
	}
}

func (siliconflowAdapter) ParseResponse(body []byte) ([][]float32, error) {
	return parseDataEmbeddings(body)
}

// zhipuAdapter speaks Zhipu's embeddings API, which rejects encoding_format.
type zhipuAdapter struct{}

func (zhipuAdapter) BuildRequest(model string, input []string) any {
	return map[string]any{
		"model": model,
		"input": input,
	}
}

func (zhipuAdapter) ParseResponse(body []byte) ([][]float32, error) {
	return parseDataEmbeddings(body)
}
