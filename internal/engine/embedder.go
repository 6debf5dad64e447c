package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// OllamaEmbedder uses Ollama's embedding API.
type OllamaEmbedder struct {
	url    string
	model  string
	dims   int
	client *http.Client
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
func NewOllamaEmbedder(url, model string, dims int) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:    url,
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OllamaEmbedder) Model() string   { return "ollama:" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

// Embed sends text to Ollama's embed endpoint and returns the embedding vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody := map[string]any{
		"model": o.model,
		"input": text,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed status %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}

	o.dims = len(result.Embeddings[0])
	return result.Embeddings[0], nil
}

// ProbeOllama checks if Ollama is reachable and the embedding model is available.
func ProbeOllama(url, model string) bool {
	client := &http.Client{Timeout: 3 * time.Second}
	reqBody, _ := json.Marshal(map[string]any{
		"model": model,
		"input": "test",
	})
	resp, err := client.Post(url+"/api/embed", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// hashDimensions is the vector size of the fallback embedder.
const hashDimensions = 128

// HashEmbedder generates position-weighted token-hashing embeddings.
// It needs no corpus and no network, so it works offline and produces
// vectors that stay comparable across process restarts.
type HashEmbedder struct{}

// NewHashEmbedder creates the fallback embedder.
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

func (h *HashEmbedder) Model() string   { return "hash-v1" }
func (h *HashEmbedder) Dimensions() int { return hashDimensions }

// Embed maps each token to a bucket by hash, weighting earlier tokens
// higher, then L2-normalizes.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	tokens := tokenize(text)
	vec := make([]float64, hashDimensions)
	if len(tokens) == 0 {
		return vec, nil
	}

	for i, tok := range tokens {
		hasher := fnv.New32a()
		hasher.Write([]byte(tok))
		pos := int(hasher.Sum32() % hashDimensions)
		vec[pos] += 1.0 / float64(i+1)
	}

	normalize(vec)
	return vec, nil
}

// stopWords are skipped during tokenization (Turkish + English).
var stopWords = map[string]bool{
	"bir": true, "bu": true, "şu": true, "o": true, "ve": true, "veya": true,
	"ile": true, "için": true, "da": true, "de": true, "den": true, "dan": true,
	"mi": true, "mı": true, "mu": true, "mü": true,
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "is": true, "are": true,
	"was": true, "were": true,
}

// tokenize splits text into lowercase tokens, dropping punctuation,
// single characters, and stop words. Underscores split too, so a fact key
// like likes_coffee yields the same tokens a plain-text query would.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 1 {
			tok := current.String()
			if !stopWords[tok] {
				tokens = append(tokens, tok)
			}
		}
		current.Reset()
	}

	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
			strings.ContainsRune("çğıöşü", r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// normalize performs in-place L2 normalization.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
