package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/veylin/mnemo/internal/store"
)

// Search errors.
var (
	ErrInvalidQuery     = errors.New("search query is empty")
	ErrMissingEmbedding = errors.New("fact has no embedding")
)

const (
	// DefaultMinSimilarity is the cutoff for plain semantic search.
	DefaultMinSimilarity = 0.5
	// hybridMinSimilarity is the looser semantic floor used when keyword
	// scores get blended in afterwards.
	hybridMinSimilarity = 0.2
	// relatedMinSimilarity is the cutoff for fact-to-fact relatedness.
	relatedMinSimilarity = 0.4

	queryCacheTTL = 30 * time.Minute

	// Default blend weights for hybrid search.
	DefaultSemanticWeight = 0.6
	DefaultKeywordWeight  = 0.4
)

// ScoredFact is a search hit with its similarity in [0, 1].
type ScoredFact struct {
	Fact       *store.Fact `json:"fact"`
	Similarity float64     `json:"similarity"`
}

// HybridFact is a hybrid search hit carrying both component scores and
// their weighted blend.
type HybridFact struct {
	Fact          *store.Fact `json:"fact"`
	SemanticScore float64     `json:"semanticScore"`
	KeywordScore  float64     `json:"keywordScore"`
	FinalScore    float64     `json:"finalScore"`
}

// FindSimilarFacts embeds the query and ranks active facts by cosine
// similarity, dropping anything below minSimilarity. Facts without a stored
// vector, or with a vector from a different embedding model, are embedded on
// the spot.
func (e *Engine) FindSimilarFacts(ctx context.Context, query string, limit int, minSimilarity float64) ([]ScoredFact, error) {
	queryVec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("search fetch: %w", err)
	}

	var hits []ScoredFact
	for _, f := range facts {
		vec, err := e.factVector(ctx, f)
		if err != nil {
			return nil, err
		}
		sim := CosineSimilarity(queryVec, vec)
		if sim >= minSimilarity {
			hits = append(hits, ScoredFact{Fact: f, Similarity: sim})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// FindSimilarFactsHybrid blends semantic and keyword relevance. Weights at
// or below zero fall back to the 0.6 / 0.4 defaults. The semantic pass runs
// with a low floor at twice the requested limit so keyword matches can
// resurface facts the embedding alone would have ranked out.
func (e *Engine) FindSimilarFactsHybrid(ctx context.Context, query string, limit int, semanticWeight, keywordWeight float64) ([]HybridFact, error) {
	if limit <= 0 {
		limit = 10
	}
	if semanticWeight <= 0 {
		semanticWeight = DefaultSemanticWeight
	}
	if keywordWeight <= 0 {
		keywordWeight = DefaultKeywordWeight
	}
	semantic, err := e.FindSimilarFacts(ctx, query, limit*2, hybridMinSimilarity)
	if err != nil {
		return nil, err
	}

	tokens := tokenize(query)
	hits := make([]HybridFact, 0, len(semantic))
	for _, h := range semantic {
		kw := keywordScore(h.Fact, tokens)
		hits = append(hits, HybridFact{
			Fact:          h.Fact,
			SemanticScore: h.Similarity,
			KeywordScore:  kw,
			FinalScore:    semanticWeight*h.Similarity + keywordWeight*kw,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].FinalScore > hits[j].FinalScore })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// FindRelatedFacts ranks other facts by similarity to the given one.
// Requires the source fact to already have an embedding.
func (e *Engine) FindRelatedFacts(ctx context.Context, factID string, limit int) ([]ScoredFact, error) {
	if limit <= 0 {
		limit = 5
	}
	rec, err := e.db.GetVector(ctx, factID)
	if err != nil {
		return nil, fmt.Errorf("related fetch vector: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("fact %s: %w", factID, ErrMissingEmbedding)
	}

	facts, err := e.db.FetchAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("related fetch: %w", err)
	}

	var hits []ScoredFact
	for _, f := range facts {
		if f.ID == factID {
			continue
		}
		vec, err := e.factVector(ctx, f)
		if err != nil {
			return nil, err
		}
		sim := CosineSimilarity(rec.Embedding, vec)
		if sim >= relatedMinSimilarity {
			hits = append(hits, ScoredFact{Fact: f, Similarity: sim})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// embedQuery embeds a search query, caching the vector for half an hour so
// repeated searches with the same phrasing skip the embedder.
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidQuery
	}

	cacheKey := e.embedder.Model() + "\x00" + strings.ToLower(query)
	if cached, ok := e.queryCache.Get(cacheKey); ok {
		return cached.([]float64), nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	e.queryCache.Set(cacheKey, vec, gocache.DefaultExpiration)
	return vec, nil
}

// factVector returns the fact's stored embedding, regenerating it when the
// record is missing or was produced by a different model.
func (e *Engine) factVector(ctx context.Context, f *store.Fact) ([]float64, error) {
	rec, err := e.db.GetVector(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch vector %s: %w", f.ID, err)
	}
	if rec != nil && rec.Model == e.embedder.Model() {
		return rec.Embedding, nil
	}

	vec, err := e.embedder.Embed(ctx, factEmbeddingText(f))
	if err != nil {
		return nil, fmt.Errorf("embed fact %s: %w", f.ID, err)
	}
	if err := e.db.SaveVector(ctx, &store.VectorRecord{
		FactID:     f.ID,
		Embedding:  vec,
		Model:      e.embedder.Model(),
		Dimensions: e.embedder.Dimensions(),
	}); err != nil {
		return nil, fmt.Errorf("save vector %s: %w", f.ID, err)
	}
	return vec, nil
}

// factEmbeddingText is what gets embedded for a fact: enough surrounding
// words that category and entity context shape the vector.
func factEmbeddingText(f *store.Fact) string {
	parts := []string{f.Category, f.Key, f.Value}
	if f.Entity != nil {
		parts = append(parts, f.Entity.Name)
	}
	return strings.Join(parts, " ")
}

// keywordScore is the fraction of query tokens appearing in the fact's key
// or value.
func keywordScore(f *store.Fact, tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	key := strings.ToLower(f.Key)
	value := strings.ToLower(f.Value)
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(key, tok) || strings.Contains(value, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}
