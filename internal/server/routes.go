package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veylin/mnemo/internal/engine"
	"github.com/veylin/mnemo/internal/store"
)

const requestTimeout = 60 * time.Second

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// searchStatus maps engine search failures onto HTTP codes.
func searchStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrMissingEmbedding):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text           string `json:"text"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := s.engine.ExtractKnowledge(ctx, req.Text, req.ConversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleQuickExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text           string `json:"text"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	result, err := s.engine.QuickExtract(r.Context(), req.Text, req.ConversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	var (
		text string
		err  error
	)
	if r.URL.Query().Get("compact") == "true" {
		text, err = s.engine.BuildCompactContext(r.Context(), query)
	} else {
		text, err = s.engine.BuildContext(r.Context(), query)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"context": text,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	limit := queryInt(r, "limit", 10)
	minSim := engine.DefaultMinSimilarity
	if m := r.URL.Query().Get("min"); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil && v >= 0 && v <= 1 {
			minSim = v
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := s.engine.FindSimilarFacts(ctx, query, limit, minSim)
	if err != nil {
		writeError(w, searchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	limit := queryInt(r, "limit", 10)
	semanticWeight := queryFloat(r, "semantic", 0)
	keywordWeight := queryFloat(r, "keyword", 0)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := s.engine.FindSimilarFactsHybrid(ctx, query, limit, semanticWeight, keywordWeight)
	if err != nil {
		writeError(w, searchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	var (
		facts []*store.Fact
		err   error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		facts, err = s.db.FetchActiveByCategory(r.Context(), category)
	} else {
		facts, err = s.db.FetchAllActive(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(facts),
		"facts": facts,
	})
}

func (s *Server) handleDeleteAllFacts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "confirm=true required")
		return
	}
	if err := s.db.DeleteAllFacts(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRelatedFacts(w http.ResponseWriter, r *http.Request) {
	factID := chi.URLParam(r, "factID")
	limit := queryInt(r, "limit", 5)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := s.engine.FindRelatedFacts(ctx, factID, limit)
	if err != nil {
		writeError(w, searchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fact_id": factID,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	factID := chi.URLParam(r, "factID")

	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	switch req.Feedback {
	case store.FeedbackConfirmed, store.FeedbackIncorrect, store.FeedbackOutdated:
	default:
		writeError(w, http.StatusBadRequest, "feedback must be confirmed, incorrect or outdated")
		return
	}

	if err := s.db.SetFeedback(r.Context(), factID, req.Feedback); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Feedback doubles as a usage observation: it feeds the success ratio
	// the quality score is built from.
	if err := s.db.RecordUse(r.Context(), factID, req.Feedback == store.FeedbackConfirmed); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := s.engine.DetectConflicts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(conflicts),
		"conflicts": conflicts,
	})
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind    string   `json:"kind"`
		FactIDs []string `json:"fact_ids"`
		Policy  string   `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.FactIDs) < 2 || req.Policy == "" {
		writeError(w, http.StatusBadRequest, "at least two fact_ids and a policy required")
		return
	}

	facts := make([]*store.Fact, 0, len(req.FactIDs))
	for _, id := range req.FactIDs {
		f, err := s.db.GetFact(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if f == nil {
			writeError(w, http.StatusNotFound, "fact not found")
			return
		}
		facts = append(facts, f)
	}

	conflict := engine.Conflict{Kind: req.Kind, Facts: facts}
	if err := s.engine.ResolveConflict(r.Context(), conflict, req.Policy); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleAutoResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Policy string `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Policy == "" {
		req.Policy = engine.ResolveKeepHighestQuality
	}

	n, err := s.engine.AutoResolveAll(r.Context(), req.Policy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": n})
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	avg, err := s.engine.AverageQuality(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byCategory, err := s.engine.QualityByCategory(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count, err := s.db.CountActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"average":     avg,
		"by_category": byCategory,
		"facts":       count,
	})
}

func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.ApplyDecayToAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decayed": n})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.AutoCleanup(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePrivacyStatus(w http.ResponseWriter, r *http.Request) {
	gate := s.engine.Gate()
	enabled, err := gate.LearningEnabled(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cats, err := gate.AllowedCategories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	days, err := gate.CleanupDays(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"learning_enabled":   enabled,
		"allowed_categories": cats,
		"cleanup_days":       days,
	})
}

func (s *Server) handlePrivacyLearning(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.engine.Gate().SetLearningEnabled(r.Context(), req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"learning_enabled": req.Enabled})
}

func (s *Server) handlePrivacyCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	allowed, err := s.engine.Gate().ToggleCategory(r.Context(), req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category": req.Category,
		"allowed":  allowed,
	})
}

func (s *Server) handlePrivacyPreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preset string `json:"preset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.engine.Gate().ApplyPreset(r.Context(), req.Preset); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"preset": req.Preset})
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func queryFloat(r *http.Request, name string, fallback float64) float64 {
	if v := r.URL.Query().Get(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}
