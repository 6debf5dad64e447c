// Package engine implements the knowledge pipeline: fact extraction,
// dedup and conflict handling, quality decay, context building and
// vector search over a sqlite store.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/veylin/mnemo/internal/llm"
	"github.com/veylin/mnemo/internal/privacy"
	"github.com/veylin/mnemo/internal/store"
)

const (
	embedQueueSize      = 256
	maintenanceInterval = 24 * time.Hour
)

// Options carries the tunable knobs. Zero values fall back to the defaults.
type Options struct {
	DecayDays        int
	StaleDays        int
	QualityThreshold float64
	ContextMaxTokens int
	ContextMaxFacts  int
}

// Engine ties the store, the language model and the embedder together.
// One background worker drains the embedding queue sequentially; a
// maintenance loop runs decay and cleanup once a day.
type Engine struct {
	db       *store.DB
	llm      llm.Client
	embedder Embedder
	gate     *privacy.Gate

	queryCache *gocache.Cache

	decayDays        int
	staleDays        int
	qualityThreshold float64
	contextMaxTokens int
	contextMaxFacts  int

	embedCh chan string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an engine. The llm client may be nil, in which case extraction
// runs on pattern rules alone.
func New(db *store.DB, client llm.Client, embedder Embedder, gate *privacy.Gate, opts Options) *Engine {
	if opts.DecayDays <= 0 {
		opts.DecayDays = DefaultDecayDays
	}
	if opts.StaleDays <= 0 {
		opts.StaleDays = DefaultStaleDays
	}
	if opts.QualityThreshold <= 0 {
		opts.QualityThreshold = DefaultQualityThreshold
	}
	if opts.ContextMaxTokens <= 0 {
		opts.ContextMaxTokens = DefaultContextMaxTokens
	}
	if opts.ContextMaxFacts <= 0 {
		opts.ContextMaxFacts = DefaultContextMaxFacts
	}
	return &Engine{
		db:               db,
		llm:              client,
		embedder:         embedder,
		gate:             gate,
		queryCache:       gocache.New(queryCacheTTL, 10*time.Minute),
		decayDays:        opts.DecayDays,
		staleDays:        opts.StaleDays,
		qualityThreshold: opts.QualityThreshold,
		contextMaxTokens: opts.ContextMaxTokens,
		contextMaxFacts:  opts.ContextMaxFacts,
		embedCh:          make(chan string, embedQueueSize),
	}
}

// DB exposes the underlying store for read-only surfaces like the CLI and
// HTTP handlers.
func (e *Engine) DB() *store.DB { return e.db }

// Gate exposes the privacy gate.
func (e *Engine) Gate() *privacy.Gate { return e.gate }

// SetEmbedder swaps the embedding backend. Call before Start; stored
// vectors from the old model are regenerated lazily as facts get searched.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.embedder = emb
}

// Start launches the embedding worker and the maintenance loop.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.embedWorker(ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.maintenanceLoop(ctx)
	}()
}

// Stop shuts the background workers down and waits for them.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// EnqueueEmbeds queues fact IDs for background embedding. When the queue is
// full the IDs are dropped; the lazy regeneration path in search covers any
// fact that slips through.
func (e *Engine) EnqueueEmbeds(ids []string) {
	for _, id := range ids {
		select {
		case e.embedCh <- id:
		default:
			log.Printf("engine: embed queue full, dropping %s", id)
		}
	}
}

func (e *Engine) embedWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-e.embedCh:
			if err := e.embedFact(ctx, id); err != nil {
				log.Printf("engine: embed %s: %v", id, err)
			}
		}
	}
}

// embedFact embeds one stored fact and persists the vector. A fact deleted
// or deactivated since it was queued is skipped silently.
func (e *Engine) embedFact(ctx context.Context, id string) error {
	f, err := e.db.GetFact(ctx, id)
	if err != nil {
		return err
	}
	if f == nil || !f.IsActive {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, factEmbeddingText(f))
	if err != nil {
		return err
	}
	return e.db.SaveVector(ctx, &store.VectorRecord{
		FactID:     f.ID,
		Embedding:  vec,
		Model:      e.embedder.Model(),
		Dimensions: e.embedder.Dimensions(),
	})
}

func (e *Engine) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunMaintenance(ctx)
		}
	}
}

// RunMaintenance applies decay to every fact and then sweeps out the junk.
func (e *Engine) RunMaintenance(ctx context.Context) {
	if n, err := e.ApplyDecayToAll(ctx); err != nil {
		log.Printf("engine: maintenance decay: %v", err)
	} else if n > 0 {
		log.Printf("engine: maintenance decayed %d facts", n)
	}
	if _, err := e.AutoCleanup(ctx); err != nil {
		log.Printf("engine: maintenance cleanup: %v", err)
	}
}
