package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"factrag/internal/chunker"
	"factrag/internal/domain"
	"factrag/internal/embedding"
	"factrag/internal/loader"
	"factrag/internal/logging"
	"factrag/internal/metadata"
	"factrag/internal/preprocess"
	"factrag/internal/retrieval"
	"factrag/internal/vectorstore"
)

// Options are the plain values the service is configured with.
type Options struct {
	ChunkSize           int
	Overlap             int
	Locale              string
	Workers             int
	BatchSize           int
	TopK                int
	PrioritizeMetadata  bool
	SummaryMaxSentences int
	Collection          string
	TestMode            bool
}

// Deps are the collaborators built at startup and owned by the caller.
type Deps struct {
	Embedder   domain.Embedder
	Store      *vectorstore.Selection
	Summarizer domain.Summarizer
	Retriever  *retrieval.Retriever
	Loader     *loader.Loader
	Logger     *slog.Logger
}

// RAGService ingests documents into the store and answers queries against it.
type RAGService struct {
	embedder   domain.Embedder
	store      *vectorstore.Selection
	summarizer domain.Summarizer
	retriever  *retrieval.Retriever
	loader     *loader.Loader
	repairer   *preprocess.TableRepairer
	annotator  *preprocess.Annotator
	extractor  *metadata.Extractor
	opts       Options
	logger     *slog.Logger

	// mu serializes ingestion and guards fittedTo.
	mu sync.Mutex
	// fittedTo is the pool size a corpus-fitted embedder was last prepared on.
	fittedTo int
}

func NewRAGService(deps Deps, opts Options) *RAGService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultMaxSize
	}
	if opts.Locale == "" {
		opts.Locale = chunker.DefaultLocale
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if deps.Retriever == nil {
		deps.Retriever = retrieval.New()
	}
	logger := logging.OrDiscard(deps.Logger)
	if deps.Loader == nil {
		deps.Loader = loader.New(logger)
	}
	return &RAGService{
		embedder:   deps.Embedder,
		store:      deps.Store,
		summarizer: deps.Summarizer,
		retriever:  deps.Retriever,
		loader:     deps.Loader,
		repairer:   preprocess.NewTableRepairer(),
		annotator:  preprocess.NewAnnotator(opts.Locale),
		extractor:  metadata.NewExtractor(opts.Locale),
		opts:       opts,
		logger:     logger,
		fittedTo:   -1,
	}
}

// Options returns the effective options.
func (s *RAGService) Options() Options { return s.opts }

// Backend reports which store variant is in use.
func (s *RAGService) Backend() vectorstore.Backend { return s.store.Backend }

// IngestOptions tune a single ingestion run. A zero ChunkSize or a nil
// Overlap uses the service options.
type IngestOptions struct {
	ChunkSize int
	Overlap   *int
	Clear     bool
}

// IngestReport summarizes an ingestion run.
type IngestReport struct {
	Documents int                 `json:"documents"`
	Passages  int                 `json:"passages"`
	Inserted  int                 `json:"inserted"`
	Total     int                 `json:"total"`
	Backend   vectorstore.Backend `json:"backend"`
	Store     string              `json:"store"`
	Digest    string              `json:"digest"`
}

// Ingest loads the files under paths and stores their passages.
func (s *RAGService) Ingest(ctx context.Context, paths []string, opts IngestOptions) (*IngestReport, error) {
	docs, err := s.loader.Walk(ctx, paths)
	if err != nil {
		return nil, err
	}
	return s.IngestDocuments(ctx, docs, opts)
}

// IngestDocuments runs repair, annotation, chunking, metadata extraction,
// embedding and batched insertion. Passages of a re-ingested source replace
// the stored ones.
func (s *RAGService) IngestDocuments(ctx context.Context, docs []domain.Document, opts IngestOptions) (*IngestReport, error) {
	if len(docs) == 0 {
		return nil, domain.ErrNoDocuments
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Clear {
		if err := s.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear store: %w", err)
		}
		s.logger.Info("collection cleared", "collection", s.opts.Collection)
	}

	overlap := -1
	if opts.Overlap != nil {
		overlap = *opts.Overlap
	}
	passages, err := s.ChunkDocuments(ctx, docs, opts.ChunkSize, overlap)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return nil, fmt.Errorf("no passages produced: %w", domain.ErrNoDocuments)
	}
	sources := make([]string, len(docs))
	for i, d := range docs {
		sources[i] = d.Source
	}

	var records []domain.EmbeddingRecord
	if embedding.IsCorpusFitted(s.embedder) {
		var previous []domain.EmbeddingRecord
		records, previous, err = s.refit(ctx, sources, passages)
		if err != nil {
			return nil, err
		}
		if err := s.rebuild(ctx, records, previous); err != nil {
			return nil, err
		}
	} else {
		records, err = s.embedPassages(ctx, passages)
		if err != nil {
			return nil, err
		}
		if err := s.store.DeleteSources(ctx, sources); err != nil {
			return nil, fmt.Errorf("delete sources: %w", err)
		}
		if err := s.insert(ctx, records); err != nil {
			return nil, err
		}
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if embedding.IsCorpusFitted(s.embedder) {
		s.fittedTo = total
	}
	report := &IngestReport{
		Documents: len(docs),
		Passages:  len(passages),
		Inserted:  len(records),
		Total:     total,
		Backend:   s.store.Backend,
		Store:     s.store.Name(),
	}
	if s.summarizer != nil {
		var all strings.Builder
		for _, d := range docs {
			all.WriteString(s.repairer.Repair(d.Content))
			all.WriteString("\n\n")
		}
		digest, err := s.summarizer.Summarize(all.String(), s.opts.SummaryMaxSentences)
		if err != nil {
			return nil, fmt.Errorf("summarize: %w", err)
		}
		report.Digest = digest
	}
	s.logger.Info("ingestion complete",
		"documents", report.Documents, "passages", report.Passages,
		"inserted", report.Inserted, "total", report.Total, "backend", report.Backend)
	return report, nil
}

// refit prepares a corpus-fitted embedder on the stored passages of other
// sources plus the new passages, and re-embeds all of them. It returns the
// records of the rebuilt collection and the records stored before.
func (s *RAGService) refit(ctx context.Context, sources []string, passages []domain.Passage) (records, previous []domain.EmbeddingRecord, err error) {
	stored, err := s.store.FetchAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch stored passages: %w", err)
	}
	replaced := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		replaced[src] = struct{}{}
	}
	all := make([]domain.Passage, 0, len(stored)+len(passages))
	for _, r := range stored {
		if _, ok := replaced[r.Passage.SourceID]; !ok {
			all = append(all, r.Passage)
		}
	}
	all = append(all, passages...)
	if len(all) == 0 {
		return nil, stored, nil
	}

	corpus := make([]string, len(all))
	for i, p := range all {
		corpus[i] = p.Content
	}
	// The embedder no longer matches the stored vectors until the rebuild
	// succeeds.
	s.fittedTo = -1
	if err := s.embedder.Prepare(corpus); err != nil {
		return nil, nil, fmt.Errorf("prepare %s embedder: %w", s.embedder.Name(), err)
	}
	records, err = s.embedPassages(ctx, all)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("embedder refit", "embedder", s.embedder.Name(), "passages", len(all), "dimension", s.embedder.Dimension())
	return records, stored, nil
}

// rebuild replaces the collection with records. When that fails the previous
// records are written back; the returned error says whether they survived.
func (s *RAGService) rebuild(ctx context.Context, records, previous []domain.EmbeddingRecord) error {
	err := s.store.Clear(ctx)
	if err == nil {
		err = s.insert(ctx, records)
	}
	if err == nil {
		return nil
	}
	s.logger.Error("rebuild failed, restoring previous passages", "passages", len(previous), "error", err)

	ctx = context.WithoutCancel(ctx)
	rerr := s.store.Clear(ctx)
	if rerr == nil {
		rerr = s.insert(ctx, previous)
	}
	if rerr != nil {
		s.logger.Error("restore failed", "lost", len(previous), "error", rerr)
		return fmt.Errorf("rebuild collection: %w (restore failed, %d passages lost: %v)", err, len(previous), rerr)
	}
	return fmt.Errorf("rebuild collection, %d previous passages restored: %w", len(previous), err)
}

func (s *RAGService) insert(ctx context.Context, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.store.Init(ctx, len(records[0].Vector)); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	for start := 0; start < len(records); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(records))
		if err := s.store.InsertBatch(ctx, records[start:end]); err != nil {
			return fmt.Errorf("insert batch %d-%d: %w", start, end, err)
		}
		s.logger.Debug("batch inserted", "from", start, "to", end)
	}
	return nil
}

// ChunkDocuments turns documents into passages with metadata attached.
// size <= 0 or overlap < 0 use the service options; overlap 0 disables it.
// Documents are processed in parallel; the result keeps document order and
// per-source passage order.
func (s *RAGService) ChunkDocuments(ctx context.Context, docs []domain.Document, size, overlap int) ([]domain.Passage, error) {
	if size <= 0 {
		size = s.opts.ChunkSize
	}
	if overlap < 0 {
		overlap = s.opts.Overlap
	}
	c := chunker.NewEntityChunker(size, overlap, chunker.WithLocale(s.opts.Locale))

	perDoc := make([][]domain.Passage, len(docs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perDoc[i] = s.preparePassages(c, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []domain.Passage
	for _, ps := range perDoc {
		out = append(out, ps...)
	}
	return out, nil
}

// Prepare runs the pre-embedding pipeline on one document with the service
// chunk settings.
func (s *RAGService) Prepare(doc domain.Document) []domain.Passage {
	c := chunker.NewEntityChunker(s.opts.ChunkSize, s.opts.Overlap, chunker.WithLocale(s.opts.Locale))
	return s.preparePassages(c, doc)
}

func (s *RAGService) preparePassages(c *chunker.EntityChunker, doc domain.Document) []domain.Passage {
	text := s.annotator.Annotate(s.repairer.Repair(doc.Content))
	passages := c.ChunkDocument(domain.Document{Source: doc.Source, Content: text})
	s.extractor.Attach(passages)
	return passages
}

func (s *RAGService) embedPassages(ctx context.Context, passages []domain.Passage) ([]domain.EmbeddingRecord, error) {
	records := make([]domain.EmbeddingRecord, len(passages))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, p := range passages {
		g.Go(func() error {
			vec, err := s.embedder.Embed(ctx, p.Content)
			if err != nil {
				return fmt.Errorf("embed %s#%d: %w", p.SourceID, p.Index, err)
			}
			records[i] = domain.EmbeddingRecord{Passage: p, Vector: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// Forget removes the passages of sources. A corpus-fitted embedder is refit
// on what remains.
func (s *RAGService) Forget(ctx context.Context, sources []string) (int, error) {
	if len(sources) == 0 {
		return s.store.Count(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if embedding.IsCorpusFitted(s.embedder) {
		records, previous, err := s.refit(ctx, sources, nil)
		if err != nil {
			return 0, err
		}
		if err := s.rebuild(ctx, records, previous); err != nil {
			return 0, err
		}
	} else if err := s.store.DeleteSources(ctx, sources); err != nil {
		return 0, fmt.Errorf("delete sources: %w", err)
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if embedding.IsCorpusFitted(s.embedder) {
		s.fittedTo = total
	}
	s.logger.Info("sources removed", "sources", len(sources), "total", total)
	return total, nil
}

// Query returns the contents of the best passages for text.
func (s *RAGService) Query(ctx context.Context, text string, k int, prioritizeMetadata bool) ([]string, error) {
	results, err := s.Search(ctx, text, k, prioritizeMetadata)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Passage.Content
	}
	return out, nil
}

// Search ranks the stored passages against text. k <= 0 uses the configured
// top-k. A query sharing no vocabulary with the corpus falls back to lexical
// overlap ranking.
func (s *RAGService) Search(ctx context.Context, text string, k int, prioritizeMetadata bool) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = s.opts.TopK
	}
	pool, err := s.store.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pool: %w", err)
	}
	if len(pool) == 0 {
		return []domain.SearchResult{}, nil
	}
	if err := s.ensureFitted(pool); err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if isZero(vec) {
		s.logger.Debug("query has no known terms, using lexical ranking", "query", text)
		return lexicalSearch(s.retriever, text, pool, k, prioritizeMetadata)
	}
	results, err := s.retriever.Rank(domain.Query{Text: text, Vector: vec}, pool, k, prioritizeMetadata)
	if err != nil {
		if errors.Is(err, retrieval.ErrDimensionMismatch) {
			s.logger.Error("stored vectors do not match the embedder", "embedder", s.embedder.Name(), "error", err)
		}
		return nil, err
	}
	return results, nil
}

// ensureFitted prepares a corpus-fitted embedder on the pool it will be
// compared against, when it was not already fitted on a pool of that size.
func (s *RAGService) ensureFitted(pool []domain.EmbeddingRecord) error {
	if !embedding.IsCorpusFitted(s.embedder) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fittedTo == len(pool) {
		return nil
	}
	corpus := make([]string, len(pool))
	for i, r := range pool {
		corpus[i] = r.Passage.Content
	}
	if err := s.embedder.Prepare(corpus); err != nil {
		return fmt.Errorf("prepare %s embedder: %w", s.embedder.Name(), err)
	}
	s.fittedTo = len(pool)
	return nil
}

// Stats describes the collection.
type Stats struct {
	vectorstore.Stats
	Collection string `json:"collection"`
	TestMode   bool   `json:"test_mode"`
}

func (s *RAGService) Stats(ctx context.Context) (Stats, error) {
	st, err := vectorstore.CollectStats(ctx, s.store)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Stats: st, Collection: s.opts.Collection, TestMode: s.opts.TestMode}, nil
}

// Analyze reports the factual content of the stored passages.
func (s *RAGService) Analyze(ctx context.Context) (metadata.EntityReport, error) {
	pool, err := s.store.FetchAll(ctx)
	if err != nil {
		return metadata.EntityReport{}, err
	}
	passages := make([]domain.Passage, len(pool))
	for i, r := range pool {
		passages[i] = r.Passage
	}
	return metadata.Analyze(passages), nil
}

// Clear empties the collection.
func (s *RAGService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.fittedTo = -1
	s.logger.Info("collection cleared", "collection", s.opts.Collection)
	return nil
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
