package search

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/warnings"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
	"github.com/jamaly87/codebase-semantic-search/pkg/ignore"
)

// EmbeddingsClient generates a query embedding for a dense search pass.
type EmbeddingsClient interface {
	GenerateEmbedding(text string) ([]float32, error)
}

// VectorDB runs a nearest-neighbor search against one codebase's collection.
type VectorDB interface {
	Search(ctx context.Context, embedding []float32, repoPath string, limit int) ([]models.CodeChunk, []float64, error)
}

// ChangedFilesProvider supplies a codebase's changed-files set for the
// auto_changed_first ranking boost.
type ChangedFilesProvider interface {
	ChangedFiles(repoPath string) ([]string, error)
}

// RerankResolver decides whether a rerank should run for a given request.
type RerankResolver interface {
	ShouldRerank(requested *bool, scope string) bool
}

// Reranker reorders candidates by relevance to the query. It returns scores
// aligned 1:1 with the input slice.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []models.CodeChunk) ([]float64, error)
}

// Pipeline implements the full search_codebase post-processing contract:
// scope filtering, concurrent dense passes, must-filter retries, optional
// reranking, diversity clamping, changed-files boosting, grouping, merging,
// and noise/navigation hints.
type Pipeline struct {
	cfg              *config.SearchConfig
	embeddingsClient EmbeddingsClient
	vectorDB         VectorDB
	changed          ChangedFilesProvider
	capability       RerankResolver
	reranker         Reranker
}

// NewPipeline builds a Pipeline. changed, capability and reranker may all be
// nil — the corresponding features are simply skipped.
func NewPipeline(cfg *config.SearchConfig, embeddingsClient EmbeddingsClient, vectorDB VectorDB, changed ChangedFilesProvider, capability RerankResolver, reranker Reranker) *Pipeline {
	return &Pipeline{
		cfg:              cfg,
		embeddingsClient: embeddingsClient,
		vectorDB:         vectorDB,
		changed:          changed,
		capability:       capability,
		reranker:         reranker,
	}
}

type passResult struct {
	id     string
	chunks []models.CodeChunk
	scores []float64
	err    error
}

// Run executes the full pipeline for one search_codebase call.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Response, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = p.cfg.MaxResults
	}
	if limit > p.cfg.MaxSearchLimit {
		limit = p.cfg.MaxSearchLimit
	}

	ops := parseOperators(opts.Query)
	semanticQuery := ops.Query

	scope := opts.Scope
	if scope == "" {
		scope = ScopeMixed
	}

	var excludeMatcher *ignore.Matcher
	exclude := append([]string{}, opts.ExcludePatterns...)
	exclude = append(exclude, ops.Exclude...)
	if len(exclude) > 0 {
		excludeMatcher = ignore.NewMatcher(exclude)
	}

	topK := limit * 3
	if topK < p.cfg.NoiseTopK {
		topK = p.cfg.NoiseTopK
	}

	candidates, warns, err := p.runPasses(ctx, semanticQuery, opts.Path, topK)
	if err != nil {
		return nil, err
	}

	candidates = p.filterCandidates(candidates, opts, scope, excludeMatcher, ops)

	var mustWarnings []string
	if len(ops.Must) > 0 {
		candidates, mustWarnings = p.enforceMustFilter(ctx, candidates, semanticQuery, opts, scope, excludeMatcher, ops)
		warns = append(warns, mustWarnings...)
	} else if len(candidates) < limit && topK < p.cfg.MustFilterTopKCeiling {
		widened, widenWarns, err := p.runPasses(ctx, semanticQuery, opts.Path, p.cfg.MustFilterTopKCeiling)
		if err == nil {
			candidates = p.filterCandidates(widened, opts, scope, excludeMatcher, ops)
			warns = append(warns, widenWarns...)
		}
	}

	rerankInfo := &RerankInfo{}
	if p.capability != nil {
		rerankInfo.Enabled = p.capability.ShouldRerank(opts.UseReranker, string(scope))
	}
	if rerankInfo.Enabled && p.reranker != nil && len(candidates) > 0 {
		rerankInfo.Attempted = true
		chunks := make([]models.CodeChunk, len(candidates))
		for i, c := range candidates {
			chunks[i] = c.Chunk
		}
		scores, rerankErr := p.reranker.Rerank(ctx, semanticQuery, chunks)
		if rerankErr != nil {
			rerankInfo.ErrorCode = warnings.RerankerFailed
			warns = append(warns, warnings.New(warnings.RerankerFailed))
			slog.Warn("reranker failed, falling back to unreranked order", "error", rerankErr)
		} else if len(scores) == len(candidates) {
			for i := range candidates {
				candidates[i].Score = scores[i]
			}
			rerankInfo.Applied = true
		}
	}

	if opts.RankingMode == RankingAutoChangedFirst {
		candidates = p.applyChangedFirstBoost(opts.Path, candidates)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	resp := &Response{ResultMode: opts.ResultMode, Warnings: warns, Rerank: rerankInfo}
	if resp.ResultMode == "" {
		resp.ResultMode = ResultModeRaw
	}

	if resp.ResultMode == ResultModeGrouped {
		groups := groupBySymbol(candidates)
		groups, clamp := clampDiversity(groups, p.cfg.MaxPerFile, p.cfg.MaxPerSymbol)
		resp.Clamp = &clamp

		if len(groups) > limit {
			groups = groups[:limit]
		}

		resp.Results = make([]ResultItem, len(groups))
		for i, g := range groups {
			item := ResultItem{Chunk: g.Best.Chunk, GroupID: g.GroupID, SymbolLabel: g.SymbolLabel}
			if opts.ShowScores {
				item.Score = g.Best.Score
			}
			if g.SymbolID == "" {
				item.NavigationFallback = buildNavigationFallback(opts.Path, g.Best.Chunk)
			}
			resp.Results[i] = item
		}

		if hint := computeNoiseMitigation(p.cfg, groups, limit); hint != nil {
			resp.Hints = &Hints{Version: 1, NoiseMitigation: hint}
		}
	} else {
		if !opts.ReturnRaw {
			candidates = mergeAdjacent(opts.Path, candidates, p.cfg.AdjacentMergeLineDistance)
			sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
		}
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		resp.Results = make([]ResultItem, len(candidates))
		for i, c := range candidates {
			item := ResultItem{Chunk: c.Chunk}
			if opts.ShowScores {
				item.Score = c.Score
			}
			resp.Results[i] = item
		}
	}

	return resp, nil
}

// runPasses issues the primary and expanded queries concurrently.
func (p *Pipeline) runPasses(ctx context.Context, query, repoPath string, topK int) ([]Candidate, []string, error) {
	results := make([]passResult, 2)
	passes := []struct {
		id    string
		query string
	}{
		{"primary", query},
		{"expanded", strings.TrimSpace(query + " " + p.cfg.ExpandedQuerySuffix)},
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, pass := range passes {
		i, pass := i, pass
		g.Go(func() error {
			embedding, err := p.embeddingsClient.GenerateEmbedding(pass.query)
			if err != nil {
				results[i] = passResult{id: pass.id, err: err}
				return nil
			}
			chunks, scores, err := p.vectorDB.Search(gctx, embedding, repoPath, topK)
			results[i] = passResult{id: pass.id, chunks: chunks, scores: scores, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var warns []string
	var candidates []Candidate
	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
			warns = append(warns, warnings.Newf(warnings.SearchPassFailed, fmt.Sprintf("%s — %v", r.id, r.err)))
			continue
		}
		for i, chunk := range r.chunks {
			candidates = append(candidates, Candidate{Chunk: chunk, Score: r.scores[i], SemanticOf: r.id})
		}
	}

	if failures == len(results) {
		return nil, nil, fmt.Errorf("all semantic search passes failed")
	}

	return dedupeCandidates(candidates), warns, nil
}

// dedupeCandidates keeps the highest-scoring candidate per chunk id across
// the two passes.
func dedupeCandidates(candidates []Candidate) []Candidate {
	best := make(map[string]Candidate, len(candidates))
	var order []string
	for _, c := range candidates {
		existing, ok := best[c.Chunk.ID]
		if !ok {
			best[c.Chunk.ID] = c
			order = append(order, c.Chunk.ID)
			continue
		}
		if c.Score > existing.Score {
			best[c.Chunk.ID] = c
		}
	}
	deduped := make([]Candidate, 0, len(order))
	for _, id := range order {
		deduped = append(deduped, best[id])
	}
	return deduped
}

// filterCandidates applies scope classification, lang:/path: operators,
// extensionFilter, and excludePatterns.
func (p *Pipeline) filterCandidates(candidates []Candidate, opts Options, scope Scope, excludeMatcher *ignore.Matcher, ops parsedOperators) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		relPath := c.Chunk.FilePath

		if !scopeAllows(scope, relPath) {
			continue
		}
		if excludeMatcher != nil && excludeMatcher.Match(relPath, false) {
			continue
		}
		if len(opts.ExtensionFilter) > 0 && !matchesExtension(relPath, opts.ExtensionFilter) {
			continue
		}
		if len(ops.Lang) > 0 && !containsFold(ops.Lang, c.Chunk.Language) {
			continue
		}
		if len(ops.Path) > 0 && !matchesAnySubstring(relPath, ops.Path) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesExtension(path string, exts []string) bool {
	got := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, ext := range exts {
		if strings.EqualFold(strings.TrimPrefix(ext, "."), got) {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func matchesAnySubstring(path string, needles []string) bool {
	pathLower := strings.ToLower(path)
	for _, n := range needles {
		if strings.Contains(pathLower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// enforceMustFilter widens topK and retries up to MustFilterMaxRetries times
// until every candidate contains every must: token, or gives up and returns
// an empty set with FILTER_MUST_UNSATISFIED.
func (p *Pipeline) enforceMustFilter(ctx context.Context, candidates []Candidate, query string, opts Options, scope Scope, excludeMatcher *ignore.Matcher, ops parsedOperators) ([]Candidate, []string) {
	satisfies := func(c Candidate) bool {
		contentLower := strings.ToLower(c.Chunk.Content)
		for _, token := range ops.Must {
			if !strings.Contains(contentLower, strings.ToLower(token)) {
				return false
			}
		}
		return true
	}

	filtered := filterBy(candidates, satisfies)
	if len(filtered) > 0 {
		return filtered, nil
	}

	topK := len(candidates)
	for attempt := 0; attempt < p.cfg.MustFilterMaxRetries; attempt++ {
		if topK >= p.cfg.MustFilterTopKCeiling {
			break
		}
		topK = p.cfg.MustFilterTopKCeiling

		widened, _, err := p.runPasses(ctx, query, opts.Path, topK)
		if err != nil {
			break
		}
		widened = p.filterCandidates(widened, opts, scope, excludeMatcher, ops)
		filtered = filterBy(widened, satisfies)
		if len(filtered) > 0 {
			return filtered, nil
		}
	}

	return nil, []string{warnings.New(warnings.FilterMustUnsatisfied)}
}

func filterBy(candidates []Candidate, keep func(Candidate) bool) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// applyChangedFirstBoost adds a deterministic additive boost to candidates
// whose relative path is in the codebase's current changed-files set.
func (p *Pipeline) applyChangedFirstBoost(repoPath string, candidates []Candidate) []Candidate {
	if p.changed == nil {
		return candidates
	}
	changedFiles, err := p.changed.ChangedFiles(repoPath)
	if err != nil {
		slog.Warn("changed-files lookup failed, skipping auto_changed_first boost", "path", repoPath, "error", err)
		return candidates
	}
	if len(changedFiles) > p.cfg.ChangedFirstMaxFiles {
		return candidates
	}

	changedSet := make(map[string]bool, len(changedFiles))
	for _, f := range changedFiles {
		changedSet[f] = true
	}

	for i := range candidates {
		if changedSet[candidates[i].Chunk.FilePath] {
			candidates[i].Score += p.cfg.ChangedFirstBoost
		}
	}
	return candidates
}

// buildNavigationFallback attaches navigation hints when a grouped result
// has no resolvable symbol.
func buildNavigationFallback(codebaseRoot string, chunk models.CodeChunk) *NavigationFallback {
	return &NavigationFallback{
		Message: "no resolvable symbol for this result; read the surrounding file span directly",
		Context: NavigationContext{
			CodebaseRoot: codebaseRoot,
			RelativeFile: chunk.FilePath,
			AbsolutePath: filepath.Join(codebaseRoot, chunk.FilePath),
		},
		ReadSpan: ReadSpan{
			Tool: "read_file",
			Args: ReadSpanArgs{
				Path:      filepath.Join(codebaseRoot, chunk.FilePath),
				StartLine: chunk.StartLine,
				EndLine:   chunk.EndLine,
			},
		},
	}
}
