package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/havenops/ric/internal/access"
	"github.com/havenops/ric/internal/config"
	ricerrors "github.com/havenops/ric/internal/errors"
	"github.com/havenops/ric/internal/store"
)

// Engine fans a query out to the configured searchers, fuses their ranked
// lists, and optionally reranks the pool. Access control is compiled from
// the principal once and applied inside every searcher's store query.
type Engine struct {
	semantic Searcher
	lexical  Searcher
	graph    Searcher
	reranker Reranker
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// NewEngine wires an engine from pre-built searchers. graph and reranker
// may be nil; hybrid searches then skip those stages.
func NewEngine(semantic, lexical, graph Searcher, reranker Reranker, cfg config.SearchConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		semantic: semantic,
		lexical:  lexical,
		graph:    graph,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search runs one retrieval request for the principal.
//
// Searchers run concurrently, each under its own timeout. A failing
// searcher contributes an empty list and a warning; the call errors only
// when every searcher fails. With a single searcher the results keep its
// native scores; with several, scores are the fused reciprocal ranks.
func (e *Engine) Search(ctx context.Context, text string, principal access.Principal, opts Options) (*Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ricerrors.BadInput("query is required")
	}
	opts = e.normalize(opts)

	if deadline := e.cfg.RequestDeadlineMS; deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(deadline)*time.Millisecond)
		defer cancel()
	}

	searchers := e.searchersFor(opts.Type)
	overFetch := e.cfg.OverFetch
	if overFetch < 1 {
		overFetch = 1
	}
	q := Query{
		Text:   text,
		Limit:  opts.MatchCount * overFetch,
		Access: access.Compile(principal),
		Filter: opts.Filter,
	}

	lists := make([][]*store.SearchResult, len(searchers))
	errs := make([]error, len(searchers))

	g, groupCtx := errgroup.WithContext(ctx)
	for i, s := range searchers {
		g.Go(func() error {
			subCtx := groupCtx
			if t := e.cfg.PerSubCallTimeoutMS; t > 0 {
				var cancel context.CancelFunc
				subCtx, cancel = context.WithTimeout(groupCtx, time.Duration(t)*time.Millisecond)
				defer cancel()
			}
			lists[i], errs[i] = s.Search(subCtx, q)
			return nil
		})
	}
	_ = g.Wait()

	var warnings []Warning
	var firstErr error
	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = err
		}
		e.logger.Warn("searcher failed",
			"searcher", searchers[i].Name(),
			"error", err)
		warnings = append(warnings, Warning{
			Searcher: searchers[i].Name(),
			Message:  err.Error(),
		})
	}
	if failed == len(searchers) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ricerrors.FromContext(ctxErr)
		}
		return nil, ricerrors.Unavailable(firstErr, "all searchers failed")
	}

	var results []*store.SearchResult
	if len(searchers) == 1 {
		results = lists[0]
	} else {
		results = fuse(lists, opts.RRFK)
	}

	if opts.UseRerank && e.reranker != nil && len(results) > 1 {
		reranked, err := e.rerank(ctx, text, results, opts.MatchCount)
		if err != nil {
			e.logger.Warn("rerank failed, keeping fused order", "error", err)
			warnings = append(warnings, Warning{Searcher: "reranker", Message: err.Error()})
		} else {
			results = reranked
		}
	}

	if len(results) > opts.MatchCount {
		results = results[:opts.MatchCount]
	}
	return &Response{
		Results:  results,
		Count:    len(results),
		Warnings: warnings,
	}, nil
}

// searchersFor selects the fan-out for a search type. Graph retrieval only
// joins hybrid searches, and only when configured.
func (e *Engine) searchersFor(t Type) []Searcher {
	switch t {
	case TypeSemantic:
		return []Searcher{e.semantic}
	case TypeLexical:
		return []Searcher{e.lexical}
	default:
		searchers := []Searcher{e.semantic, e.lexical}
		if e.cfg.EnableGraph && e.graph != nil {
			searchers = append(searchers, e.graph)
		}
		return searchers
	}
}

// rerank sends the top of the fused list through the reranker and maps the
// returned permutation back onto results.
func (e *Engine) rerank(ctx context.Context, query string, results []*store.SearchResult, matchCount int) ([]*store.SearchResult, error) {
	pool := matchCount * e.cfg.RerankOverFetch
	if pool < matchCount {
		pool = matchCount
	}
	if pool > len(results) {
		pool = len(results)
	}

	documents := make([]string, pool)
	for i := 0; i < pool; i++ {
		documents[i] = results[i].Content
	}

	ranked, err := e.reranker.Rerank(ctx, query, documents, matchCount)
	if err != nil {
		return nil, err
	}

	out := make([]*store.SearchResult, 0, len(ranked))
	for _, rr := range ranked {
		r := *results[rr.Index]
		r.Score = rr.Score
		out = append(out, &r)
	}
	return out, nil
}
