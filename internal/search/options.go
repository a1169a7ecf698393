package search

// Options configure one Search call. Zero fields fall back to the engine's
// configured defaults.
type Options struct {
	// MatchCount is the desired top-K. Defaulted and clamped to the
	// configured maximum.
	MatchCount int `json:"match_count,omitempty"`

	// Type selects semantic, lexical, or hybrid. Empty means hybrid.
	Type Type `json:"search_type,omitempty"`

	// Filter narrows results beyond access control.
	Filter Filter `json:"filter,omitempty"`

	// UseRerank runs the reranker over the fused list when one is
	// configured.
	UseRerank bool `json:"use_rerank,omitempty"`

	// RRFK overrides the fusion constant. Zero uses the configured value.
	RRFK int `json:"rrf_k,omitempty"`
}

// normalize fills defaults from config and clamps the match count.
func (e *Engine) normalize(opts Options) Options {
	if opts.MatchCount <= 0 {
		opts.MatchCount = e.cfg.DefaultMatchCount
	}
	if opts.MatchCount > e.cfg.MaxMatchCount {
		opts.MatchCount = e.cfg.MaxMatchCount
	}
	if opts.Type == "" {
		opts.Type = TypeHybrid
	}
	if opts.RRFK <= 0 {
		opts.RRFK = e.cfg.RRFK
	}
	if !opts.UseRerank {
		opts.UseRerank = e.cfg.UseRerank
	}
	return opts
}
