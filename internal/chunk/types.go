// Package chunk splits normalized text into overlapping retrieval units.
//
// The splitter is boundary aware: it prefers paragraph breaks over sentence
// ends over word gaps, accumulates units up to a target size, and rewinds by
// a configurable overlap so context survives chunk borders. Chapter inputs
// and a markdown structural pass layer metadata on top of the same walk.
package chunk

import "strings"

// Defaults applied when an Options field is zero.
const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the character overlap between adjacent chunks.
	DefaultChunkOverlap = 200

	// DefaultMaxChunkSize is the hard cap; no chunk exceeds it.
	DefaultMaxChunkSize = 2000

	// DefaultMaxTokens caps estimated tokens per chunk.
	DefaultMaxTokens = 512

	// charsPerToken is the rough chars-to-tokens ratio for English prose.
	charsPerToken = 4
)

// Chapter is a titled, optionally timestamped span of source content,
// typically a video chapter or an article section.
type Chapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`

	// StartTime and EndTime are seconds into the source media.
	// Zero when the source has no timeline.
	StartTime float64 `json:"start_time,omitempty"`
	EndTime   float64 `json:"end_time,omitempty"`
}

// Options controls one splitting call.
type Options struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int

	// ChunkOverlap is how far the next chunk reaches back into the
	// previous one, snapped to a word boundary.
	ChunkOverlap int

	// MaxChunkSize is the hard length cap. Units longer than this are
	// split mid-word.
	MaxChunkSize int

	// MaxTokens caps estimated tokens per chunk; oversize chunks are
	// re-split.
	MaxTokens int

	// ByChapters makes each input chapter an independent chunk carrying
	// chapter metadata. Oversize chapters fall back to the body walk.
	ByChapters bool

	// StructuralParser enables the markdown section pass. Heading paths
	// become section metadata and fenced code blocks stay atomic.
	StructuralParser bool

	// ExtractCodeExamples marks chunks containing fenced code.
	ExtractCodeExamples bool

	// Estimator converts text to an approximate token count.
	// Defaults to len/4.
	Estimator func(string) int
}

// DefaultOptions returns the default splitting options.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		MaxChunkSize: DefaultMaxChunkSize,
		MaxTokens:    DefaultMaxTokens,
	}
}

// normalized fills zero fields with defaults and clamps inconsistent values.
func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = DefaultMaxChunkSize
	}
	if o.MaxChunkSize < o.ChunkSize {
		o.MaxChunkSize = o.ChunkSize
	}
	if o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = o.ChunkSize / 2
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Estimator == nil {
		o.Estimator = EstimateTokens
	}
	return o
}

// Input is the content handed to Split.
type Input struct {
	// Text is the full document body. Ignored in chapter mode when
	// chapters are present.
	Text string

	// Chapters is the chapter list, used when Options.ByChapters is set.
	Chapters []Chapter
}

// Chunk is one retrieval unit produced by Split.
type Chunk struct {
	// Index is the chunk's position in the output, 0-based and contiguous.
	Index int

	Content string

	// StartChar and EndChar index into the trimmed input. Adjacent
	// chunks may overlap.
	StartChar int
	EndChar   int

	// TokenCount is the estimated token count.
	TokenCount int

	// Chapter metadata, set in chapter mode.
	ChapterTitle string
	StartTime    float64
	EndTime      float64

	// SectionPath is the heading path from the structural pass,
	// like "Install > Linux".
	SectionPath string

	// HasCode marks chunks containing fenced code.
	HasCode bool
}

// EstimateTokens approximates the token count of text as len/4,
// rounded up.
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	return (len(trimmed) + charsPerToken - 1) / charsPerToken
}
