package chunk

import "strings"

// Split divides the input into chunks per the options. The empty input
// yields no chunks. Output indexes are contiguous from zero, and offsets
// index into the trimmed input (chapters count as if joined by blank lines).
func Split(input Input, opts Options) []Chunk {
	opts = opts.normalized()

	var chunks []Chunk
	if opts.ByChapters && len(input.Chapters) > 0 {
		chunks = splitChapters(input.Chapters, opts)
	} else {
		text := strings.TrimSpace(input.Text)
		if text != "" {
			if opts.StructuralParser {
				chunks = splitStructural(text, opts)
			} else {
				chunks = splitBody(text, 0, nil, opts)
			}
		}
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TokenCount = opts.Estimator(chunks[i].Content)
		if opts.ExtractCodeExamples && strings.Contains(chunks[i].Content, "```") {
			chunks[i].HasCode = true
		}
	}
	return chunks
}

// splitChapters emits one chunk per chapter, falling back to the body walk
// for chapters over the size or token cap. Children inherit the chapter's
// title and timestamps.
func splitChapters(chapters []Chapter, opts Options) []Chunk {
	var out []Chunk
	base := 0
	for _, chapter := range chapters {
		content := strings.TrimSpace(chapter.Content)
		if content == "" {
			continue
		}

		var produced []Chunk
		if len(content) <= opts.MaxChunkSize && opts.Estimator(content) <= opts.MaxTokens {
			produced = []Chunk{{
				Content:   content,
				StartChar: base,
				EndChar:   base + len(content),
			}}
		} else {
			produced = splitBody(content, base, nil, opts)
		}

		for i := range produced {
			produced[i].ChapterTitle = chapter.Title
			produced[i].StartTime = chapter.StartTime
			produced[i].EndTime = chapter.EndTime
		}
		out = append(out, produced...)

		// Chapters are laid out as if joined by a blank line.
		base += len(content) + 2
	}
	return out
}

// span is a half-open byte range [start, end).
type span struct {
	start int
	end   int
}

// splitBody is the core walk. It accumulates text up to the target size,
// cuts at the best boundary (paragraph over sentence over word), then
// rewinds by the overlap for the next chunk. Fence spans, when given, stay
// atomic unless they alone exceed the hard cap. base shifts all recorded
// offsets.
func splitBody(text string, base int, fences []span, opts Options) []Chunk {
	target := opts.ChunkSize
	if maxChars := opts.MaxTokens * charsPerToken; target > maxChars {
		target = maxChars
	}

	var out []Chunk
	pos := 0
	n := len(text)
	for pos < n {
		for pos < n && isSpaceByte(text[pos]) {
			pos++
		}
		if pos >= n {
			break
		}

		end := pos + target
		if end >= n {
			end = n
		} else {
			end = findBoundary(text, pos, end)
			end = adjustForFence(fences, pos, end)
			if end > pos+opts.MaxChunkSize {
				end = pos + opts.MaxChunkSize
			}
			if end <= pos {
				end = min(pos+opts.MaxChunkSize, n)
			}
		}

		chunkEnd := end
		for chunkEnd > pos && isSpaceByte(text[chunkEnd-1]) {
			chunkEnd--
		}
		if chunkEnd > pos {
			out = append(out, Chunk{
				Content:   text[pos:chunkEnd],
				StartChar: base + pos,
				EndChar:   base + chunkEnd,
			})
		}
		if end >= n {
			break
		}

		next := end - opts.ChunkOverlap
		if next <= pos {
			next = end
		} else {
			next = snapToWordStart(text, next)
			if f, ok := fenceContaining(fences, next); ok {
				next = f.start
			}
			if next <= pos {
				next = end
			}
		}
		pos = next
	}

	return resplitOversize(out, opts)
}

// findBoundary returns the best cut point in (start, limit], preferring a
// paragraph break, then a sentence end, then a word gap.
func findBoundary(text string, start, limit int) int {
	window := text[start:limit]
	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return start + i
	}
	if i := lastSentenceEnd(window); i > 0 {
		return start + i
	}
	if i := strings.LastIndexByte(window, ' '); i > 0 {
		return start + i
	}
	if i := strings.LastIndexByte(window, '\n'); i > 0 {
		return start + i
	}
	return limit
}

// lastSentenceEnd returns the position just after the last sentence
// terminator in s, or -1.
func lastSentenceEnd(s string) int {
	best := -1
	for _, mark := range []string{". ", ".\n", "! ", "!\n", "? ", "?\n"} {
		if i := strings.LastIndex(s, mark); i >= 0 && i+1 > best {
			best = i + 1
		}
	}
	return best
}

// adjustForFence keeps a cut from landing inside a fenced block: the cut
// moves to the fence start when the fence began after pos, otherwise past
// the fence end so the block stays whole.
func adjustForFence(fences []span, pos, end int) int {
	f, ok := fenceContaining(fences, end)
	if !ok {
		return end
	}
	if f.start > pos {
		return f.start
	}
	return f.end
}

// fenceContaining reports the fence span strictly containing offset.
func fenceContaining(fences []span, offset int) (span, bool) {
	for _, f := range fences {
		if offset > f.start && offset < f.end {
			return f, true
		}
	}
	return span{}, false
}

// snapToWordStart moves pos back to the start of the word it falls in.
func snapToWordStart(text string, pos int) int {
	for pos > 0 && pos < len(text) && !isSpaceByte(text[pos-1]) {
		pos--
	}
	return pos
}

// resplitOversize re-splits any chunk whose estimated tokens exceed the
// cap, halving at a word boundary.
func resplitOversize(chunks []Chunk, opts Options) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		out = append(out, resplitChunk(c, opts)...)
	}
	return out
}

func resplitChunk(c Chunk, opts Options) []Chunk {
	if opts.Estimator(c.Content) <= opts.MaxTokens || len(c.Content) < 2 {
		return []Chunk{c}
	}

	mid := len(c.Content) / 2
	split := snapToWordStart(c.Content, mid)
	if split <= 0 || split >= len(c.Content) {
		split = mid
	}

	leftText := strings.TrimRight(c.Content[:split], " \n\t\r")
	rightText := c.Content[split:]
	lead := len(rightText) - len(strings.TrimLeft(rightText, " \n\t\r"))
	rightText = rightText[lead:]

	left := c
	left.Content = leftText
	left.EndChar = c.StartChar + len(leftText)

	right := c
	right.Content = rightText
	right.StartChar = c.StartChar + split + lead

	var out []Chunk
	if leftText != "" {
		out = append(out, resplitChunk(left, opts)...)
	}
	if rightText != "" {
		out = append(out, resplitChunk(right, opts)...)
	}
	return out
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
