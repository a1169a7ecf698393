package chunk

import "strings"

// section is a heading-delimited region of a markdown document.
type section struct {
	path  string
	start int
	end   int
}

// splitStructural runs the body walk per markdown section. Each chunk gets
// the heading path of its section, and fenced code blocks are kept atomic
// within the walk.
func splitStructural(text string, opts Options) []Chunk {
	sections := parseSections(text)
	fences := findFences(text)

	var out []Chunk
	for _, sec := range sections {
		secText := text[sec.start:sec.end]
		if strings.TrimSpace(secText) == "" {
			continue
		}

		var secFences []span
		for _, f := range fences {
			if f.start >= sec.start && f.end <= sec.end {
				secFences = append(secFences, span{f.start - sec.start, f.end - sec.start})
			}
		}

		chunks := splitBody(secText, sec.start, secFences, opts)
		for i := range chunks {
			chunks[i].SectionPath = sec.path
		}
		out = append(out, chunks...)
	}
	return out
}

// parseSections walks the document line by line, tracking the ATX heading
// stack. Content before the first heading becomes a section with an empty
// path. Headings inside fenced code blocks are ignored.
func parseSections(text string) []section {
	type heading struct {
		level int
		title string
	}

	var sections []section
	var stack []heading
	secStart := 0
	inFence := false
	pos := 0

	flush := func(end int) {
		if end <= secStart {
			return
		}
		titles := make([]string, len(stack))
		for i, h := range stack {
			titles[i] = h.title
		}
		sections = append(sections, section{
			path:  strings.Join(titles, " > "),
			start: secStart,
			end:   end,
		})
	}

	for pos < len(text) {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		var next int
		if lineEnd < 0 {
			lineEnd = len(text)
			next = lineEnd
		} else {
			lineEnd += pos
			next = lineEnd + 1
		}
		line := text[pos:lineEnd]

		trimmed := strings.TrimSpace(line)
		if isFenceLine(trimmed) {
			inFence = !inFence
		} else if !inFence {
			if level, title, ok := parseHeading(trimmed); ok {
				flush(pos)
				for len(stack) > 0 && stack[len(stack)-1].level >= level {
					stack = stack[:len(stack)-1]
				}
				stack = append(stack, heading{level, title})
				secStart = pos
			}
		}
		pos = next
	}
	flush(len(text))
	return sections
}

// parseHeading parses an ATX heading line ("## Title") into level and title.
func parseHeading(line string) (int, string, bool) {
	if !strings.HasPrefix(line, "#") {
		return 0, "", false
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		return 0, "", false
	}
	rest := line[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, "", false
	}
	title := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#"))
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}

// findFences returns the spans of fenced code blocks, opening fence line
// through closing fence line. An unclosed fence runs to the end of input.
func findFences(text string) []span {
	var fences []span
	fenceStart := -1
	pos := 0

	for pos < len(text) {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		var next int
		if lineEnd < 0 {
			lineEnd = len(text)
			next = lineEnd
		} else {
			lineEnd += pos
			next = lineEnd + 1
		}

		trimmed := strings.TrimSpace(text[pos:lineEnd])
		if isFenceLine(trimmed) {
			if fenceStart < 0 {
				fenceStart = pos
			} else {
				fences = append(fences, span{fenceStart, lineEnd})
				fenceStart = -1
			}
		}
		pos = next
	}
	if fenceStart >= 0 {
		fences = append(fences, span{fenceStart, len(text)})
	}
	return fences
}

func isFenceLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}
