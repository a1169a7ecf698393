package episode

import (
	"regexp"
	"strings"
)

// RelationMentionedWith is the only relation the heuristic extractor emits.
const RelationMentionedWith = "mentioned_with"

// HeuristicExtractor derives entity co-occurrence facts without a model.
// Entities are capitalized phrases and acronyms; two entities appearing in
// the same sentence yield a "mentioned_with" triple weighted by how often
// the pair co-occurs in the content.
type HeuristicExtractor struct{}

var _ Extractor = (*HeuristicExtractor)(nil)

// NewHeuristicExtractor creates the default fact extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

var (
	// Capitalized phrase: one or more TitleCase words in a row.
	phrasePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:[ -][A-Z][a-z]+)*\b`)

	// Acronym: two or more capitals, optionally with digits.
	acronymPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,}\b`)

	sentencePattern = regexp.MustCompile(`[.!?]+\s+|\n+`)
)

// entityStopwords are capitalized words that carry no entity meaning,
// mostly sentence starters.
var entityStopwords = map[string]struct{}{
	"The": {}, "A": {}, "An": {}, "It": {}, "Its": {}, "This": {},
	"That": {}, "These": {}, "Those": {}, "There": {}, "Here": {},
	"He": {}, "She": {}, "They": {}, "We": {}, "You": {}, "I": {},
	"In": {}, "On": {}, "At": {}, "By": {}, "For": {}, "With": {},
	"And": {}, "Or": {}, "But": {}, "So": {}, "If": {}, "When": {},
	"What": {}, "Which": {}, "While": {}, "Then": {}, "Now": {},
	"However": {}, "Also": {}, "Because": {}, "After": {}, "Before": {},
	"First": {}, "Second": {}, "Next": {}, "Finally": {}, "Not": {},
}

// Extract finds sentence-scoped entity pairs. The returned facts carry no
// provenance; the sink fills document and chunk ids.
func (e *HeuristicExtractor) Extract(content string) ([]Fact, error) {
	type pair struct{ subject, object string }
	counts := make(map[pair]float64)

	for _, sentence := range splitSentences(content) {
		entities := extractEntities(sentence)
		if len(entities) < 2 {
			continue
		}
		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				subject, object := entities[i], entities[j]
				// Canonical order keeps A,B and B,A as one triple.
				if subject > object {
					subject, object = object, subject
				}
				counts[pair{subject, object}]++
			}
		}
	}

	facts := make([]Fact, 0, len(counts))
	for p, weight := range counts {
		facts = append(facts, Fact{
			Subject:  p.subject,
			Relation: RelationMentionedWith,
			Object:   p.object,
			Weight:   weight,
		})
	}
	return facts, nil
}

// splitSentences breaks content at sentence punctuation and newlines.
func splitSentences(content string) []string {
	parts := sentencePattern.Split(content, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// extractEntities returns the deduplicated entities of one sentence.
func extractEntities(sentence string) []string {
	seen := make(map[string]struct{})
	var entities []string

	add := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		if len(candidate) < 2 {
			return
		}
		if _, stop := entityStopwords[candidate]; stop {
			return
		}
		if _, dup := seen[candidate]; dup {
			return
		}
		seen[candidate] = struct{}{}
		entities = append(entities, candidate)
	}

	for _, m := range phrasePattern.FindAllString(sentence, -1) {
		add(m)
	}
	for _, m := range acronymPattern.FindAllString(sentence, -1) {
		add(m)
	}
	return entities
}
