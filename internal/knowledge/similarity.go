package knowledge

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"me": true, "of": true, "on": true, "or": true, "the": true, "this": true,
	"to": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "why": true, "with": true, "you": true, "your": true,
}

// Terms lowercases text and returns its distinct non-stopword words in
// order of first appearance.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Similarity is the share of query terms found in doc, in [0, 1]. A query
// with no terms matches nothing.
func Similarity(query, doc string) float64 {
	q := Terms(query)
	if len(q) == 0 {
		return 0
	}
	d := make(map[string]bool)
	for _, t := range Terms(doc) {
		d[t] = true
	}
	hits := 0
	for _, t := range q {
		if d[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(q))
}

var topicKeywords = []string{
	"langchain", "langgraph", "crewai", "autogen", "pydantic", "agno",
	"openai", "gemini", "anthropic", "llm", "agent", "rag", "embedding",
	"vector", "memory", "tool", "mcp", "python", "javascript", "typescript",
	"api", "rest", "fastapi", "flask", "docker", "kubernetes", "go", "nats",
}

// MaxTopics caps the topics extracted for one entry.
const MaxTopics = 5

// ExtractTopics returns the known keywords that occur in text, in keyword
// order, at most MaxTopics of them.
func ExtractTopics(text string) []string {
	words := make(map[string]bool)
	for _, t := range Terms(text) {
		words[t] = true
	}
	lower := strings.ToLower(text)
	var found []string
	for _, k := range topicKeywords {
		// Short keywords must match a whole word; longer ones may be part
		// of one ("agents", "dockerfile").
		if words[k] || (len(k) > 3 && strings.Contains(lower, k)) {
			found = append(found, k)
			if len(found) == MaxTopics {
				break
			}
		}
	}
	return found
}
