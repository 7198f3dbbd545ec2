package stream

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// ChunkSize is the target length of one agent_output chunk.
const ChunkSize = 200

// Chunk splits content into pieces of at most size bytes, breaking only after
// a newline unless a single line is longer than size. Concatenating the
// chunks gives back content exactly.
func Chunk(content string, size int) []string {
	if content == "" {
		return nil
	}
	if size <= 0 || len(content) <= size {
		return []string{content}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.SplitAfter(content, "\n") {
		if line == "" {
			continue
		}
		if len(line) > size {
			flush()
			chunks = append(chunks, splitLong(line, size)...)
			continue
		}
		if cur.Len()+len(line) > size {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}

// splitLong cuts s at size bytes, backing off so no rune is split.
func splitLong(s string, size int) []string {
	var out []string
	for len(s) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = size
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// EstimateTokens is a cost proxy: twice the whitespace-delimited word count.
func EstimateTokens(content string) int {
	return 2 * len(strings.Fields(content))
}

// Seconds is the time since start rounded to a tenth of a second.
func Seconds(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*10) / 10
}

// clip truncates s to n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
