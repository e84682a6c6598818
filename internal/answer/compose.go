package answer

import (
	"regexp"
	"strings"
)

const (
	maxHighlights      = 3
	maxFallbackSources = 2
)

// numberPattern matches monetary amounts, percentages and plain figures the
// way they appear in financial text.
var numberPattern = regexp.MustCompile(`[$€£]?\d[\d,]*(?:\.\d+)?\s?(?:%|[KMBkmb]\b)?`)

// compose builds the answer text from sources already ordered by similarity.
// Sentences carrying numeric values are preferred; without any, the leading
// sentences of the best chunks are quoted instead.
func compose(sources []Source) string {
	var b strings.Builder

	highlights := numericHighlights(sources)
	if len(highlights) > 0 {
		b.WriteString("Based on the indexed documents:")
		for _, h := range highlights {
			b.WriteString("\n- ")
			b.WriteString(h)
		}
	} else {
		b.WriteString("Based on the most relevant passages:")
		n := len(sources)
		if n > maxFallbackSources {
			n = maxFallbackSources
		}
		for _, s := range sources[:n] {
			b.WriteString("\n- ")
			b.WriteString(leadingSentences(s.Text, 2))
		}
	}

	if names := documentNames(sources); len(names) > 0 {
		b.WriteString("\n\nSources: ")
		b.WriteString(strings.Join(names, ", "))
	}
	return b.String()
}

// numericHighlights returns sentences containing numeric values, drawn from
// the highest-similarity sources first.
func numericHighlights(sources []Source) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range sources {
		for _, sentence := range splitSentences(s.Text) {
			if len(out) >= maxHighlights {
				return out
			}
			if !numberPattern.MatchString(sentence) {
				continue
			}
			sentence = strings.TrimSpace(sentence)
			if sentence == "" || seen[sentence] {
				continue
			}
			seen[sentence] = true
			out = append(out, sentence)
		}
	}
	return out
}

func leadingSentences(text string, n int) string {
	sentences := splitSentences(text)
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	return strings.Join(sentences, " ")
}

// splitSentences cuts text after '.', '!' or '?' followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && (text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t') {
			out = append(out, text[start:i+1])
			start = i + 2
		}
	}
	if start < len(text) {
		if rest := strings.TrimSpace(text[start:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// documentNames collects the originating document identifiers of the sources,
// preferring a file_name metadata entry, in similarity order without
// duplicates.
func documentNames(sources []Source) []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range sources {
		name := s.DocumentID
		if fn, ok := s.Metadata["file_name"]; ok && fn != "" {
			name = fn
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
