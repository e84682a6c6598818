package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/finsight/finsight/internal/faults"
)

// blockElements end with a paragraph break so chunking can still find
// boundaries in the stripped text.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "table": true, "blockquote": true, "pre": true,
	"br": true,
}

// skippedElements contribute no visible text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "head": true, "noscript": true,
}

// fromHTML strips markup keeping block boundaries as blank lines.
func fromHTML(path string, data []byte) (Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("parsing html %s: %w", path, err)
	}

	var b strings.Builder
	walk(root, &b)

	text := collapseBlankLines(b.String())
	if text == "" {
		return Document{}, fmt.Errorf("html %s has no visible text: %w", path, faults.ErrEmptyInput)
	}
	return Document{Text: text, Metadata: baseMetadata(path, "html")}, nil
}

func walk(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && skippedElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			b.WriteString(t)
			b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		b.WriteString("\n\n")
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
