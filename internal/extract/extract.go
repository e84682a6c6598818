// Package extract turns document files into plain text plus metadata for
// ingestion. Supported formats are PDF, HTML and plain text; the format is
// chosen by file extension.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/finsight/finsight/internal/faults"
)

// Document is extracted text with source metadata.
type Document struct {
	Text     string
	Metadata map[string]string
}

// File reads and extracts the document at path.
func File(path string) (Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return fromPDF(path)
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("reading %s: %w", path, err)
		}
		return fromHTML(path, data)
	case ".txt", ".md", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("reading %s: %w", path, err)
		}
		return fromText(path, data)
	default:
		return Document{}, fmt.Errorf("unsupported file type %q: %w",
			filepath.Ext(path), faults.ErrEmptyInput)
	}
}

func fromText(path string, data []byte) (Document, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return Document{}, fmt.Errorf("%s: %w", path, faults.ErrEmptyInput)
	}
	return Document{
		Text:     text,
		Metadata: baseMetadata(path, "text"),
	}, nil
}

func baseMetadata(path, fileType string) map[string]string {
	return map[string]string{
		"file_name": filepath.Base(path),
		"file_type": fileType,
	}
}
