package extract

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/finsight/finsight/internal/faults"
)

// fromPDF extracts the plain text of every page. The pdf library works on
// file paths directly.
func fromPDF(path string) (Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	body, err := reader.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("extracting pdf text from %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return Document{}, fmt.Errorf("reading pdf text from %s: %w", path, err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return Document{}, fmt.Errorf("pdf %s has no extractable text: %w", path, faults.ErrEmptyInput)
	}

	meta := baseMetadata(path, "pdf")
	meta["pages"] = strconv.Itoa(reader.NumPage())
	return Document{Text: text, Metadata: meta}, nil
}
