package docparse

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// SupportedType reports whether files of the given MIME type or extension
// can be parsed.
func SupportedType(fileType string) bool {
	switch normalizeType(fileType) {
	case "pdf", "txt":
		return true
	}
	return false
}

// ExtractText reads the document at path and returns its plain text.
// PDF files are decoded page by page; text files are read as-is.
func ExtractText(path, fileType string) (string, error) {
	switch normalizeType(fileType) {
	case "pdf":
		return extractPDF(path)
	case "txt":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read text file: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported file type %q", fileType)
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	content, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	if _, err := io.Copy(&sb, content); err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return sb.String(), nil
}

func normalizeType(fileType string) string {
	t := strings.ToLower(strings.TrimPrefix(fileType, "."))
	switch t {
	case "application/pdf", "pdf":
		return "pdf"
	case "text/plain", "txt", "text":
		return "txt"
	}
	return t
}
