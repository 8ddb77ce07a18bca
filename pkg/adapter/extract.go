package adapter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
)

// Extractor is the document-extraction collaborator: it turns an uploaded
// study material into plain text for the topic-mapping context. The core
// has no opinion on file formats beyond what an implementation accepts.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// TextExtractor handles plain-text materials. Anything else (PDF and
// friends) is a different collaborator behind the same interface.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (x *TextExtractor) Extract(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".text", "":
	default:
		return "", goerr.New("unsupported material format", goerr.V("path", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read material", goerr.V("path", path))
	}
	if !utf8.Valid(data) {
		return "", goerr.New("material is not valid text", goerr.V("path", path))
	}

	return string(data), nil
}
