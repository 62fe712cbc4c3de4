// Package loader reads the research-paper corpus from disk.
package loader

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"paperqa/internal/domain"
)

var ErrNoDocuments = errors.New("no text documents found")

// LoadDir reads every .txt and .pdf file directly inside dir, sorted by name.
func LoadDir(dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var docs []domain.Document
	for _, name := range names {
		path := filepath.Join(dir, name)
		var (
			content string
			err     error
		)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt":
			var data []byte
			data, err = os.ReadFile(path)
			content = string(data)
		case ".pdf":
			content, err = readPDF(path)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, domain.Document{
			ID:      hashString(path),
			Path:    path,
			Title:   strings.TrimSuffix(name, filepath.Ext(name)),
			Content: content,
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoDocuments)
	}
	return docs, nil
}

// Ingest loads dir and splits every document with c, preserving file order.
func Ingest(dir string, c domain.Chunker) ([]domain.Document, []domain.Chunk, error) {
	docs, err := LoadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	var chunks []domain.Chunk
	for _, d := range docs {
		cs, err := c.Chunk(d)
		if err != nil {
			return nil, nil, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", dir, ErrNoDocuments)
	}
	return docs, chunks, nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
