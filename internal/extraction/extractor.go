// Package extraction turns uploaded files into plain text. A file's
// extension selects one of three strategies; anything unknown gets a
// best-effort OCR pass rather than an up-front rejection.
package extraction

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	"github.com/gen2brain/go-fitz"
)

type Strategy int

const (
	StrategyText Strategy = iota
	StrategyDocx
	StrategyOcr
)

func (s Strategy) String() string {
	switch s {
	case StrategyText:
		return "text"
	case StrategyDocx:
		return "docx"
	case StrategyOcr:
		return "ocr"
	default:
		return "unknown"
	}
}

// UnsupportedFileParseError means no strategy, including the OCR fallback,
// produced any text for the file.
type UnsupportedFileParseError struct {
	Name string
	Err  error
}

func (e *UnsupportedFileParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not extract text from %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("could not extract text from %q", e.Name)
}

func (e *UnsupportedFileParseError) Unwrap() error {
	return e.Err
}

const maxFileSize = 64 * 1024 * 1024 // 64 MB

type Extractor struct {
	strategies map[string]Strategy

	// run is the strategy executor; tests swap it to observe dispatch.
	run func(strategy Strategy, contents []byte) (string, error)
}

func NewExtractor() *Extractor {
	extractor := &Extractor{
		strategies: map[string]Strategy{
			".txt":  StrategyText,
			".md":   StrategyText,
			".csv":  StrategyText,
			".json": StrategyText,
			".xml":  StrategyText,
			".html": StrategyText,
			".docx": StrategyDocx,
			".pdf":  StrategyOcr,
			".png":  StrategyOcr,
			".jpg":  StrategyOcr,
			".jpeg": StrategyOcr,
			".bmp":  StrategyOcr,
			".tiff": StrategyOcr,
		},
	}
	extractor.run = runStrategy
	return extractor
}

// Extract reads data and returns its visible text. The primary strategy is
// looked up by extension; a failed or empty primary falls back to OCR, and an
// empty OCR result is an UnsupportedFileParseError, never silently "".
func (e *Extractor) Extract(name string, data io.Reader) (string, error) {
	contents, err := io.ReadAll(io.LimitReader(data, maxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("reading upload %q: %w", name, err)
	}
	if len(contents) > maxFileSize {
		return "", fmt.Errorf("file %q exceeds the %d byte extraction limit", name, maxFileSize)
	}

	ext := strings.ToLower(filepath.Ext(name))
	strategy, configured := e.strategies[ext]
	if !configured {
		strategy = StrategyOcr
	}

	text, err := e.run(strategy, contents)
	if (err != nil || strings.TrimSpace(text) == "") && strategy != StrategyOcr {
		if err != nil {
			slog.Warn("primary extraction strategy failed, trying ocr fallback",
				"file", name, "strategy", strategy.String(), "error", err)
		}
		text, err = e.run(StrategyOcr, contents)
	}

	if err != nil {
		return "", &UnsupportedFileParseError{Name: name, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &UnsupportedFileParseError{Name: name}
	}
	return text, nil
}

func runStrategy(strategy Strategy, contents []byte) (string, error) {
	switch strategy {
	case StrategyText:
		return string(contents), nil
	case StrategyDocx:
		return extractDocx(contents)
	case StrategyOcr:
		return extractWithFitz(contents)
	default:
		return "", fmt.Errorf("unknown extraction strategy %d", strategy)
	}
}

// extractDocx walks the document body in document order, paragraphs and
// table cells included.
func extractDocx(contents []byte) (string, error) {
	text, _, err := docconv.ConvertDocx(bytes.NewReader(contents))
	if err != nil {
		return "", fmt.Errorf("parsing docx: %w", err)
	}
	return text, nil
}

// extractWithFitz renders the document (pdf, image formats, epub) through
// mupdf and collects each page's text layer.
func extractWithFitz(contents []byte) (string, error) {
	document, err := fitz.NewFromMemory(contents)
	if err != nil {
		return "", fmt.Errorf("opening document: %w", err)
	}
	defer document.Close()

	pages := make([]string, 0, document.NumPage())
	for i := 0; i < document.NumPage(); i++ {
		pageText, err := document.Text(i)
		if err != nil {
			return "", fmt.Errorf("extracting page %d: %w", i, err)
		}
		pages = append(pages, pageText)
	}

	return strings.Join(pages, "\n\n"), nil
}
