// Package extract provides text extraction from source documents.
//
// Extraction is an external collaborator behind a narrow interface: the
// production PDF implementation shells out to pdftotext (poppler-utils)
// rather than parsing PDF structure itself. Plain text and markdown files
// are read directly.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

var (
	// ErrExtraction indicates a source document could not be read or parsed.
	// During ingestion this error skips the document; it never aborts the run.
	ErrExtraction = errors.New("extraction failed")

	// ErrPDFToolNotFound indicates the pdftotext binary is not installed.
	ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

	// ErrUnsupportedType indicates no extractor handles the file's extension.
	ErrUnsupportedType = errors.New("unsupported document type")
)

// Extractor converts a source file into plain text consumable by the chunker.
// Implementations handle specific file extensions.
type Extractor interface {
	// Extensions returns the lowercase file extensions this extractor handles.
	Extensions() []string

	// Extract returns the plain text content of the file at path.
	// Failures wrap ErrExtraction.
	Extract(ctx context.Context, path string) (string, error)
}

// CommandRunner executes an external command and returns its combined output.
// It exists so tests can substitute the pdftotext invocation.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands through os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDFExtractor extracts text from PDF files via pdftotext.
type PDFExtractor struct {
	runner CommandRunner
}

// NewPDF creates a PDF extractor using the system pdftotext binary.
func NewPDF() *PDFExtractor {
	return &PDFExtractor{runner: execRunner{}}
}

// NewPDFWithRunner creates a PDF extractor with a custom command runner.
// Used by tests to avoid invoking the real binary.
func NewPDFWithRunner(runner CommandRunner) *PDFExtractor {
	return &PDFExtractor{runner: runner}
}

// CheckPDFToolAvailable reports whether pdftotext is installed.
func CheckPDFToolAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return fmt.Errorf("%w: install poppler-utils (brew install poppler / apt install poppler-utils)",
			ErrPDFToolNotFound)
	}
	return nil
}

// Extensions implements Extractor.
func (*PDFExtractor) Extensions() []string {
	return []string{".pdf"}
}

// Extract runs pdftotext with layout preservation and returns the text.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	// "-" writes the extracted text to stdout.
	out, err := e.runner.Run(ctx, "pdftotext", "-layout", "-nopgbrk", path, "-")
	if err != nil {
		if errors.Is(err, ErrPDFToolNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: pdftotext %s: %v", ErrExtraction, filepath.Base(path), err)
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", fmt.Errorf("%w: %s produced no text", ErrExtraction, filepath.Base(path))
	}

	return text, nil
}

// PlainTextExtractor reads .txt and .md files directly.
type PlainTextExtractor struct{}

// NewPlainText creates a plain text extractor.
func NewPlainText() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// Extensions implements Extractor.
func (*PlainTextExtractor) Extensions() []string {
	return []string{".txt", ".md"}
}

// Extract reads the file contents.
func (*PlainTextExtractor) Extract(_ context.Context, path string) (string, error) {
	content, err := os.ReadFile(path) // #nosec G304 -- path comes from the configured data directory walk
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrExtraction, filepath.Base(path), err)
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrExtraction, filepath.Base(path))
	}

	return text, nil
}

// Registry dispatches extraction by file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry creates a registry over the given extractors.
// Later extractors win on extension conflicts.
func NewRegistry(extractors ...Extractor) *Registry {
	byExt := make(map[string]Extractor)
	for _, ex := range extractors {
		for _, ext := range ex.Extensions() {
			byExt[strings.ToLower(ext)] = ex
		}
	}
	return &Registry{byExt: byExt}
}

// DefaultRegistry returns a registry with the PDF and plain text extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPDF(), NewPlainText())
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Supported reports whether any extractor handles the path's extension.
func (r *Registry) Supported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract dispatches to the extractor registered for the path's extension.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ex, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return ex.Extract(ctx, path)
}
