package source

import (
	"bufio"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PentesterFlow/pagescope/internal/dom"
	apperrors "github.com/PentesterFlow/pagescope/internal/errors"
)

// StdinTarget reads the page from standard input.
const StdinTarget = "-"

// FileSource loads saved HTML from disk or stdin.
type FileSource struct {
	// BaseURL, when set, becomes the document URL for every file so that
	// relative links resolve against the site the page was saved from.
	BaseURL string
	Stdin   io.Reader
}

// NewFileSource creates a file source reading "-" from os.Stdin.
func NewFileSource(baseURL string) *FileSource {
	return &FileSource{BaseURL: baseURL, Stdin: os.Stdin}
}

// Kind implements Source.
func (s *FileSource) Kind() Kind {
	return KindFile
}

// Load parses the file at target (a path or file:// URL).
func (s *FileSource) Load(ctx context.Context, target string) (*dom.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Categorize(err, target)
	}

	if target == StdinTarget {
		return s.parse(target, "about:blank", bufio.NewReader(s.Stdin))
	}

	path := target
	if strings.HasPrefix(target, "file://") {
		u, err := url.Parse(target)
		if err != nil {
			return nil, apperrors.NewParseError(target, "file_url", err)
		}
		path = u.Path
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.New(apperrors.Fetch, target, "open", "invalid path", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, apperrors.New(apperrors.Fetch, target, "open", "cannot open file", err)
	}
	defer f.Close()

	docURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	return s.parse(target, docURL, f)
}

func (s *FileSource) parse(target, docURL string, r io.Reader) (*dom.Document, error) {
	if s.BaseURL != "" {
		docURL = s.BaseURL
	}
	doc, err := dom.Parse(docURL, r)
	if err != nil {
		return nil, apperrors.NewParseError(target, "parse", err)
	}
	return doc, nil
}

// Close implements Source.
func (s *FileSource) Close() error {
	return nil
}
