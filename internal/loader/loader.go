// Package loader reads source files into documents.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"factrag/internal/domain"
	"factrag/internal/logging"
)

var (
	// ErrUnsupportedFormat is returned for files whose extension has no reader.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrPDFToolNotFound is returned when pdftotext is not installed.
	ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler (brew install poppler, apt install poppler-utils)")
)

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// Loader reads .txt, .md, .json and .pdf files.
type Loader struct {
	runner CommandRunner
	logger *slog.Logger
}

func New(logger *slog.Logger) *Loader {
	return NewWithRunner(execRunner{}, logger)
}

// NewWithRunner uses runner to invoke pdftotext.
func NewWithRunner(runner CommandRunner, logger *slog.Logger) *Loader {
	return &Loader{runner: runner, logger: logging.OrDiscard(logger)}
}

// Supported reports whether path has a readable extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".json", ".pdf":
		return true
	}
	return false
}

// Load reads one file. Content is NFC-normalized.
func (l *Loader) Load(ctx context.Context, path string) (domain.Document, error) {
	var (
		content string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		var data []byte
		data, err = os.ReadFile(path)
		content = string(data)
	case ".json":
		content, err = loadJSON(path)
	case ".pdf":
		content, err = l.loadPDF(ctx, path)
	default:
		return domain.Document{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("load %s: %w", path, err)
	}
	return domain.Document{Source: path, Content: norm.NFC.String(content)}, nil
}

// Expand resolves globs and directories into the sorted list of supported
// files they name.
func Expand(paths []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok || !Supported(p) {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, pattern := range paths {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: %w", pattern, os.ErrNotExist)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if !info.IsDir() {
				add(m)
				continue
			}
			err = filepath.WalkDir(m, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					add(p)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Walk loads every supported file under paths. Files that cannot be read are
// logged and skipped; an empty result is ErrNoDocuments.
func (l *Loader) Walk(ctx context.Context, paths []string) ([]domain.Document, error) {
	files, err := Expand(paths)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := l.Load(ctx, f)
		if err != nil {
			l.logger.Warn("skipping document", "path", f, "error", err)
			continue
		}
		if strings.TrimSpace(doc.Content) == "" {
			l.logger.Debug("skipping empty document", "path", f)
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, domain.ErrNoDocuments
	}
	l.logger.Debug("documents loaded", "count", len(docs))
	return docs, nil
}

func (l *Loader) loadPDF(ctx context.Context, path string) (string, error) {
	out, err := l.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", err
	}
	// pdftotext separates pages with form feeds.
	return strings.ReplaceAll(string(out), "\f", "\n"), nil
}

func loadJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	var lines []string
	flatten("", v, &lines)
	return strings.Join(lines, "\n"), nil
}

// flatten renders v as "key: value" lines. Nested keys are joined with dots,
// array elements are indexed, and top-level array records are separated by a
// blank line.
func flatten(prefix string, v any, lines *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, t[k], lines)
		}
	case []any:
		for i, item := range t {
			if prefix == "" {
				if i > 0 {
					*lines = append(*lines, "")
				}
				flatten("", item, lines)
				continue
			}
			flatten(prefix+"["+strconv.Itoa(i)+"]", item, lines)
		}
	case nil:
	default:
		value := fmt.Sprint(t)
		if f, ok := t.(float64); ok {
			value = strconv.FormatFloat(f, 'f', -1, 64)
		}
		if prefix == "" {
			*lines = append(*lines, value)
			return
		}
		*lines = append(*lines, prefix+": "+value)
	}
}
