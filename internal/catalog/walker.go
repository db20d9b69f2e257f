package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dgallion1/bibgest/internal/doctree"
	"github.com/dgallion1/bibgest/internal/outline"
	"github.com/dgallion1/bibgest/internal/parser"
)

// Walker parses document sets into a catalog tree.
type Walker struct {
	entries outline.EntryParser
	log     *slog.Logger
	workers int
}

// NewWalker creates a Walker. workers bounds concurrent documents per directory.
func NewWalker(entries outline.EntryParser, log *slog.Logger, workers int) *Walker {
	if workers <= 0 {
		workers = 1
	}
	return &Walker{entries: entries, log: log, workers: workers}
}

// ParseDocument parses a single bibliography file.
func (w *Walker) ParseDocument(path string) (doctree.Document, []doctree.ParseError, error) {
	f, err := os.Open(path)
	if err != nil {
		return doctree.Document{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return w.ParseReader(path, f)
}

// ParseReader parses a bibliography read from r. The format and the language
// are taken from name.
func (w *Walker) ParseReader(name string, r io.Reader) (doctree.Document, []doctree.ParseError, error) {
	p, err := parser.ForFile(name)
	if err != nil {
		return doctree.Document{}, nil, err
	}
	blocks, err := p.Parse(r)
	if err != nil {
		return doctree.Document{}, nil, fmt.Errorf("parse %s: %w", name, err)
	}
	sections, errs := outline.Build(blocks, w.entries)
	doc := doctree.Document{
		Language: LanguageOf(LanguageFromFilename(name)),
		Index:    map[string]any{},
		Sections: sections,
	}
	return doc, errs, nil
}

// ParseDirectory parses every bibliography in dir. Documents are parsed
// concurrently; output order follows file name order.
func (w *Walker) ParseDirectory(ctx context.Context, dir string) (doctree.Directory, []doctree.FileErrors, error) {
	files, err := ListDocuments(dir)
	if err != nil {
		return doctree.Directory{}, nil, err
	}
	log := w.log.With("directory", dir)

	type docResult struct {
		doc  doctree.Document
		errs []doctree.ParseError
		err  error
	}
	results := make([]docResult, len(files))
	done := make(chan struct{}, len(files))
	sem := make(chan struct{}, w.workers)

	for i, file := range files {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return doctree.Directory{}, nil, ctx.Err()
		}
		go func(i int, file string) {
			defer func() {
				<-sem
				done <- struct{}{}
			}()
			start := time.Now()
			doc, errs, err := w.ParseDocument(file)
			results[i] = docResult{doc: doc, errs: errs, err: err}
			log.Debug("parsed document", "file", filepath.Base(file), "errors", len(errs), "duration_ms", time.Since(start).Milliseconds())
		}(i, file)
	}
	for range files {
		<-done
	}

	out := doctree.Directory{
		Type:     MediaType(dir),
		Index:    map[string]any{},
		Children: []doctree.Document{},
	}
	var fileErrs []doctree.FileErrors
	for i, r := range results {
		name := filepath.Base(files[i])
		if r.err != nil {
			log.Error("document failed", "file", name, "error", r.err)
			fileErrs = append(fileErrs, doctree.FileErrors{
				File:   name,
				Errors: []doctree.ParseError{{Message: r.err.Error()}},
			})
			continue
		}
		out.Children = append(out.Children, r.doc)
		if len(r.errs) > 0 {
			log.Warn("document has parse errors", "file", name, "errors", len(r.errs))
			fileErrs = append(fileErrs, doctree.FileErrors{File: name, Errors: r.errs})
		}
	}
	return out, fileErrs, nil
}

// ParseAll parses each directory in turn and returns the catalog root and
// the error log.
func (w *Walker) ParseAll(ctx context.Context, dirs []string) (doctree.Root, doctree.ErrorLog, error) {
	root := doctree.Root{Type: "root", Children: []doctree.Directory{}}
	errLog := doctree.ErrorLog{Type: "root", Directories: []doctree.DirectoryErrors{}}

	for _, dir := range dirs {
		start := time.Now()
		d, fileErrs, err := w.ParseDirectory(ctx, dir)
		if err != nil {
			return doctree.Root{}, doctree.ErrorLog{}, err
		}
		root.Children = append(root.Children, d)
		if len(fileErrs) > 0 {
			errLog.Directories = append(errLog.Directories, doctree.DirectoryErrors{
				Directory: filepath.Base(filepath.Clean(dir)),
				Files:     fileErrs,
			})
		}
		w.log.Info("parsed directory", "directory", dir, "documents", len(d.Children), "files_with_errors", len(fileErrs), "duration_ms", time.Since(start).Milliseconds())
	}
	return root, errLog, nil
}

// WriteJSON writes v to path as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "   ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
