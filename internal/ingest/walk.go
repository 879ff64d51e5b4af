package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"
)

// codeExtensions are the source file types the code chunker handles.
var codeExtensions = map[string]bool{
	".cs":   true,
	".go":   true,
	".java": true,
	".js":   true,
	".py":   true,
	".ts":   true,
}

// docExtensions are the document file types accepted during walks.
var docExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".pdf":      true,
}

// Report summarizes a directory ingestion run.
type Report struct {
	Indexed  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// IndexDirectory walks dir and indexes every supported file, honoring a
// .gitignore at the directory root. Distinct files run concurrently,
// bounded by Options.Parallelism; individual file failures are counted
// and logged, not fatal to the walk.
func (p *Pipeline) IndexDirectory(ctx context.Context, dir string, code bool) (*Report, error) {
	start := time.Now()

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving directory: %w", err)
	}

	var gitIgnore *ignore.GitIgnore
	if _, err := os.Stat(filepath.Join(absDir, ".gitignore")); err == nil {
		// A malformed .gitignore disables filtering, not the walk.
		gitIgnore, _ = ignore.CompileIgnoreFile(filepath.Join(absDir, ".gitignore"))
	}

	report := &Report{}

	var paths []string
	walkErr := filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			return relErr
		}
		if gitIgnore != nil && rel != "." && gitIgnore.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && rel != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if !p.accepts(path, code) {
			report.Skipped++
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	results := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Parallelism)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = p.IndexFile(gctx, path, code)
			// Per-file failures are collected, not propagated, so one
			// bad file cannot cancel the group.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, err := range results {
		if err != nil {
			report.Failed++
			p.logger.Warn("file skipped after failure", "path", paths[i], "error", err)
			continue
		}
		report.Indexed++
	}
	report.Duration = time.Since(start)

	p.logger.Info("directory ingestion finished",
		"dir", dir, "indexed", report.Indexed, "skipped", report.Skipped,
		"failed", report.Failed, "duration", report.Duration)
	return report, nil
}

func (p *Pipeline) accepts(path string, code bool) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if code {
		return codeExtensions[ext]
	}
	if ext == ".pdf" && p.converter == nil {
		return false
	}
	return docExtensions[ext]
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
