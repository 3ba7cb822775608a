// Package extract runs the dependency parsers over many files concurrently.
package extract

import (
	"context"
	"depscan/internal/models"
	"depscan/internal/parser"
	"depscan/internal/utils"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FileResult is the outcome for one input file. Err is set when the file
// could not be read or had a fatal syntax error; Result is nil in that case.
type FileResult struct {
	Path   string
	Hash   string
	Result *models.FileDependencies
	Err    error
}

// Options configures a Runner.
type Options struct {
	Workers   int
	CacheSize int
	Logger    *zap.Logger
}

// Runner extracts dependencies from files with a bounded worker pool.
// Results for identical contents are served from an LRU cache.
type Runner struct {
	factory *parser.ParserFactory
	cache   *lru.Cache[string, *models.FileDependencies]
	workers int
	logger  *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", opts.Workers)
	}
	cache, err := lru.New[string, *models.FileDependencies](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create parse cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		factory: parser.NewParserFactory(),
		cache:   cache,
		workers: opts.Workers,
		logger:  logger,
	}, nil
}

// Run extracts every file and returns one result per input, in input order.
// Per-file failures are reported in FileResult.Err; the returned error is
// only the context's.
func (r *Runner) Run(ctx context.Context, files []string) ([]FileResult, error) {
	results := make([]FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.ExtractFile(path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExtractFile reads and extracts a single file.
func (r *Runner) ExtractFile(path string) FileResult {
	code, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn("read failed", zap.String("path", path), zap.Error(err))
		return FileResult{Path: path, Err: fmt.Errorf("read %s: %w", path, err)}
	}

	hash := utils.HashContent(string(code))
	deps, err := r.ExtractSource(path, hash, code)
	if err != nil {
		r.logger.Warn("extraction failed", zap.String("path", path), zap.Error(err))
		return FileResult{Path: path, Hash: hash, Err: err}
	}

	if n := len(deps.Warnings); n > 0 {
		r.logger.Debug("statements skipped", zap.String("path", path), zap.Int("warnings", n))
	}
	return FileResult{Path: path, Hash: hash, Result: deps}
}

// ExtractSource extracts code that has already been read. hash is the
// content hash used as the cache key.
func (r *Runner) ExtractSource(path, hash string, code []byte) (*models.FileDependencies, error) {
	p, err := r.factory.GetParserByFilePath(path)
	if err != nil {
		return nil, err
	}

	key := p.Language() + ":" + hash
	if cached, ok := r.cache.Get(key); ok {
		return withPath(cached, path), nil
	}

	deps, err := p.ExtractDependencies(path, code)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, deps)
	return withPath(deps, path), nil
}

// withPath returns a deep copy of deps labelled with path. Cached values are
// shared between files with the same content, so no caller may reach them.
func withPath(deps *models.FileDependencies, path string) *models.FileDependencies {
	out := *deps
	out.Path = path
	out.Dependencies = make([]models.Dependency, len(deps.Dependencies))
	for i, d := range deps.Dependencies {
		d.FullPath = append([]string(nil), d.FullPath...)
		out.Dependencies[i] = d
	}
	out.Warnings = append([]models.Warning(nil), deps.Warnings...)
	return &out
}
