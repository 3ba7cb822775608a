package indexer

import (
	"context"
	"crypto/sha256"
	"depscan/internal/extract"
	"depscan/internal/models"
	"depscan/internal/qdrant"
	"depscan/internal/scan"
	"depscan/internal/utils"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	qdrantpb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

const (
	defaultCollectionName = "depscan_default"
	collectionPrefix      = "depscan_"
	DefaultWorkers        = 4
	DefaultBatchSize      = 64
)

// CollectionName returns the Qdrant collection name for a given project ID.
// If projectID is empty, the shared default collection is used.
func CollectionName(projectID string) string {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return defaultCollectionName
	}
	return fmt.Sprintf("%s%s", collectionPrefix, projectID)
}

// Store is the subset of the vector store the indexer needs.
type Store interface {
	EnsureCollection(ctx context.Context, name string, vectorSize uint64) error
	Upsert(ctx context.Context, name string, points []*qdrantpb.PointStruct) error
	DeleteByFilter(ctx context.Context, name string, filter *qdrantpb.Filter) error
	Search(ctx context.Context, name string, vector []float32, limit uint64, filter *qdrantpb.Filter) ([]*qdrantpb.ScoredPoint, error)
	DeleteCollection(ctx context.Context, name string) error
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Scanner   *scan.Scanner
	Runner    *extract.Runner
	Workers   int
	BatchSize int
	Logger    *zap.Logger
	// Out receives progress lines. Defaults to stdout.
	Out io.Writer
}

// Stats summarizes one IndexProject run.
type Stats struct {
	Files   int
	Changed int
	Deleted int
	Failed  int
	Points  int
}

type Indexer struct {
	store     Store
	embedder  Embedder
	scanner   *scan.Scanner
	runner    *extract.Runner
	workers   int
	batchSize int
	logger    *zap.Logger
	out       io.Writer

	projectID  string
	collection string

	mu         sync.Mutex
	ensuredDim uint64
}

func NewIndexer(store Store, embedder Embedder, opts Options) (*Indexer, error) {
	idx := &Indexer{
		store:     store,
		embedder:  embedder,
		scanner:   opts.Scanner,
		runner:    opts.Runner,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
		out:       opts.Out,
	}
	if idx.workers <= 0 {
		idx.workers = DefaultWorkers
	}
	if idx.batchSize <= 0 {
		idx.batchSize = DefaultBatchSize
	}
	if idx.logger == nil {
		idx.logger = zap.NewNop()
	}
	if idx.out == nil {
		idx.out = os.Stdout
	}
	if idx.scanner == nil {
		idx.scanner = scan.New(scan.Options{Logger: idx.logger})
	}
	if idx.runner == nil {
		r, err := extract.NewRunner(extract.Options{Workers: idx.workers, CacheSize: 256, Logger: idx.logger})
		if err != nil {
			return nil, err
		}
		idx.runner = r
	}
	return idx, nil
}

func (idx *Indexer) printf(format string, args ...interface{}) {
	fmt.Fprintf(idx.out, format, args...)
}

func (idx *Indexer) IndexProject(ctx context.Context, rootPath string) (*Stats, error) {
	normalizedRoot, err := utils.NormalizeProjectRoot(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize project root: %w", err)
	}

	projectID, err := utils.ComputeProjectID(normalizedRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to compute project id: %w", err)
	}
	idx.projectID = projectID
	idx.collection = CollectionName(projectID)
	idx.ensuredDim = 0
	idx.printf("→ Project fingerprint: %s\n", projectID[:min(12, len(projectID))])
	idx.printf("→ Using collection: %s\n", idx.collection)

	files, err := idx.scanner.Files(normalizedRoot)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Files: len(files)}
	idx.printf("✓ Found %d Rust source files\n", len(files))

	// Load previous file hashes for incremental indexing.
	prevHashes, err := loadFileHashes(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load file hashes: %w", err)
	}
	prevHashes = canonicalizeHashKeys(prevHashes, normalizedRoot)

	if len(files) == 0 && len(prevHashes) == 0 {
		idx.printf("⚠ No source files found to index\n")
		return stats, nil
	}

	results, err := idx.runner.Run(ctx, files)
	if err != nil {
		return nil, err
	}

	currentHashes := make(map[string]string, len(results))
	seen := make(map[string]bool, len(results))
	var changed []extract.FileResult

	for _, res := range results {
		key := normalizeFilePath(res.Path)
		seen[key] = true
		if res.Err != nil {
			stats.Failed++
			fmt.Fprintf(os.Stderr, "✗ Failed to extract %s: %v\n", res.Path, res.Err)
			// Stale points for a file that no longer parses are dropped; the
			// missing hash makes the next run retry it.
			if _, ok := prevHashes[key]; ok {
				if err := idx.deleteFilePoints(ctx, key); err != nil {
					idx.logger.Warn("delete stale points failed", zap.String("path", key), zap.Error(err))
				}
			}
			continue
		}
		currentHashes[key] = res.Hash
		if prev, ok := prevHashes[key]; !ok || prev != res.Hash {
			changed = append(changed, res)
		}
	}

	var deletedFiles []string
	for path := range prevHashes {
		if !seen[path] {
			deletedFiles = append(deletedFiles, path)
		}
	}
	stats.Changed = len(changed)
	stats.Deleted = len(deletedFiles)

	idx.printf("→ Incremental index: %d added/modified, %d deleted, %d total files\n", len(changed), len(deletedFiles), len(files))

	if len(changed) == 0 && len(deletedFiles) == 0 {
		idx.printf("✓ No changes detected, index is already up to date\n")
		return stats, saveFileHashes(projectID, currentHashes)
	}

	// Delete vectors for files that have been removed from the filesystem.
	for _, normalizedPath := range deletedFiles {
		displayPath := filepath.FromSlash(normalizedPath)
		if err := idx.deleteFilePoints(ctx, normalizedPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ Error deleting vectors for removed file %s: %v\n", displayPath, err)
			// Keep the old hash so the deletion is retried.
			currentHashes[normalizedPath] = prevHashes[normalizedPath]
		} else {
			idx.printf("✓ Deleted vectors for removed file %s\n", displayPath)
		}
	}

	// Index only added or modified files.
	if len(changed) > 0 {
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			jobCh = make(chan extract.FileResult, len(changed))
		)

		for i := 0; i < idx.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for res := range jobCh {
					n, err := idx.processFile(ctx, res)
					mu.Lock()
					if err != nil {
						fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", res.Path, err)
						stats.Failed++
						delete(currentHashes, normalizeFilePath(res.Path))
					} else {
						stats.Points += n
					}
					mu.Unlock()
				}
			}()
		}

		for _, res := range changed {
			jobCh <- res
		}
		close(jobCh)
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if err := saveFileHashes(idx.projectID, currentHashes); err != nil {
		return stats, fmt.Errorf("failed to save file hashes: %w", err)
	}

	idx.printf("✓ Indexing completed\n")
	return stats, nil
}

// processFile replaces the points of one changed file and returns how many
// were written.
func (idx *Indexer) processFile(ctx context.Context, res extract.FileResult) (int, error) {
	if idx.collection == "" {
		return 0, fmt.Errorf("collection name is not set on indexer")
	}
	// Normalize path for consistent storage in Qdrant and stable deletion.
	normalizedPath := normalizeFilePath(res.Path)

	// Clear existing vectors first so that removed imports do not leave
	// stale points.
	if err := idx.deleteFilePoints(ctx, normalizedPath); err != nil {
		idx.logger.Warn("delete existing points failed", zap.String("path", normalizedPath), zap.Error(err))
	}

	deps := res.Result.Dependencies
	if len(deps) == 0 {
		return 0, nil
	}

	idx.printf("→ Processing %s (%d dependencies)\n", res.Path, len(deps))

	written := 0
	for start := 0; start < len(deps); start += idx.batchSize {
		end := min(start+idx.batchSize, len(deps))
		batch := deps[start:end]

		texts := make([]string, 0, len(batch))
		for _, dep := range batch {
			texts = append(texts, dependencyText(normalizedPath, res.Result.Language, dep))
		}

		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("embed %s: %w", res.Path, err)
		}
		if len(vectors) != len(batch) || len(vectors[0]) == 0 {
			return written, fmt.Errorf("no embedding vectors returned for %s", res.Path)
		}

		// Ensure the collection lazily using the actual embedding dimension.
		if err := idx.ensureCollection(ctx, uint64(len(vectors[0]))); err != nil {
			return written, err
		}

		points := make([]*qdrantpb.PointStruct, 0, len(batch))
		for i, dep := range batch {
			payload := models.NewDependencyPayload(normalizedPath, res.Result.Language, res.Hash, dep)
			id := contentHashToPointID(utils.HashContent(pointKey(normalizedPath, start+i, dep)))
			points = append(points, &qdrantpb.PointStruct{
				Id: &qdrantpb.PointId{
					PointIdOptions: &qdrantpb.PointId_Num{Num: id},
				},
				Vectors: &qdrantpb.Vectors{
					VectorsOptions: &qdrantpb.Vectors_Vector{
						Vector: &qdrantpb.Vector{Data: vectors[i]},
					},
				},
				Payload: qdrant.MapToPayload(payload.Map()),
			})
		}

		if err := idx.store.Upsert(ctx, idx.collection, points); err != nil {
			return written, fmt.Errorf("upsert %s: %w", res.Path, err)
		}
		written += len(points)
	}

	idx.printf("✓ Indexed %s (%d vectors)\n", res.Path, written)
	return written, nil
}

func (idx *Indexer) ensureCollection(ctx context.Context, dim uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.ensuredDim == dim {
		return nil
	}
	if err := idx.store.EnsureCollection(ctx, idx.collection, dim); err != nil {
		return err
	}
	idx.ensuredDim = dim
	return nil
}

// dependencyText is the embedded description of one record.
func dependencyText(filePath, language string, dep models.Dependency) string {
	lines := []string{
		fmt.Sprintf("file_path: %s", filePath),
		fmt.Sprintf("language: %s", language),
		fmt.Sprintf("dependency: %s", dep.Path()),
		fmt.Sprintf("kind: %s", dep.Kind),
		fmt.Sprintf("origin: %s", dep.Origin()),
		fmt.Sprintf("visibility: %s", dep.Visibility),
	}
	if root := dep.Root(); root != "" {
		lines = append(lines, fmt.Sprintf("root: %s", root))
	}
	if group := dep.Group(); group != "" {
		lines = append(lines, fmt.Sprintf("group: %s", group))
	}
	lines = append(lines, fmt.Sprintf("name: %s", dep.Name()))
	if alias, ok := dep.AliasName(); ok {
		lines = append(lines, fmt.Sprintf("alias: %s", alias))
	}
	return strings.Join(lines, "\n")
}

// pointKey identifies a record within its file. The position keeps repeated
// imports of the same path distinct.
func pointKey(filePath string, position int, dep models.Dependency) string {
	return fmt.Sprintf("%s#%d#%s#%d", filePath, position, dep.Path(), dep.Line)
}

// contentHashToPointID converts a hex-encoded SHA-256 hash string into a 64-bit
// numeric ID that is accepted by Qdrant's `PointId_Num` field: the first 8
// bytes of a hash of the input, read big-endian.
func contentHashToPointID(hash string) uint64 {
	h := sha256.Sum256([]byte(hash))
	return binary.BigEndian.Uint64(h[:8])
}

func normalizeFilePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	abs := path
	if !filepath.IsAbs(abs) {
		if a, err := filepath.Abs(abs); err == nil {
			abs = a
		}
	}
	abs = filepath.Clean(abs)
	normalized := filepath.ToSlash(abs)
	if runtime.GOOS == "windows" {
		normalized = strings.ToLower(normalized)
	}
	return normalized
}

func canonicalizeHashKeys(hashes map[string]string, normalizedRoot string) map[string]string {
	if len(hashes) == 0 {
		return hashes
	}
	root := strings.TrimSpace(normalizedRoot)
	if root == "" {
		return hashes
	}
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		root = strings.ToLower(root)
	}

	out := make(map[string]string, len(hashes))
	for k, v := range hashes {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		p := filepath.FromSlash(key)
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		out[normalizeFilePath(p)] = v
	}
	return out
}

// loadFileHashes loads the last-seen file hash map from disk. It is stored as
// a JSON file under the user state dir scoped by the project ID.
func loadFileHashes(projectID string) (map[string]string, error) {
	statePath, err := fileHashStatePath(projectID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	var hashes map[string]string
	if err := json.Unmarshal(data, &hashes); err != nil {
		return nil, err
	}
	if hashes == nil {
		hashes = make(map[string]string)
	}
	return hashes, nil
}

// saveFileHashes persists the current file hash map so that the next indexing
// run can cheaply detect which files have changed.
func saveFileHashes(projectID string, hashes map[string]string) error {
	statePath, err := fileHashStatePath(projectID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(hashes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(statePath, data, 0o644)
}

func fileHashStatePath(projectID string) (string, error) {
	stateDir, err := utils.UserStateDir()
	if err != nil {
		return "", err
	}
	if projectID == "" {
		projectID = "default"
	}
	fileName := fmt.Sprintf("%s_file_hashes.json", projectID)
	return filepath.Join(stateDir, fileName), nil
}

// ClearProjectState removes any local on-disk state associated with a project.
// Currently this is the file-hash map used for incremental indexing.
func ClearProjectState(projectID string) error {
	statePath, err := fileHashStatePath(projectID)
	if err != nil {
		return err
	}
	if err := os.Remove(statePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// deleteFilePoints removes all vectors whose payload file_path matches path.
func (idx *Indexer) deleteFilePoints(ctx context.Context, path string) error {
	if idx.collection == "" {
		return fmt.Errorf("collection name is not set on indexer")
	}
	return idx.store.DeleteByFilter(ctx, idx.collection, qdrant.KeywordFilter("file_path", path))
}
