package indexer

import (
	"context"
	"crypto/sha256"
	"depscan/internal/models"
	"depscan/internal/qdrant"
	"depscan/internal/utils"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	qdrantpb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeStore struct {
	mu          sync.Mutex
	points      map[uint64]*qdrantpb.PointStruct
	ensured     []uint64
	dropped     []string
	lastFilter  *qdrantpb.Filter
	missingColl bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[uint64]*qdrantpb.PointStruct)}
}

func (s *fakeStore) EnsureCollection(_ context.Context, _ string, size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append(s.ensured, size)
	return nil
}

func (s *fakeStore) Upsert(_ context.Context, _ string, points []*qdrantpb.PointStruct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.GetId().GetNum()] = p
	}
	return nil
}

func (s *fakeStore) DeleteByFilter(_ context.Context, _ string, filter *qdrantpb.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	field := filter.GetMust()[0].GetField()
	for id, p := range s.points {
		if p.GetPayload()[field.GetKey()].GetStringValue() == field.GetMatch().GetKeyword() {
			delete(s.points, id)
		}
	}
	return nil
}

func (s *fakeStore) Search(_ context.Context, _ string, _ []float32, limit uint64, filter *qdrantpb.Filter) ([]*qdrantpb.ScoredPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	var out []*qdrantpb.ScoredPoint
	for _, p := range s.points {
		if uint64(len(out)) == limit {
			break
		}
		out = append(out, &qdrantpb.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: 0.5})
	}
	return out, nil
}

func (s *fakeStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missingColl {
		return status.Error(codes.NotFound, "collection not found")
	}
	s.dropped = append(s.dropped, name)
	s.points = make(map[uint64]*qdrantpb.PointStruct)
	return nil
}

func (s *fakeStore) filePaths() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, p := range s.points {
		out[filepath.Base(p.GetPayload()["file_path"].GetStringValue())]++
	}
	return out
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, _ := f.Embed(ctx, t)
		out = append(out, v)
	}
	return out, nil
}

func writeSource(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestCollectionName(t *testing.T) {
	t.Parallel()

	if got := CollectionName(""); got != defaultCollectionName {
		t.Fatalf("CollectionName(\"\")=%q, want %q", got, defaultCollectionName)
	}
	if got := CollectionName("   \t\n"); got != defaultCollectionName {
		t.Fatalf("CollectionName(whitespace)=%q, want %q", got, defaultCollectionName)
	}
	if got := CollectionName("  abc  "); got != collectionPrefix+"abc" {
		t.Fatalf("CollectionName(\"  abc  \" )=%q, want %q", got, collectionPrefix+"abc")
	}
}

func TestContentHashToPointID(t *testing.T) {
	t.Parallel()

	hash := "deadbeef"
	got := contentHashToPointID(hash)

	h := sha256.Sum256([]byte(hash))
	want := binary.BigEndian.Uint64(h[:8])
	if got != want {
		t.Fatalf("contentHashToPointID=%d, want %d", got, want)
	}

	if got2 := contentHashToPointID(hash); got2 != got {
		t.Fatalf("contentHashToPointID not deterministic: %d vs %d", got2, got)
	}
}

func TestPointKeyDistinguishesRepeatedImports(t *testing.T) {
	t.Parallel()

	dep := models.Dependency{FullPath: []string{"std", "io"}, Kind: models.KindUse, Line: 3}
	a := pointKey("/src/lib.rs", 0, dep)
	b := pointKey("/src/lib.rs", 1, dep)
	c := pointKey("/src/main.rs", 0, dep)
	if a == b || a == c {
		t.Fatalf("pointKey collision: %q %q %q", a, b, c)
	}
}

func TestDependencyText(t *testing.T) {
	t.Parallel()

	dep := models.Dependency{
		FullPath:       []string{"serde", "de", "Deserialize"},
		ImportedSymbol: "Deserialize",
		HasSymbol:      true,
		Alias:          "De",
		HasAlias:       true,
		Kind:           models.KindUse,
		Visibility:     models.VisibilityPublic,
	}
	got := dependencyText("/src/lib.rs", "rust", dep)
	for _, want := range []string{
		"file_path: /src/lib.rs",
		"dependency: serde::de::Deserialize",
		"origin: external",
		"visibility: public",
		"root: serde",
		"group: serde/de",
		"name: Deserialize",
		"alias: De",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("dependencyText missing %q in:\n%s", want, got)
		}
	}
}

func TestNormalizeFilePath(t *testing.T) {
	t.Parallel()

	if got := normalizeFilePath("  "); got != "" {
		t.Fatalf("normalizeFilePath(whitespace)=%q, want empty", got)
	}

	dir := t.TempDir()
	absInput := filepath.Join(dir, "a", "..", "b", "lib.rs")

	gotAbs := normalizeFilePath(absInput)
	expectedAbs := filepath.ToSlash(filepath.Clean(absInput))
	if runtime.GOOS == "windows" {
		expectedAbs = strings.ToLower(expectedAbs)
	}
	if gotAbs != expectedAbs {
		t.Fatalf("normalizeFilePath(abs)=%q, want %q", gotAbs, expectedAbs)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	relInput := filepath.Join(".", "rel", "..", "rel", "lib.rs")
	relAbs := filepath.Join(wd, "rel", "lib.rs")
	gotRel := normalizeFilePath(relInput)
	expectedRel := filepath.ToSlash(filepath.Clean(relAbs))
	if runtime.GOOS == "windows" {
		expectedRel = strings.ToLower(expectedRel)
	}
	if gotRel != expectedRel {
		t.Fatalf("normalizeFilePath(rel)=%q, want %q", gotRel, expectedRel)
	}
}

func TestCanonicalizeHashKeys(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	normalizedRoot, err := utils.NormalizeProjectRoot(root)
	if err != nil {
		t.Fatalf("NormalizeProjectRoot: %v", err)
	}

	hashes := map[string]string{
		"./src/lib.rs": "h1",
		"src/main.rs":  "h2",
		"":             "ignored",
		"   ":          "ignored",
	}
	got := canonicalizeHashKeys(hashes, normalizedRoot)
	if len(got) != 2 {
		t.Fatalf("canonicalizeHashKeys len=%d, want 2", len(got))
	}

	path1 := normalizeFilePath(filepath.Join(normalizedRoot, filepath.FromSlash("src/lib.rs")))
	if got[path1] != "h1" {
		t.Fatalf("canonicalizeHashKeys[%q]=%q, want %q", path1, got[path1], "h1")
	}
	path2 := normalizeFilePath(filepath.Join(normalizedRoot, filepath.FromSlash("src/main.rs")))
	if got[path2] != "h2" {
		t.Fatalf("canonicalizeHashKeys[%q]=%q, want %q", path2, got[path2], "h2")
	}
}

func TestFileHashStateLifecycle(t *testing.T) {
	// This test sets HOME/USERPROFILE, so do not run in parallel.
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Setenv("USERPROFILE", tmpHome)
	t.Setenv("DEPSCAN_STATE_DIR", "")

	projectID := "project123"

	// Missing state file should return an empty map (not nil).
	loaded, err := loadFileHashes(projectID)
	if err != nil {
		t.Fatalf("loadFileHashes (missing): %v", err)
	}
	if loaded == nil {
		t.Fatalf("loadFileHashes returned nil map")
	}
	if len(loaded) != 0 {
		t.Fatalf("loadFileHashes (missing) len=%d, want 0", len(loaded))
	}

	statePath, err := fileHashStatePath(projectID)
	if err != nil {
		t.Fatalf("fileHashStatePath: %v", err)
	}
	if base := filepath.Base(statePath); base != projectID+"_file_hashes.json" {
		t.Fatalf("state file base=%q, want %q", base, projectID+"_file_hashes.json")
	}
	if parent := filepath.Base(filepath.Dir(statePath)); parent != ".depscan" {
		t.Fatalf("state file dir base=%q, want %q", parent, ".depscan")
	}

	hashes := map[string]string{"/abs/path/lib.rs": "hash"}
	if err := saveFileHashes(projectID, hashes); err != nil {
		t.Fatalf("saveFileHashes: %v", err)
	}

	loaded, err = loadFileHashes(projectID)
	if err != nil {
		t.Fatalf("loadFileHashes: %v", err)
	}
	if loaded["/abs/path/lib.rs"] != "hash" {
		t.Fatalf("loaded hash=%q, want %q", loaded["/abs/path/lib.rs"], "hash")
	}

	if err := ClearProjectState(projectID); err != nil {
		t.Fatalf("ClearProjectState: %v", err)
	}
	if _, err := os.Stat(statePath); err == nil {
		t.Fatalf("expected state file to be removed")
	}

	// Clearing again should be a no-op.
	if err := ClearProjectState(projectID); err != nil {
		t.Fatalf("ClearProjectState (missing): %v", err)
	}
}

func TestFileHashStatePathDefaultProjectID(t *testing.T) {
	t.Setenv("DEPSCAN_STATE_DIR", t.TempDir())

	statePath, err := fileHashStatePath("")
	if err != nil {
		t.Fatalf("fileHashStatePath: %v", err)
	}
	if base := filepath.Base(statePath); base != "default_file_hashes.json" {
		t.Fatalf("state file base=%q, want %q", base, "default_file_hashes.json")
	}
}

func TestIndexProjectIncremental(t *testing.T) {
	t.Setenv("DEPSCAN_STATE_DIR", t.TempDir())

	root := t.TempDir()
	writeSource(t, root, "src/main.rs", "use std::io;\nuse serde::Deserialize;\nmod net;\n")
	writeSource(t, root, "src/net.rs", "use super::*;\n")
	writeSource(t, root, "src/broken.rs", "use a;\n/* never closed\n")

	store := newFakeStore()
	idx, err := NewIndexer(store, fakeEmbedder{}, Options{Workers: 2, BatchSize: 2, Out: io.Discard})
	if err != nil {
		t.Fatalf("NewIndexer: %v", err)
	}
	ctx := context.Background()

	stats, err := idx.IndexProject(ctx, root)
	if err != nil {
		t.Fatalf("IndexProject (first): %v", err)
	}
	if *stats != (Stats{Files: 3, Changed: 2, Failed: 1, Points: 4}) {
		t.Fatalf("first run stats=%+v", *stats)
	}
	if got := store.filePaths(); got["main.rs"] != 3 || got["net.rs"] != 1 {
		t.Fatalf("first run points=%v", got)
	}
	if len(store.ensured) != 1 || store.ensured[0] != 3 {
		t.Fatalf("EnsureCollection calls=%v, want one with size 3", store.ensured)
	}

	stats, err = idx.IndexProject(ctx, root)
	if err != nil {
		t.Fatalf("IndexProject (second): %v", err)
	}
	if stats.Changed != 0 || stats.Deleted != 0 || stats.Points != 0 {
		t.Fatalf("second run stats=%+v, want no changes", *stats)
	}

	writeSource(t, root, "src/main.rs", "use std::io;\n")
	if err := os.Remove(filepath.Join(root, "src", "net.rs")); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	stats, err = idx.IndexProject(ctx, root)
	if err != nil {
		t.Fatalf("IndexProject (third): %v", err)
	}
	if stats.Changed != 1 || stats.Deleted != 1 || stats.Points != 1 {
		t.Fatalf("third run stats=%+v", *stats)
	}
	if got := store.filePaths(); len(got) != 1 || got["main.rs"] != 1 {
		t.Fatalf("third run points=%v", got)
	}
}

func TestSearcher(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := newFakeStore()
	dep := models.Dependency{FullPath: []string{"serde", "Serialize"}, ImportedSymbol: "Serialize", HasSymbol: true, Kind: models.KindUse, Line: 4}
	payload := models.NewDependencyPayload("/src/lib.rs", "rust", "h", dep)
	store.points[1] = &qdrantpb.PointStruct{
		Id:      &qdrantpb.PointId{PointIdOptions: &qdrantpb.PointId_Num{Num: 1}},
		Payload: qdrant.MapToPayload(payload.Map()),
	}

	s := NewSearcher(store, fakeEmbedder{})
	hits, err := s.Search(context.Background(), root, "  serialization  ", 0, models.SearchFilter{Origins: []string{"external"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Search hits=%d, want 1", len(hits))
	}
	if hits[0].Payload["full_path"] != "serde::Serialize" || hits[0].Score != 0.5 {
		t.Fatalf("unexpected hit %+v", hits[0])
	}
	if store.lastFilter == nil || store.lastFilter.GetMust()[0].GetField().GetKey() != "origin" {
		t.Fatalf("origin filter not passed: %v", store.lastFilter)
	}

	if _, err := s.Search(context.Background(), root, "   ", 5, models.SearchFilter{}); err == nil {
		t.Fatalf("Search(empty query) expected error")
	}
}

func TestClearProject(t *testing.T) {
	t.Setenv("DEPSCAN_STATE_DIR", t.TempDir())

	root := t.TempDir()
	projectID, err := utils.ComputeProjectID(root)
	if err != nil {
		t.Fatalf("ComputeProjectID: %v", err)
	}
	if err := saveFileHashes(projectID, map[string]string{"/a.rs": "h"}); err != nil {
		t.Fatalf("saveFileHashes: %v", err)
	}

	store := newFakeStore()
	collection, err := ClearProject(context.Background(), store, root)
	if err != nil {
		t.Fatalf("ClearProject: %v", err)
	}
	if collection != CollectionName(projectID) || len(store.dropped) != 1 {
		t.Fatalf("ClearProject collection=%q dropped=%v", collection, store.dropped)
	}
	loaded, err := loadFileHashes(projectID)
	if err != nil || len(loaded) != 0 {
		t.Fatalf("state not cleared: %v %v", loaded, err)
	}

	store.missingColl = true
	if _, err := ClearProject(context.Background(), store, root); err != nil {
		t.Fatalf("ClearProject (missing collection): %v", err)
	}
}
