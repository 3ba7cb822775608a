package indexer

import (
	"context"
	"depscan/internal/models"
	"depscan/internal/qdrant"
	"depscan/internal/utils"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultSearchLimit = 10

// Searcher answers natural-language queries against a project's index.
type Searcher struct {
	store    Store
	embedder Embedder
}

func NewSearcher(store Store, embedder Embedder) *Searcher {
	return &Searcher{store: store, embedder: embedder}
}

// Search embeds query and returns the closest dependency records of the
// project rooted at rootPath.
func (s *Searcher) Search(ctx context.Context, rootPath, query string, limit int, filter models.SearchFilter) ([]models.SearchHit, error) {
	query = utils.NormalizeQuery(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	projectID, err := utils.ComputeProjectID(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compute project id: %w", err)
	}
	if filter.FilePath != "" {
		filter.FilePath = normalizeFilePath(filter.FilePath)
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.store.Search(ctx, CollectionName(projectID), vector, uint64(limit), qdrant.BuildFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, models.SearchHit{
			Score:   p.GetScore(),
			Payload: qdrant.PayloadToMap(p.GetPayload()),
		})
	}
	return hits, nil
}

// ClearProject deletes the project's collection and its local state.
func ClearProject(ctx context.Context, store Store, rootPath string) (string, error) {
	projectID, err := utils.ComputeProjectID(rootPath)
	if err != nil {
		return "", fmt.Errorf("failed to compute project id: %w", err)
	}
	collection := CollectionName(projectID)
	if err := store.DeleteCollection(ctx, collection); err != nil && !isNotFound(err) {
		return collection, err
	}
	if err := ClearProjectState(projectID); err != nil {
		return collection, fmt.Errorf("failed to clear local state: %w", err)
	}
	return collection, nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
