package main

import (
	"context"
	"depscan/internal/config"
	"depscan/internal/indexer"
	"depscan/internal/qdrant"
	"depscan/internal/utils"
	"fmt"
	"os"
	"sort"

	qdrantpb "github.com/qdrant/go-client/qdrant"
)

// Prints how many dependency points a project's collection holds, per origin.
// Usage: go run ./tools [project-dir]
func main() {
	dir := "."
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	projectID, err := utils.ComputeProjectID(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to compute project id: %v\n", err)
		os.Exit(1)
	}
	collectionName := indexer.CollectionName(projectID)

	qc, err := qdrant.NewClient(cfg.Qdrant, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create qdrant client: %v\n", err)
		os.Exit(1)
	}
	defer qc.Close()

	ctx := context.Background()
	fmt.Printf("Checking collection: %s\n", collectionName)

	total, err := qc.Count(ctx, collectionName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error counting: %v\n", err)
		os.Exit(1)
	}

	byOrigin := make(map[string]int)
	var offset *qdrantpb.PointId
	limit := uint32(256)
	for {
		points, nextOffset, err := qc.Scroll(ctx, collectionName, limit, offset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error scrolling: %v\n", err)
			break
		}
		for _, p := range points {
			byOrigin[p.GetPayload()["origin"].GetStringValue()]++
		}
		if nextOffset == nil || len(points) == 0 {
			break
		}
		offset = nextOffset
	}

	origins := make([]string, 0, len(byOrigin))
	for o := range byOrigin {
		origins = append(origins, o)
	}
	sort.Strings(origins)
	for _, o := range origins {
		fmt.Printf("  %-10s %d\n", o, byOrigin[o])
	}

	fmt.Printf("\n✓ Total points in collection: %d\n", total)
}
