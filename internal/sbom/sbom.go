// Package sbom folds per-file dependency records into project components.
package sbom

import (
	"depscan/internal/models"
	"sort"
)

type componentKey struct {
	origin models.Origin
	root   string
}

type accumulator struct {
	paths map[string]bool
	files map[string]bool
	count int
}

// Aggregate deduplicates records by origin and root across files. Records
// without a root (a bare "self" or "super" path) are counted under the
// internal origin with an empty root. Components are sorted by origin, then
// root; their paths and files are sorted and distinct.
func Aggregate(results []*models.FileDependencies) []models.Component {
	acc := make(map[componentKey]*accumulator)

	for _, fd := range results {
		if fd == nil {
			continue
		}
		for _, dep := range fd.Dependencies {
			key := componentKey{origin: dep.Origin(), root: dep.Root()}
			if key.root == "" {
				key.origin = models.OriginInternal
			}
			a, ok := acc[key]
			if !ok {
				a = &accumulator{paths: make(map[string]bool), files: make(map[string]bool)}
				acc[key] = a
			}
			a.paths[dep.Path()] = true
			a.files[fd.Path] = true
			a.count++
		}
	}

	components := make([]models.Component, 0, len(acc))
	for key, a := range acc {
		components = append(components, models.Component{
			Root:   key.root,
			Origin: key.origin,
			Paths:  sortedKeys(a.paths),
			Files:  sortedKeys(a.files),
			Count:  a.count,
		})
	}

	sort.Slice(components, func(i, j int) bool {
		if components[i].Origin != components[j].Origin {
			return originRank(components[i].Origin) < originRank(components[j].Origin)
		}
		return components[i].Root < components[j].Root
	})
	return components
}

// Filter keeps the components whose origin is listed. An empty list keeps all.
func Filter(components []models.Component, origins ...models.Origin) []models.Component {
	if len(origins) == 0 {
		return components
	}
	want := make(map[models.Origin]bool, len(origins))
	for _, o := range origins {
		want[o] = true
	}
	var out []models.Component
	for _, c := range components {
		if want[c.Origin] {
			out = append(out, c)
		}
	}
	return out
}

// external first: those are what an SBOM is read for.
func originRank(o models.Origin) int {
	switch o {
	case models.OriginExternal:
		return 0
	case models.OriginLanguage:
		return 1
	default:
		return 2
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
