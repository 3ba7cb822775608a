package rust

import "depscan/internal/models"

// useTree is a parsed use declaration. Paths in a tree are relative to the
// enclosing group's prefix.
type useTree interface {
	isUseTree()
}

// useLeaf imports a single path, optionally renamed.
type useLeaf struct {
	path     []string
	alias    string
	hasAlias bool
}

// useGroup imports every entry under a common prefix.
type useGroup struct {
	prefix  []string
	entries []useTree
}

// useGlob imports everything under prefix.
type useGlob struct {
	prefix []string
}

func (useLeaf) isUseTree()  {}
func (useGroup) isUseTree() {}
func (useGlob) isUseTree()  {}

// declaration is a classified statement ready to be flattened.
type declaration struct {
	kind       models.DependencyKind
	visibility models.Visibility
	tree       useTree
}

// flatten expands a use tree into records, in source order.
func flatten(tree useTree, prefix []string, base models.Dependency) ([]models.Dependency, error) {
	switch n := tree.(type) {
	case useLeaf:
		return flattenLeaf(n, prefix, base)
	case useGlob:
		full := join(prefix, n.prefix)
		if len(full) == 0 {
			return nil, errEmptyPath
		}
		if !markersInPlace(full, false) {
			return nil, errMisplacedMarker
		}
		dep := base
		dep.FullPath = full
		dep.IsWildcard = true
		dep.IsSelfImport = isRelativeRoot(full[0])
		return []models.Dependency{dep}, nil
	case useGroup:
		inner := join(prefix, n.prefix)
		var deps []models.Dependency
		for _, entry := range n.entries {
			flat, err := flatten(entry, inner, base)
			if err != nil {
				return nil, err
			}
			deps = append(deps, flat...)
		}
		return deps, nil
	default:
		return nil, errEmptyPath
	}
}

func flattenLeaf(leaf useLeaf, prefix []string, base models.Dependency) ([]models.Dependency, error) {
	if !markersInPlace(join(prefix, leaf.path), true) {
		return nil, errMisplacedMarker
	}

	path := leaf.path
	// A trailing self imports the path before it; at the top level there is
	// nothing before it to import.
	if len(path) > 0 && path[len(path)-1] == "self" && (len(path) > 1 || len(prefix) > 0) {
		path = path[:len(path)-1]
	}

	full := join(prefix, path)
	if len(full) == 0 || len(full) == 1 && isRelativeRoot(full[0]) && base.Kind == models.KindUse {
		return nil, errEmptyPath
	}

	dep := base
	dep.FullPath = full
	dep.ImportedSymbol = full[len(full)-1]
	dep.HasSymbol = true
	dep.Alias = leaf.alias
	dep.HasAlias = leaf.hasAlias
	dep.IsSelfImport = isRelativeRoot(full[0])
	return []models.Dependency{dep}, nil
}

// markersInPlace reports whether the relative markers in path sit where they
// can resolve: crate first, super in the leading run, self first or, when
// trailingSelf is set, last.
func markersInPlace(path []string, trailingSelf bool) bool {
	for i, seg := range path {
		switch seg {
		case "crate":
			if i != 0 {
				return false
			}
		case "super":
			for j, prev := range path[:i] {
				if prev != "super" && !(j == 0 && prev == "self") {
					return false
				}
			}
		case "self":
			if i != 0 && !(trailingSelf && i == len(path)-1) {
				return false
			}
		}
	}
	return true
}

func join(prefix, path []string) []string {
	out := make([]string, 0, len(prefix)+len(path))
	out = append(out, prefix...)
	return append(out, path...)
}

func isRelativeRoot(seg string) bool {
	return seg == "self" || seg == "crate" || seg == "super"
}
