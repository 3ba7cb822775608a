package sbom

import (
	"testing"

	"depscan/internal/models"
	"depscan/internal/parser/rust"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileDeps(t *testing.T, path, src string) *models.FileDependencies {
	t.Helper()

	deps, _, err := rust.Extract(src)
	require.NoError(t, err)
	return &models.FileDependencies{Path: path, Language: "rust", Dependencies: deps}
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	results := []*models.FileDependencies{
		fileDeps(t, "src/main.rs", `
use std::collections::HashMap;
use serde::{Deserialize, Serialize};
use crate::config::Config;
mod config;
`),
		nil,
		fileDeps(t, "src/config.rs", `
use serde::Deserialize;
use std::io;
use super::*;
extern crate tokio;
`),
	}

	components := Aggregate(results)

	var summary []string
	for _, c := range components {
		summary = append(summary, string(c.Origin)+":"+c.Root)
	}
	assert.Equal(t, []string{
		"external:serde",
		"external:tokio",
		"language:std",
		"internal:",
		"internal:config",
	}, summary)

	serde := components[0]
	assert.Equal(t, []string{"serde::Deserialize", "serde::Serialize"}, serde.Paths)
	assert.Equal(t, []string{"src/config.rs", "src/main.rs"}, serde.Files)
	assert.Equal(t, 3, serde.Count)

	config := components[4]
	assert.Equal(t, []string{"config", "crate::config::Config"}, config.Paths)
	assert.Equal(t, []string{"src/main.rs"}, config.Files)
	assert.Equal(t, 2, config.Count)

	assert.Equal(t, []string{"super::*"}, components[3].Paths)
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Aggregate(nil))
}

func TestFilter(t *testing.T) {
	t.Parallel()

	components := []models.Component{
		{Root: "serde", Origin: models.OriginExternal},
		{Root: "std", Origin: models.OriginLanguage},
		{Root: "net", Origin: models.OriginInternal},
	}

	assert.Len(t, Filter(components), 3)

	got := Filter(components, models.OriginExternal, models.OriginLanguage)
	require.Len(t, got, 2)
	assert.Equal(t, "serde", got[0].Root)
	assert.Equal(t, "std", got[1].Root)

	assert.Empty(t, Filter(components, models.Origin("unknown")))
}
