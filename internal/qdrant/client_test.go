package qdrant

import (
	"testing"

	"depscan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQdrantAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		host string
		port int
	}{
		{"", "localhost", 6334},
		{"qdrant.internal", "qdrant.internal", 6334},
		{"qdrant.internal:7000", "qdrant.internal", 7000},
		{"http://10.0.0.5:6334", "10.0.0.5", 6334},
		{"https://cloud.example.com", "cloud.example.com", 6334},
		{":6335", "localhost", 6335},
	}
	for _, tt := range tests {
		host, port, err := parseQdrantAddress(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.host, host, tt.raw)
		assert.Equal(t, tt.port, port, tt.raw)
	}

	_, _, err := parseQdrantAddress("host:notaport")
	assert.Error(t, err)
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	dep := models.Dependency{
		FullPath:       []string{"serde", "Deserialize"},
		ImportedSymbol: "Deserialize",
		HasSymbol:      true,
		Kind:           models.KindUse,
		Visibility:     models.VisibilityPublic,
		Line:           7,
	}
	payload := models.NewDependencyPayload("src/lib.rs", "rust", "abc", dep)

	got := PayloadToMap(MapToPayload(payload.Map()))

	assert.Equal(t, "serde::Deserialize", got["full_path"])
	assert.Equal(t, "serde", got["root"])
	assert.Equal(t, "external", got["origin"])
	assert.Equal(t, "public", got["visibility"])
	assert.Equal(t, int64(7), got["line"])
	assert.Equal(t, false, got["is_wildcard"])
}

func TestBuildFilter(t *testing.T) {
	t.Parallel()

	assert.Nil(t, BuildFilter(models.SearchFilter{}))

	f := BuildFilter(models.SearchFilter{
		Origins:  []string{"external", "language"},
		Kinds:    []string{"use"},
		FilePath: "/src/lib.rs",
	})
	require.NotNil(t, f)
	require.Len(t, f.Must, 3)

	origins := f.Must[0].GetField()
	assert.Equal(t, "origin", origins.Key)
	assert.Equal(t, []string{"external", "language"}, origins.GetMatch().GetKeywords().GetStrings())

	kinds := f.Must[1].GetField()
	assert.Equal(t, "kind", kinds.Key)
	assert.Equal(t, "use", kinds.GetMatch().GetKeyword())

	assert.Equal(t, "/src/lib.rs", f.Must[2].GetField().GetMatch().GetKeyword())
}

func TestKeywordFilter(t *testing.T) {
	t.Parallel()

	f := KeywordFilter("file_path", "/a.rs")
	require.Len(t, f.Must, 1)
	field := f.Must[0].GetField()
	assert.Equal(t, "file_path", field.Key)
	assert.Equal(t, "/a.rs", field.GetMatch().GetKeyword())

}
