package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/vecshop/internal/config"
	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
	"github.com/kailas-cloud/vecshop/internal/transport/s3images"
	ingestuc "github.com/kailas-cloud/vecshop/internal/usecase/ingest"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "search", "search-image", "ingest", "mcp", "version"} {
		assert.Contains(t, names, want)
	}

	env := root.PersistentFlags().Lookup("env")
	require.NotNil(t, env)
	assert.Equal(t, config.GetEnv(), env.DefValue)
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "vecshop "))
}

func TestSearchCommand_RequiresQuery(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"search"})

	assert.Error(t, root.Execute())
}

func TestIngestCommand_RequiresCSV(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"ingest"})

	assert.ErrorContains(t, root.Execute(), "--csv is required")
}

func TestPrintMatches_JSON(t *testing.T) {
	matches := []match.Match{
		match.New("15970", "Navy Blue Shirt", "Apparel", "Topwear", "Navy Blue", 0.91),
	}
	var out bytes.Buffer
	require.NoError(t, printMatches(&out, matches, true))

	var got []resultJSON
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "15970", got[0].ID)
	assert.Equal(t, "Navy Blue", got[0].BaseColour)
	assert.InDelta(t, 0.91, got[0].Similarity, 1e-9)
}

func TestPrintMatches_Text(t *testing.T) {
	matches := []match.Match{
		match.New("15970", "Navy Blue Shirt", "Apparel", "Topwear", "Navy Blue", 0.91),
	}
	var out bytes.Buffer
	require.NoError(t, printMatches(&out, matches, false))
	assert.Contains(t, out.String(), "Navy Blue Shirt")
	assert.Contains(t, out.String(), "0.910")

	out.Reset()
	require.NoError(t, printMatches(&out, nil, false))
	assert.Contains(t, out.String(), "no matching products")
}

func TestImageSource(t *testing.T) {
	src, err := imageSource(&config.ImagesConfig{})
	require.NoError(t, err)
	assert.Nil(t, src)

	src, err = imageSource(&config.ImagesConfig{Dir: "/data/images", S3: config.S3Config{Bucket: "catalog"}})
	require.NoError(t, err)
	assert.Equal(t, ingestuc.DirImages("/data/images"), src)

	src, err = imageSource(&config.ImagesConfig{S3: config.S3Config{Bucket: "catalog", Prefix: "images/"}})
	require.NoError(t, err)
	assert.IsType(t, &s3images.Source{}, src)
}

func TestCacheNamespace(t *testing.T) {
	cfg := &config.Config{}
	cfg.Index.TextDimensions = 384
	cfg.Embedding.OpenAI.Model = "text-embedding-3-small"

	assert.Equal(t, "service:384", cacheNamespace(cfg, config.TextProviderService))
	assert.Equal(t, "openai:text-embedding-3-small:384", cacheNamespace(cfg, config.TextProviderOpenAI))
}
