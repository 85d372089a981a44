package seeds

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFetchReadsURLs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "user_seed", "urls.txt"),
		"# reading list\n\nhttps://www.nao.org.uk/reports/equipment-plan/\n   https://example.org/a  \n#https://skipped.example.org\n")

	s := New(dir, nil, nil)

	items, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "https://www.nao.org.uk/reports/equipment-plan/", items[0].URL)
	assert.Equal(t, "www.nao.org.uk", items[0].Source)
	assert.Empty(t, items[0].Title)
	assert.True(t, items[0].PublishedAt.IsZero())
	assert.Equal(t, "https://example.org/a", items[1].URL)
}

func TestFetchWithoutSeedFile(t *testing.T) {
	items, err := New(t.TempDir(), nil, nil).Fetch(context.Background())

	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBiasTermsFromFiles(t *testing.T) {
	dir := t.TempDir()
	textDir := filepath.Join(dir, "user_seed", "text")

	writeFile(t, filepath.Join(textDir, "a.txt"), "The Typhoon upgrade and the Typhoon radar. Radar radar.")
	writeFile(t, filepath.Join(textDir, "b.TXT"), "Typhoon contracts and the sustainment of contracts.")
	writeFile(t, filepath.Join(textDir, "notes.md"), "ignored ignored ignored ignored")

	s := New(dir, config.ParseStopwords("the,and,of"), nil)

	terms, err := s.BiasTerms()
	require.NoError(t, err)

	assert.Equal(t, []string{"typhoon", "radar", "contracts", "upgrade", "sustainment"}, terms)
}

func TestBiasTermsMissingDir(t *testing.T) {
	terms, err := New(t.TempDir(), nil, nil).BiasTerms()

	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestBiasTermsCapAndTies(t *testing.T) {
	terms := BiasTerms([]string{"zeta alpha beta", "beta"}, nil, 2)
	assert.Equal(t, []string{"beta", "zeta"}, terms)

	assert.Empty(t, BiasTerms(nil, nil, DefaultBiasTerms))
}
