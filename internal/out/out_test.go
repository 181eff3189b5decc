package out

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forkbench/recipegrab/internal/diag"
	"github.com/forkbench/recipegrab/internal/recipe"
)

func testUnit() *diag.Unit {
	return diag.NewSession(diag.Config{Threshold: diag.CriticalLevel}).Default()
}

func sampleRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Ingredients:  "4 eggs\n1 can tomatoes",
		Instructions: "Simmer the tomatoes.\nCrack in the eggs.",
		Title:        "Shakshuka",
		TotalTime:    "30",
		Yields:       "2 servings",
		Host:         "kitchen.test",
		Image:        "https://img.test/s.jpg",
		Nutrients:    "calories: 350 kcal",
		URL:          "https://kitchen.test/shakshuka",
		Status:       recipe.StatusComplete,
		Version:      recipe.Version,
	}
}

// TestTextRendering verifies the plain-text layout of one recipe.
func TestTextRendering(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "recipes.txt")
	w := NewWriter(path, false, testUnit())
	require.True(t, w.Add(sampleRecipe()))
	require.NoError(t, w.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, "Shakshuka\n\n30 min | 2 servings\n\n")
	require.Contains(t, content, "4 eggs\n1 can tomatoes\n\n")
	require.Contains(t, content, "Simmer the tomatoes.\n\nCrack in the eggs.")
	require.Contains(t, content, "from: https://kitchen.test/shakshuka")
}

// TestMarkdownRendering verifies the Markdown layout: header, lists, and
// the host link.
func TestMarkdownRendering(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "recipes.md")
	w := NewWriter(path, true, testUnit())
	require.True(t, w.Add(sampleRecipe()))
	require.NoError(t, w.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, "## Shakshuka")
	require.Contains(t, content, "- 4 eggs\n- 1 can tomatoes")
	require.Contains(t, content, "1. Simmer the tomatoes.\n2. Crack in the eggs.")
	require.Contains(t, content, "[*kitchen.test*](https://kitchen.test/shakshuka)")
}

// TestMarkdownTitleFallsBackToURL verifies an untitled recipe is headed by
// its URL.
func TestMarkdownTitleFallsBackToURL(t *testing.T) {
	t.Parallel()

	r := sampleRecipe()
	r.Title = recipe.NA
	path := filepath.Join(t.TempDir(), "recipes.md")
	w := NewWriter(path, true, testUnit())
	require.True(t, w.Add(r))
	require.NoError(t, w.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "## https://kitchen.test/shakshuka")
}

// TestSkipsBelowEssential verifies recipes missing essential fields never
// reach the output.
func TestSkipsBelowEssential(t *testing.T) {
	t.Parallel()

	for _, status := range []recipe.Status{
		recipe.StatusNotInitialized,
		recipe.StatusUnreachable,
		recipe.StatusUnknown,
		recipe.StatusIncompleteEssential,
	} {
		r := sampleRecipe()
		r.Status = status
		w := NewWriter(filepath.Join(t.TempDir(), "recipes.txt"), false, testUnit())
		require.False(t, w.Add(r), "status %d", status)
		require.Zero(t, w.Len())
	}
}

// TestFlushCreatesParentDirectories verifies nested output paths work.
func TestFlushCreatesParentDirectories(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "deep", "nested", "recipes.txt")
	w := NewWriter(path, false, testUnit())
	require.True(t, w.Add(sampleRecipe()))
	require.NoError(t, w.Flush())
	require.FileExists(t, path)
}
