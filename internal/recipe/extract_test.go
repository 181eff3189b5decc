package recipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/forkbench/recipegrab/internal/diag"
)

// stubRecorder captures recorded failures for inspection.
type stubRecorder struct {
	mu       sync.Mutex
	failures []*diag.CapturedFailure
	steps    []string
}

func (s *stubRecorder) Record(failure *diag.CapturedFailure, step string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure)
	s.steps = append(s.steps, step)
	return failure.ID
}

func testUnit() *diag.Unit {
	sess := diag.NewSession(diag.Config{Threshold: diag.CriticalLevel})
	return sess.Default()
}

func pageWith(ldjson string) []byte {
	return []byte(fmt.Sprintf(
		`<html><head><script type="application/ld+json">%s</script></head><body></body></html>`,
		ldjson))
}

const fullRecipe = `{
	"@context": "https://schema.org",
	"@type": "Recipe",
	"name": "Shakshuka",
	"recipeIngredient": ["4 eggs", "1 can tomatoes"],
	"recipeInstructions": [
		{"@type": "HowToStep", "text": "Simmer the tomatoes."},
		{"@type": "HowToStep", "text": "Crack in the eggs."}
	],
	"totalTime": "PT1H30M",
	"recipeYield": "2 servings",
	"image": {"@type": "ImageObject", "url": "https://img.test/shakshuka.jpg"},
	"nutrition": {"@type": "NutritionInformation", "calories": "350 kcal", "proteinContent": "18 g"}
}`

// TestExtractFullRecipe verifies every step field is pulled from a
// complete schema.org Recipe node.
func TestExtractFullRecipe(t *testing.T) {
	t.Parallel()

	rec := &stubRecorder{}
	e := NewExtractor(rec)
	r, err := e.Extract(context.Background(), "https://www.kitchen.test/shakshuka", pageWith(fullRecipe), testUnit())
	require.NoError(t, err)

	require.Equal(t, "Shakshuka", r.Title)
	require.Equal(t, "4 eggs\n1 can tomatoes", r.Ingredients)
	require.Equal(t, "Simmer the tomatoes.\nCrack in the eggs.", r.Instructions)
	require.Equal(t, "90", r.TotalTime)
	require.Equal(t, "2 servings", r.Yields)
	require.Equal(t, "www.kitchen.test", r.Host)
	require.Equal(t, "https://img.test/shakshuka.jpg", r.Image)
	require.Equal(t, "calories: 350 kcal\nproteinContent: 18 g", r.Nutrients)
	require.Equal(t, StatusComplete, r.Status)
	require.Empty(t, rec.failures)
}

// TestExtractRecipeInsideGraph verifies @graph payloads are searched for
// the Recipe node.
func TestExtractRecipeInsideGraph(t *testing.T) {
	t.Parallel()

	ldjson := `{"@context": "https://schema.org", "@graph": [
		{"@type": "WebSite", "name": "Kitchen"},
		` + fullRecipe + `
	]}`
	e := NewExtractor(&stubRecorder{})
	r, err := e.Extract(context.Background(), "https://kitchen.test/shakshuka", pageWith(ldjson), testUnit())
	require.NoError(t, err)
	require.Equal(t, "Shakshuka", r.Title)
}

// TestExtractMultiTypeNode verifies @type arrays containing "Recipe"
// match.
func TestExtractMultiTypeNode(t *testing.T) {
	t.Parallel()

	ldjson := `{"@type": ["Recipe", "NewsArticle"], "name": "Toast",
		"recipeIngredient": ["bread"], "recipeInstructions": "Toast the bread."}`
	e := NewExtractor(&stubRecorder{})
	r, err := e.Extract(context.Background(), "https://kitchen.test/toast", pageWith(ldjson), testUnit())
	require.NoError(t, err)
	require.Equal(t, "Toast", r.Title)
	require.Equal(t, "bread", r.Ingredients)
	require.Equal(t, "Toast the bread.", r.Instructions)
}

// TestExtractUnsupportedSite verifies pages without a recipe schema return
// ErrUnsupportedSite and record nothing.
func TestExtractUnsupportedSite(t *testing.T) {
	t.Parallel()

	rec := &stubRecorder{}
	e := NewExtractor(rec)
	_, err := e.Extract(context.Background(), "https://blog.test/post",
		[]byte(`<html><body><p>no recipes here</p></body></html>`), testUnit())
	require.ErrorIs(t, err, ErrUnsupportedSite)
	require.Empty(t, rec.failures)
}

// TestExtractMissingFieldRecordsFailure verifies an absent schema key
// yields NA, a recorded ElementNotFound failure, and a degraded status.
func TestExtractMissingFieldRecordsFailure(t *testing.T) {
	t.Parallel()

	ldjson := `{"@type": "Recipe", "name": "Toast",
		"recipeIngredient": ["bread"], "recipeInstructions": "Toast the bread.",
		"recipeYield": "1 slice", "totalTime": "PT5M"}`
	rec := &stubRecorder{}
	e := NewExtractor(rec)
	r, err := e.Extract(context.Background(), "https://kitchen.test/toast", pageWith(ldjson), testUnit())
	require.NoError(t, err)

	require.Equal(t, NA, r.Image)
	require.Equal(t, NA, r.Nutrients)
	require.Equal(t, StatusCompleteOnDisplay, r.Status)

	require.Len(t, rec.failures, 2)
	require.Equal(t, []string{StepImage, StepNutrients}, rec.steps)
	require.Equal(t, string(KindElementNotFound), rec.failures[0].Kind)
	require.Equal(t, "https://kitchen.test/toast", rec.failures[0].URL)
	require.NotEmpty(t, rec.failures[0].Stack)
}

// TestExtractWrongTypeRecordsUnexpectedType verifies type confusion in the
// schema classifies as UnexpectedType.
func TestExtractWrongTypeRecordsUnexpectedType(t *testing.T) {
	t.Parallel()

	ldjson := `{"@type": "Recipe", "name": 42,
		"recipeIngredient": ["bread"], "recipeInstructions": "Toast."}`
	rec := &stubRecorder{}
	e := NewExtractor(rec)
	r, err := e.Extract(context.Background(), "https://kitchen.test/toast", pageWith(ldjson), testUnit())
	require.NoError(t, err)

	require.Equal(t, NA, r.Title)
	require.Contains(t, rec.steps, StepTitle)
	found := false
	for i, step := range rec.steps {
		if step == StepTitle {
			require.Equal(t, string(KindUnexpectedType), rec.failures[i].Kind)
			found = true
		}
	}
	require.True(t, found)
}

// TestExtractEmptyFieldIsNotRecorded verifies a present-but-empty value
// becomes NA without filing a failure.
func TestExtractEmptyFieldIsNotRecorded(t *testing.T) {
	t.Parallel()

	ldjson := `{"@type": "Recipe", "name": "   ",
		"recipeIngredient": ["bread"], "recipeInstructions": "Toast."}`
	rec := &stubRecorder{}
	e := NewExtractor(rec)
	r, err := e.Extract(context.Background(), "https://kitchen.test/toast", pageWith(ldjson), testUnit())
	require.NoError(t, err)

	require.Equal(t, NA, r.Title)
	require.NotContains(t, rec.steps, StepTitle)
}

// TestExtractCancelledContext verifies cancellation propagates instead of
// being swallowed as a per-step failure.
func TestExtractCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExtractor(&stubRecorder{})
	_, err := e.Extract(ctx, "https://kitchen.test/toast", pageWith(fullRecipe), testUnit())
	require.ErrorIs(t, err, context.Canceled)
}

// TestTotalTimeParsing verifies ISO 8601 durations collapse to minutes.
func TestTotalTimeParsing(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]string{
		`"PT45M"`:   "45",
		`"PT1H"`:    "60",
		`"PT1H30M"`: "90",
		`"P1DT2H"`:  "1560",
		`"PT5M30S"`: "6",
		`90`:        "90",
	} {
		ldjson := `{"@type": "Recipe", "name": "Toast",
			"recipeIngredient": ["bread"], "recipeInstructions": "Toast.",
			"totalTime": ` + input + `}`
		e := NewExtractor(&stubRecorder{})
		r, err := e.Extract(context.Background(), "https://kitchen.test/toast", pageWith(ldjson), testUnit())
		require.NoError(t, err)
		require.Equal(t, want, r.TotalTime, "totalTime %s", input)
	}
}

// TestStepErrorUnwraps verifies StepError exposes its cause.
func TestStepErrorUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("bad value")
	err := &StepError{Step: StepTitle, Kind: KindUnexpectedType, Err: cause}
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "UnexpectedType")
}
