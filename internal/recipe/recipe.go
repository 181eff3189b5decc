// Package recipe defines the extracted recipe model and the HTML extraction
// step pipeline.
package recipe

// NA marks a field that could not be extracted.
const NA = "N/A"

// Version identifies the extractor in failure reports, so maintainers can
// tell which extraction logic produced a filed issue.
const Version = "0.4.1"

// Status grades how completely a recipe was extracted. Order matters:
// anything at or below StatusIncompleteEssential is not worth writing out.
type Status int

const (
	StatusNotInitialized Status = iota - 1
	StatusUnreachable
	StatusUnknown
	StatusIncompleteEssential
	StatusIncompleteOnDisplay
	StatusCompleteOnDisplay
	StatusComplete
)

// Recipe is one extracted recipe. Fields that could not be extracted hold
// NA rather than the empty string, so cached rows stay distinguishable from
// never-attempted ones.
type Recipe struct {
	Ingredients  string
	Instructions string
	Title        string
	TotalTime    string
	Yields       string
	Host         string
	Image        string
	Nutrients    string
	URL          string
	Status       Status
	Version      string
}

// Extraction step names. The tiers drive both severity (a missing essential
// step logs at error, others at warning) and status derivation.
const (
	StepIngredients  = "ingredients"
	StepInstructions = "instructions"
	StepTitle        = "title"
	StepTotalTime    = "total_time"
	StepYields       = "yields"
	StepHost         = "host"
	StepImage        = "image"
	StepNutrients    = "nutrients"
)

// Essential steps: without these there is no recipe.
var Essential = []string{StepIngredients, StepInstructions}

// OnDisplay steps appear in rendered output.
var OnDisplay = []string{StepIngredients, StepInstructions, StepTitle, StepTotalTime, StepYields}

// Steps is every extraction step, in extraction order.
var Steps = []string{
	StepIngredients, StepInstructions, StepTitle, StepTotalTime,
	StepYields, StepHost, StepImage, StepNutrients,
}

// IsEssential reports whether step belongs to the essential tier.
func IsEssential(step string) bool {
	for _, s := range Essential {
		if s == step {
			return true
		}
	}
	return false
}

// IsOnDisplay reports whether step appears in rendered output.
func IsOnDisplay(step string) bool {
	for _, s := range OnDisplay {
		if s == step {
			return true
		}
	}
	return false
}

// DeriveStatus grades a set of extracted fields. Missing essential fields
// dominate, then missing display fields, then anything else.
func DeriveStatus(fields map[string]string) Status {
	missing := func(step string) bool {
		v, ok := fields[step]
		return !ok || v == NA || v == ""
	}
	for _, step := range Essential {
		if missing(step) {
			return StatusIncompleteEssential
		}
	}
	for _, step := range OnDisplay {
		if missing(step) {
			return StatusIncompleteOnDisplay
		}
	}
	for _, step := range Steps {
		if missing(step) {
			return StatusCompleteOnDisplay
		}
	}
	return StatusComplete
}

// Field returns the value of the named step field.
func (r *Recipe) Field(step string) string {
	switch step {
	case StepIngredients:
		return r.Ingredients
	case StepInstructions:
		return r.Instructions
	case StepTitle:
		return r.Title
	case StepTotalTime:
		return r.TotalTime
	case StepYields:
		return r.Yields
	case StepHost:
		return r.Host
	case StepImage:
		return r.Image
	case StepNutrients:
		return r.Nutrients
	default:
		return ""
	}
}

func fromFields(url string, fields map[string]string) *Recipe {
	get := func(step string) string {
		if v, ok := fields[step]; ok && v != "" {
			return v
		}
		return NA
	}
	return &Recipe{
		Ingredients:  get(StepIngredients),
		Instructions: get(StepInstructions),
		Title:        get(StepTitle),
		TotalTime:    get(StepTotalTime),
		Yields:       get(StepYields),
		Host:         get(StepHost),
		Image:        get(StepImage),
		Nutrients:    get(StepNutrients),
		URL:          url,
		Status:       DeriveStatus(fields),
		Version:      Version,
	}
}

func statusOnly(url string, status Status) *Recipe {
	return &Recipe{
		Ingredients:  NA,
		Instructions: NA,
		Title:        NA,
		TotalTime:    NA,
		Yields:       NA,
		Host:         NA,
		Image:        NA,
		Nutrients:    NA,
		URL:          url,
		Status:       status,
		Version:      Version,
	}
}

// Unreachable marks a URL whose page could not be fetched.
func Unreachable(url string) *Recipe { return statusOnly(url, StatusUnreachable) }

// Unknown marks a URL whose page carried no recipe schema.
func Unknown(url string) *Recipe { return statusOnly(url, StatusUnknown) }
