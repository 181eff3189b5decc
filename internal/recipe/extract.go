package recipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/forkbench/recipegrab/internal/diag"
)

// FailureKind is the closed classification of extraction failures. The
// diagnostics core branches on these names, never on runtime error
// identity.
type FailureKind string

// Failure kinds recorded into the categorizer.
const (
	KindElementNotFound FailureKind = "ElementNotFound"
	KindUnexpectedType  FailureKind = "UnexpectedType"
	KindSchemaWalk      FailureKind = "SchemaWalk"
	KindGeneralParsing  FailureKind = "GeneralParsing"
)

// ErrUnsupportedSite marks pages without a recipe schema. This is an
// expected limitation, not a bug: it is logged and the item skipped, but no
// failure is recorded for reporting.
var ErrUnsupportedSite = errors.New("no recipe schema found for this website")

// StepError is a classified failure of one extraction step.
type StepError struct {
	Step string
	Kind FailureKind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Recorder receives captured failures at the extraction boundary. It is
// satisfied by report.Categorizer.
type Recorder interface {
	Record(failure *diag.CapturedFailure, step string) uuid.UUID
}

// Extractor turns fetched HTML into a Recipe, capturing per-step failures
// through the Recorder instead of aborting the run.
type Extractor struct {
	recorder Recorder
}

// NewExtractor builds an Extractor recording failures into recorder.
func NewExtractor(recorder Recorder) *Extractor {
	return &Extractor{recorder: recorder}
}

// Extract parses html fetched from pageURL and extracts every step field.
// Individual step failures are logged and recorded but never abort the
// item; only context cancellation propagates. ErrUnsupportedSite is
// returned for pages carrying no recipe schema.
func (e *Extractor) Extract(ctx context.Context, pageURL string, html []byte, log *diag.Unit) (*Recipe, error) {
	log.Infof("Parsing HTML")
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		e.record(log, pageURL, "", KindGeneralParsing, err)
		return nil, fmt.Errorf("parse html: %w", err)
	}
	node := findRecipeNode(doc)
	if node == nil {
		log.Errorf("Unknown website. Extraction not supported")
		return nil, ErrUnsupportedSite
	}

	fields := make(map[string]string, len(Steps))
	for _, step := range Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, stepErr := e.step(step, node, pageURL)
		if stepErr != nil {
			kind := KindGeneralParsing
			var se *StepError
			if errors.As(stepErr, &se) {
				kind = se.Kind
			}
			e.recordStep(log, pageURL, step, kind, stepErr)
			fields[step] = NA
			continue
		}
		value = clean(value)
		if value == "" {
			stepLogf(log, step)("%s contains nothing", stepName(step))
			fields[step] = NA
			continue
		}
		fields[step] = value
	}
	return fromFields(pageURL, fields), nil
}

// step runs one extraction step with panic containment: a crashing step is
// reported as a general parsing failure of that step, never as a crashed
// run.
func (e *Extractor) step(step string, node map[string]any, pageURL string) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StepError{Step: step, Kind: KindGeneralParsing, Err: fmt.Errorf("step panicked: %v", r)}
		}
	}()
	return extractField(step, node, pageURL)
}

// recordStep captures and files a per-step failure. Essential and
// on-display steps log at error, the rest at warning.
func (e *Extractor) recordStep(log *diag.Unit, pageURL, step string, kind FailureKind, err error) {
	failure := diag.NewFailure(pageURL, string(kind), err)
	if e.recorder != nil {
		e.recorder.Record(failure, step)
	}
	level := diag.WarnLevel
	if IsOnDisplay(step) {
		level = diag.ErrorLevel
	}
	log.Failuref(level, failure, "No %s found: ", stepName(step))
}

// record files a failure not tied to a named step.
func (e *Extractor) record(log *diag.Unit, pageURL, step string, kind FailureKind, err error) {
	failure := diag.NewFailure(pageURL, string(kind), err)
	if e.recorder != nil {
		e.recorder.Record(failure, step)
	}
	log.Failuref(diag.ErrorLevel, failure, "Parsing error: ")
}

func stepName(step string) string {
	name := strings.ReplaceAll(step, "_", " ")
	return strings.ToUpper(name[:1]) + name[1:]
}

func stepLogf(log *diag.Unit, step string) func(string, ...any) {
	if IsOnDisplay(step) {
		return log.Errorf
	}
	return log.Warnf
}

// findRecipeNode locates the schema.org Recipe object in any ld+json
// script, including @graph and top-level array forms.
func findRecipeNode(doc *goquery.Document) map[string]any {
	var found map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if node := findRecipe(payload); node != nil {
			found = node
			return false
		}
		return true
	})
	return found
}

func findRecipe(payload any) map[string]any {
	switch v := payload.(type) {
	case map[string]any:
		if hasType(v["@type"], "Recipe") {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findRecipe(graph)
		}
	case []any:
		for _, item := range v {
			if node := findRecipe(item); node != nil {
				return node
			}
		}
	}
	return nil
}

func hasType(value any, want string) bool {
	switch t := value.(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func extractField(step string, node map[string]any, pageURL string) (string, error) {
	switch step {
	case StepIngredients:
		return joinedList(node, "recipeIngredient", step)
	case StepInstructions:
		return instructionsText(node, step)
	case StepTitle:
		return scalarText(node, "name", step)
	case StepTotalTime:
		return totalTimeText(node, step)
	case StepYields:
		return yieldsText(node, step)
	case StepHost:
		return hostOf(pageURL, step)
	case StepImage:
		return imageText(node, step)
	case StepNutrients:
		return nutrientsText(node, step)
	default:
		return "", &StepError{Step: step, Kind: KindSchemaWalk, Err: fmt.Errorf("unknown step %q", step)}
	}
}

func missing(step, key string) error {
	return &StepError{Step: step, Kind: KindElementNotFound, Err: fmt.Errorf("schema has no %s", key)}
}

func badType(step, key string, value any) error {
	return &StepError{Step: step, Kind: KindUnexpectedType, Err: fmt.Errorf("%s has unhandled type %T", key, value)}
}

func joinedList(node map[string]any, key, step string) (string, error) {
	raw, ok := node[key]
	if !ok || raw == nil {
		return "", missing(step, key)
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return "", badType(step, key, item)
			}
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, "\n"), nil
	default:
		return "", badType(step, key, raw)
	}
}

func instructionsText(node map[string]any, step string) (string, error) {
	raw, ok := node["recipeInstructions"]
	if !ok || raw == nil {
		return "", missing(step, "recipeInstructions")
	}
	steps, err := flattenInstructions(raw, step)
	if err != nil {
		return "", err
	}
	return strings.Join(steps, "\n"), nil
}

// flattenInstructions handles plain strings, HowToStep objects, and nested
// HowToSection lists.
func flattenInstructions(raw any, step string) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{strings.TrimSpace(v)}, nil
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return []string{strings.TrimSpace(text)}, nil
		}
		if items, ok := v["itemListElement"]; ok {
			return flattenInstructions(items, step)
		}
		return nil, badType(step, "recipeInstructions", raw)
	case []any:
		var out []string
		for _, item := range v {
			flat, err := flattenInstructions(item, step)
			if err != nil {
				return nil, err
			}
			out = append(out, flat...)
		}
		return out, nil
	default:
		return nil, badType(step, "recipeInstructions", raw)
	}
}

func scalarText(node map[string]any, key, step string) (string, error) {
	raw, ok := node[key]
	if !ok || raw == nil {
		return "", missing(step, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", badType(step, key, raw)
	}
	return s, nil
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

func totalTimeText(node map[string]any, step string) (string, error) {
	raw, ok := node["totalTime"]
	if !ok || raw == nil {
		return "", missing(step, "totalTime")
	}
	switch v := raw.(type) {
	case string:
		m := isoDuration.FindStringSubmatch(strings.TrimSpace(v))
		if m == nil {
			return "", badType(step, "totalTime", v)
		}
		minutes := atoi(m[1])*24*60 + atoi(m[2])*60 + atoi(m[3])
		if atoi(m[4]) > 0 {
			minutes++
		}
		if minutes == 0 {
			return "", nil
		}
		return fmt.Sprintf("%d", minutes), nil
	case float64:
		if v == 0 {
			return "", nil
		}
		return fmt.Sprintf("%d", int(v)), nil
	default:
		return "", badType(step, "totalTime", raw)
	}
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func yieldsText(node map[string]any, step string) (string, error) {
	raw, ok := node["recipeYield"]
	if !ok || raw == nil {
		return "", missing(step, "recipeYield")
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%g", v), nil
	case []any:
		if len(v) == 0 {
			return "", nil
		}
		if s, ok := v[0].(string); ok {
			return s, nil
		}
		return "", badType(step, "recipeYield", v[0])
	default:
		return "", badType(step, "recipeYield", raw)
	}
}

func hostOf(pageURL, step string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return "", &StepError{Step: step, Kind: KindElementNotFound, Err: fmt.Errorf("no host in %q", pageURL)}
	}
	return u.Hostname(), nil
}

func imageText(node map[string]any, step string) (string, error) {
	raw, ok := node["image"]
	if !ok || raw == nil {
		return "", missing(step, "image")
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case []any:
		if len(v) == 0 {
			return "", nil
		}
		return imageValue(v[0], step)
	case map[string]any:
		return imageValue(v, step)
	default:
		return "", badType(step, "image", raw)
	}
}

func imageValue(raw any, step string) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case map[string]any:
		if u, ok := v["url"].(string); ok {
			return u, nil
		}
		return "", badType(step, "image", raw)
	default:
		return "", badType(step, "image", raw)
	}
}

func nutrientsText(node map[string]any, step string) (string, error) {
	raw, ok := node["nutrition"]
	if !ok || raw == nil {
		return "", missing(step, "nutrition")
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return "", badType(step, "nutrition", raw)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, "@") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			lines = append(lines, k+": "+s)
		}
	}
	return strings.Join(lines, "\n"), nil
}

var hasAlphanumeric = regexp.MustCompile(`[0-9A-Za-z]`)

// clean trims whitespace and discards values with no substance, so "None"
// and bare punctuation never end up in the output file.
func clean(value string) string {
	value = strings.TrimSpace(value)
	if value == "None" || !hasAlphanumeric.MatchString(value) {
		return ""
	}
	return value
}
