package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Op is a query predicate operator.
type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

// licenceNumberField is the audience-directory field that identifies a
// recipient. Inclusion predicates on it are treated as explicitly requested
// identifiers when reporting unmatched licences.
const licenceNumberField = "licence_number"

// Condition is one predicate of an audience query.
type Condition struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Filter is the audience query derived from accumulated answers. It is
// never persisted: BuildFilter recomputes it from params on demand, so it
// always reflects the latest state.
type Filter struct {
	Conditions []Condition `json:"conditions"`
}

// RequestedIdentifiers returns the licence numbers the operator asked for
// explicitly, if the filter carries an inclusion predicate on the
// identifier field. Empty for purely attribute-based filters.
func (f Filter) RequestedIdentifiers() []string {
	for _, c := range f.Conditions {
		if c.Field == licenceNumberField && c.Op == OpIn {
			if ids, ok := c.Value.([]string); ok {
				return ids
			}
		}
	}
	return nil
}

// BuildFilter maps every widget answer present in params into exactly one
// predicate. Widgets without an answer contribute nothing, so the filter
// narrows monotonically as more steps are completed. Variables never
// contribute: only step widgets are consulted.
func BuildFilter(def *TaskDefinition, params map[string]any) Filter {
	var f Filter
	for _, w := range def.widgets() {
		value, ok := params[w.Name]
		if ok && isEmptyValue(value) {
			ok = false
		}
		if !ok {
			continue
		}
		switch w.Kind {
		case WidgetLicenceList:
			f.Conditions = append(f.Conditions, Condition{Field: licenceNumberField, Op: OpIn, Value: stringList(value)})
		case WidgetCheckbox:
			f.Conditions = append(f.Conditions, Condition{Field: w.Name, Op: OpIn, Value: stringList(value)})
		default:
			f.Conditions = append(f.Conditions, Condition{Field: w.Name, Op: OpEq, Value: value})
		}
	}
	return f
}

// stringList normalizes a list-valued answer. Params loaded back from the
// session store arrive as []any after the JSON roundtrip, fresh submissions
// as []string; both forms carry the same answers.
func stringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Recipient is one candidate audience member returned by the directory.
type Recipient struct {
	LicenceNumber string `json:"licenceNumber"`
	Name          string `json:"name"`
	Email         string `json:"email"`
}

// Page describes one page of directory results.
type Page struct {
	Number    int `json:"page"`
	PerPage   int `json:"perPage"`
	PageCount int `json:"pageCount"`
	TotalRows int `json:"totalRows"`
}

// Directory is the external audience source. Implementations must order
// results by licence number ascending and honor the requested page.
type Directory interface {
	Query(ctx context.Context, filter Filter, page int) ([]Recipient, Page, error)
}

// AudienceResult is the outcome of one audience resolution.
type AudienceResult struct {
	Matched []Recipient `json:"matched"`
	// Unmatched lists requested identifiers the directory did not return.
	Unmatched []string `json:"unmatched,omitempty"`
	// Errors carries the human-readable wording for Unmatched. Informational
	// only: the operator may proceed with the matched subset.
	Errors []string `json:"errors,omitempty"`
}

// Resolver turns accumulated answers into a resolved candidate audience.
type Resolver struct {
	Directory Directory
	Log       *slog.Logger
}

func NewResolver(directory Directory, log *slog.Logger) *Resolver {
	return &Resolver{Directory: directory, Log: log}
}

// Resolve builds the filter from the current params, walks every directory
// page, and reports requested identifiers that matched nothing. The result
// is ordered by licence number ascending regardless of page boundaries.
func (r *Resolver) Resolve(ctx context.Context, def *TaskDefinition, state *FlowState) (AudienceResult, error) {
	filter := BuildFilter(def, state.Params)

	var matched []Recipient
	for page := 1; ; page++ {
		recipients, p, err := r.Directory.Query(ctx, filter, page)
		if err != nil {
			return AudienceResult{}, NewUpstreamError(def.ID, fmt.Errorf("audience query page %d: %w", page, err))
		}
		matched = append(matched, recipients...)
		if p.PageCount == 0 || page >= p.PageCount {
			break
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LicenceNumber < matched[j].LicenceNumber
	})

	result := AudienceResult{Matched: matched}
	if requested := filter.RequestedIdentifiers(); len(requested) > 0 {
		found := make(map[string]bool, len(matched))
		for _, m := range matched {
			found[m.LicenceNumber] = true
		}
		for _, id := range requested {
			if !found[id] {
				result.Unmatched = append(result.Unmatched, id)
			}
		}
		result.Errors = MapUnmatchedErrors(result.Unmatched)
	}

	r.Log.InfoContext(ctx, "audience resolved",
		"task", def.ID,
		"matched", len(result.Matched),
		"unmatched", len(result.Unmatched))
	return result, nil
}

// MapUnmatchedErrors renders missing identifiers as operator-facing wording,
// singular or plural depending on count. No identifiers yields no errors.
func MapUnmatchedErrors(ids []string) []string {
	switch len(ids) {
	case 0:
		return nil
	case 1:
		return []string{fmt.Sprintf("Licence number %s could not be found", ids[0])}
	default:
		return []string{fmt.Sprintf("Licence numbers %s could not be found", strings.Join(ids, ", "))}
	}
}

// ConfirmSelection records the operator's chosen identifiers. Zero
// selections is rejected without touching state. On success the previous
// selection is replaced wholesale and the flow routes to the variables
// stage when the definition declares any, else straight to preview.
func ConfirmSelection(def *TaskDefinition, state *FlowState, selected []string) (Navigation, error) {
	cleaned := trimAll(selected)
	if len(cleaned) == 0 {
		return Navigation{}, NewNoSelectionError(def.ID)
	}
	state.LicenceNumbers = cleaned
	if def.HasVariables() {
		return Navigation{Stage: StageVariables}, nil
	}
	return Navigation{Stage: StagePreview}, nil
}
