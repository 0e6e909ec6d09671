package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Stage names the wizard phases a completed operation can route to.
type Stage string

const (
	StageStep      Stage = "step"
	StageAudience  Stage = "audience"
	StageVariables Stage = "variables"
	StagePreview   Stage = "preview"
)

// Navigation tells the transport layer where the wizard goes next.
// StepIndex is only meaningful when Stage is StageStep.
type Navigation struct {
	Stage     Stage `json:"stage"`
	StepIndex int   `json:"stepIndex,omitempty"`
}

// LookupProvider fetches externally-sourced choice lists at render time.
type LookupProvider interface {
	Choices(ctx context.Context, filter map[string]string) ([]Choice, error)
}

// WidgetView is one widget resolved for rendering: choices populated, value
// pre-filled from accumulated answers.
type WidgetView struct {
	Name    string     `json:"name"`
	Label   string     `json:"label"`
	Kind    WidgetKind `json:"kind"`
	Value   any        `json:"value,omitempty"`
	Choices []Choice   `json:"choices,omitempty"`
}

// StepView is the view model for one wizard page.
type StepView struct {
	TaskID    int          `json:"taskId"`
	Title     string       `json:"title"`
	StepIndex int          `json:"stepIndex"`
	StepCount int          `json:"stepCount"`
	Widgets   []WidgetView `json:"widgets"`
	Errors    []FieldError `json:"errors,omitempty"`
}

// Interpreter renders and validates wizard steps against a task definition.
type Interpreter struct {
	Lookups LookupProvider
	Log     *slog.Logger
}

func NewInterpreter(lookups LookupProvider, log *slog.Logger) *Interpreter {
	return &Interpreter{Lookups: lookups, Log: log}
}

// RenderStep builds the view model for steps[idx]. Widgets declaring a
// lookup have their choices fetched before returning; every widget's value
// defaults to whatever is already accumulated under its name, so navigating
// back to an answered step shows the previous answers.
func (i *Interpreter) RenderStep(ctx context.Context, def *TaskDefinition, state *FlowState, idx int) (StepView, error) {
	if idx < 0 || idx >= len(def.Steps) {
		return StepView{}, NewConfigError(def.ID, "step %d out of range for task %d (%d steps)", idx, def.ID, len(def.Steps))
	}
	step := def.Steps[idx]

	view := StepView{
		TaskID:    def.ID,
		Title:     step.Title,
		StepIndex: idx,
		StepCount: len(def.Steps),
	}
	for _, w := range step.Widgets {
		wv := WidgetView{
			Name:    w.Name,
			Label:   w.Label,
			Kind:    w.Kind,
			Choices: w.Choices,
		}
		if w.Lookup != nil {
			choices, err := i.Lookups.Choices(ctx, w.Lookup.Filter)
			if err != nil {
				return StepView{}, NewUpstreamError(def.ID, fmt.Errorf("fetching choices for widget %q: %w", w.Name, err))
			}
			wv.Choices = choices
		}
		if value, ok := state.Params[w.Name]; ok {
			wv.Value = value
		}
		view.Widgets = append(view.Widgets, wv)
	}
	return view, nil
}

// SubmitStep validates raw form input against steps[idx]. On success the
// validated values are merged into state.Params (overwriting any previous
// answer for the same widget) and the returned Navigation points at the
// next step, or at the audience stage after the last one. On validation
// failure state is left untouched and the error carries the field messages.
func (i *Interpreter) SubmitStep(def *TaskDefinition, state *FlowState, idx int, raw url.Values) (Navigation, error) {
	if idx < 0 || idx >= len(def.Steps) {
		return Navigation{}, NewConfigError(def.ID, "step %d out of range for task %d (%d steps)", idx, def.ID, len(def.Steps))
	}
	step := def.Steps[idx]

	collected := make(map[string]any, len(step.Widgets))
	var fieldErrs []FieldError
	for _, w := range step.Widgets {
		value, errs := collectWidget(w, raw, state.Params)
		if len(errs) > 0 {
			fieldErrs = append(fieldErrs, errs...)
			continue
		}
		collected[w.Name] = value
	}
	if len(fieldErrs) > 0 {
		return Navigation{}, newValidationError(def.ID, fieldErrs)
	}

	for name, value := range collected {
		state.Params[name] = value
	}

	if idx+1 < len(def.Steps) {
		return Navigation{Stage: StageStep, StepIndex: idx + 1}, nil
	}
	return Navigation{Stage: StageAudience}, nil
}

// collectWidget extracts and validates one widget's value from raw form
// input. List widgets yield []string, everything else a string.
func collectWidget(w Widget, raw url.Values, params map[string]any) (any, []FieldError) {
	var value any
	switch w.Kind {
	case WidgetCheckbox:
		value = trimAll(raw[w.Name])
	case WidgetLicenceList:
		value = splitIdentifierList(raw.Get(w.Name))
	case WidgetDate:
		s := strings.TrimSpace(raw.Get(w.Name))
		if s != "" {
			if _, err := time.Parse("2006-01-02", s); err != nil {
				return nil, []FieldError{{Field: w.Name, Message: fmt.Sprintf("%s must be a date in YYYY-MM-DD format", w.Label)}}
			}
		}
		value = s
	default:
		value = strings.TrimSpace(raw.Get(w.Name))
	}

	if errs := validateValue(w.Name, w.Label, w.Mandatory, w.Rules, value, params); len(errs) > 0 {
		return nil, errs
	}
	return value, nil
}

// splitIdentifierList parses a licence-list textarea: identifiers separated
// by commas or newlines, blanks dropped, first-occurrence order kept.
func splitIdentifierList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	var ids []string
	seen := make(map[string]bool)
	for _, f := range fields {
		id := strings.TrimSpace(f)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
