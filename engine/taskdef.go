package engine

import (
	"fmt"
	"time"
)

// WidgetKind is the closed set of input widgets a task definition may
// declare. Each kind carries its own collection and validation behavior;
// unknown kinds fail the definition at load time.
type WidgetKind string

const (
	WidgetText     WidgetKind = "text"
	WidgetTextarea WidgetKind = "textarea"
	WidgetDropdown WidgetKind = "dropdown"
	WidgetRadio    WidgetKind = "radio"
	WidgetCheckbox WidgetKind = "checkbox"
	WidgetDate     WidgetKind = "date"
	// WidgetLicenceList is a textarea collecting licence numbers, one per
	// line or comma-separated. Its values become an inclusion predicate on
	// the audience query and count as explicitly requested identifiers when
	// reporting unmatched licences.
	WidgetLicenceList WidgetKind = "licence_list"
)

// ParseWidgetKind maps the definition's string form to a WidgetKind.
func ParseWidgetKind(s string) (WidgetKind, error) {
	switch k := WidgetKind(s); k {
	case WidgetText, WidgetTextarea, WidgetDropdown, WidgetRadio, WidgetCheckbox, WidgetDate, WidgetLicenceList:
		return k, nil
	}
	return "", fmt.Errorf("unknown widget kind %q", s)
}

// Choice is one selectable option for dropdown, radio or checkbox widgets.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Lookup declares an externally-sourced choice list. The filter is passed
// verbatim to the lookup provider at render time.
type Lookup struct {
	Filter map[string]string
}

// Widget is one input field inside a step.
type Widget struct {
	Name        string
	Label       string
	Kind        WidgetKind
	Mandatory   bool
	ReplayLabel string
	Rules       []Rule
	Lookup      *Lookup
	Choices     []Choice
}

// many reports whether the widget collects a list rather than a scalar.
func (w Widget) many() bool {
	return w.Kind == WidgetCheckbox || w.Kind == WidgetLicenceList
}

// Variable is one free-form template parameter requested after audience
// selection. It validates like a text widget.
type Variable struct {
	Name      string
	Label     string
	Mandatory bool
	Rules     []Rule
}

// Step is one page of the wizard.
type Step struct {
	Title   string
	Widgets []Widget
}

// TaskDefinition is the externally loaded, immutable description of one
// notification wizard. It is fetched per request and never cached across
// requests, so an updated definition takes effect immediately.
type TaskDefinition struct {
	ID        int
	Subtype   Subtype
	Name      string
	Title     string
	Steps     []Step
	Variables []Variable
}

// Validate enforces the structural invariants the engine depends on:
// widget and variable names unique across the whole task, at least one
// step, and every subtype known to the access table.
func (d *TaskDefinition) Validate() error {
	if len(d.Steps) == 0 {
		return NewConfigError(d.ID, "task definition %d has no steps", d.ID)
	}
	if _, ok := permissionBySubtype[d.Subtype]; !ok {
		return NewConfigError(d.ID, "task definition %d has unknown subtype %q", d.ID, d.Subtype)
	}
	seen := make(map[string]bool)
	for si, step := range d.Steps {
		if len(step.Widgets) == 0 {
			return NewConfigError(d.ID, "step %d of task %d has no widgets", si, d.ID)
		}
		for _, w := range step.Widgets {
			if w.Name == "" {
				return NewConfigError(d.ID, "step %d of task %d has an unnamed widget", si, d.ID)
			}
			if seen[w.Name] {
				return NewConfigError(d.ID, "duplicate widget name %q in task %d", w.Name, d.ID)
			}
			seen[w.Name] = true
		}
	}
	for _, v := range d.Variables {
		if v.Name == "" {
			return NewConfigError(d.ID, "task %d declares an unnamed variable", d.ID)
		}
		if seen[v.Name] {
			return NewConfigError(d.ID, "variable %q collides with a widget name in task %d", v.Name, d.ID)
		}
		seen[v.Name] = true
	}
	return nil
}

// HasVariables reports whether the variable-collection step applies.
func (d *TaskDefinition) HasVariables() bool {
	return len(d.Variables) > 0
}

// widgets iterates every widget across all steps in declaration order.
func (d *TaskDefinition) widgets() []Widget {
	var all []Widget
	for _, step := range d.Steps {
		all = append(all, step.Widgets...)
	}
	return all
}

// ReplayRow is one label/value pair shown on the preview page so the
// operator can check their answers before sending.
type ReplayRow struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// ReplayRows collects the answers of widgets carrying a replay label, in
// step order, from the accumulated params.
func (d *TaskDefinition) ReplayRows(params map[string]any) []ReplayRow {
	var rows []ReplayRow
	for _, w := range d.widgets() {
		if w.ReplayLabel == "" {
			continue
		}
		value, ok := params[w.Name]
		if !ok {
			continue
		}
		rows = append(rows, ReplayRow{Label: w.ReplayLabel, Value: value})
	}
	return rows
}

// FlowState is the session-scoped accumulator for one wizard run. It is a
// plain value: the transport layer loads it before each operation and
// stores it back afterwards; the engine never touches the store directly.
type FlowState struct {
	TaskID         int            `json:"taskId"`
	Params         map[string]any `json:"params"`
	LicenceNumbers []string       `json:"licenceNumbers"`
	StartedAt      time.Time      `json:"startedAt"`
}

// NewFlowState starts a fresh flow for the given task.
func NewFlowState(taskID int) *FlowState {
	return &FlowState{
		TaskID:    taskID,
		Params:    make(map[string]any),
		StartedAt: time.Now().UTC(),
	}
}
