package engine

import (
	"net/url"
	"strings"
)

// VariableView is one template parameter resolved for rendering, pre-filled
// from accumulated answers like a step widget.
type VariableView struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value any    `json:"value,omitempty"`
}

// VariablesView is the view model for the variable-collection page.
type VariablesView struct {
	TaskID    int            `json:"taskId"`
	Variables []VariableView `json:"variables"`
	Errors    []FieldError   `json:"errors,omitempty"`
}

// RenderVariables builds the variable-collection view. Only meaningful when
// the definition declares variables; with none declared the view is empty
// and the transport should not have routed here.
func RenderVariables(def *TaskDefinition, state *FlowState) VariablesView {
	view := VariablesView{TaskID: def.ID}
	for _, v := range def.Variables {
		vv := VariableView{Name: v.Name, Label: v.Label}
		if value, ok := state.Params[v.Name]; ok {
			vv.Value = value
		}
		view.Variables = append(view.Variables, vv)
	}
	return view
}

// SubmitVariables validates every declared variable independently and, when
// all pass, merges them into state.Params under their own names with the
// same overwrite semantics as step submission. The flow then routes to
// preview. Validation failure leaves state untouched.
func SubmitVariables(def *TaskDefinition, state *FlowState, raw url.Values) (Navigation, error) {
	collected := make(map[string]any, len(def.Variables))
	var fieldErrs []FieldError
	for _, v := range def.Variables {
		value := strings.TrimSpace(raw.Get(v.Name))
		if errs := validateValue(v.Name, v.Label, v.Mandatory, v.Rules, value, state.Params); len(errs) > 0 {
			fieldErrs = append(fieldErrs, errs...)
			continue
		}
		collected[v.Name] = value
	}
	if len(fieldErrs) > 0 {
		return Navigation{}, newValidationError(def.ID, fieldErrs)
	}

	for name, value := range collected {
		state.Params[name] = value
	}
	return Navigation{Stage: StagePreview}, nil
}

// VariableParams extracts the declared-variable subset of accumulated
// params. Dispatch sends only this subset plus the audience, never the full
// params bag.
func VariableParams(def *TaskDefinition, state *FlowState) map[string]any {
	out := make(map[string]any, len(def.Variables))
	for _, v := range def.Variables {
		if value, ok := state.Params[v.Name]; ok {
			out[v.Name] = value
		}
	}
	return out
}
