package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/notifyflow/notifyflow/engine"
)

// TaskDefinitionClient loads task definitions from the configuration
// service. Definitions are fetched per request and mapped from the
// service's loosely-typed JSON into the engine's closed types, with every
// validation rule compiled up front.
type TaskDefinitionClient struct {
	http *resty.Client
}

func NewTaskDefinitionClient(opts Options) *TaskDefinitionClient {
	return &TaskDefinitionClient{http: newClient(opts)}
}

// GetTaskDefinition fetches and validates the definition for one task id.
func (c *TaskDefinitionClient) GetTaskDefinition(ctx context.Context, id int) (*engine.TaskDefinition, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/task-definitions/%d", id))
	if err != nil {
		return nil, fmt.Errorf("fetching task definition %d: %w", id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, engine.ErrTaskNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("task definition service returned %s", resp.Status())
	}

	def, err := parseTaskDefinition(resp.Body())
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// parseTaskDefinition maps the upstream JSON document into engine types.
// The document is traversed with gabs because widget blocks are ragged:
// optional lookups, optional choice lists, validation rules of mixed shape.
func parseTaskDefinition(body []byte) (*engine.TaskDefinition, error) {
	doc, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("parsing task definition: %w", err)
	}

	id := int(floatAt(doc, "id"))
	def := &engine.TaskDefinition{
		ID:      id,
		Subtype: engine.Subtype(stringAt(doc, "subtype")),
		Name:    stringAt(doc, "name"),
		Title:   stringAt(doc, "title"),
	}

	for _, stepNode := range doc.Path("steps").Children() {
		step := engine.Step{Title: stringAt(stepNode, "title")}
		for _, widgetNode := range stepNode.Path("widgets").Children() {
			widget, err := parseWidget(id, widgetNode)
			if err != nil {
				return nil, err
			}
			step.Widgets = append(step.Widgets, widget)
		}
		def.Steps = append(def.Steps, step)
	}

	for _, varNode := range doc.Path("variables").Children() {
		rules, err := parseRules(id, varNode)
		if err != nil {
			return nil, err
		}
		def.Variables = append(def.Variables, engine.Variable{
			Name:      stringAt(varNode, "name"),
			Label:     stringAt(varNode, "label"),
			Mandatory: boolAt(varNode, "mandatory"),
			Rules:     rules,
		})
	}

	return def, nil
}

func parseWidget(taskID int, node *gabs.Container) (engine.Widget, error) {
	name := stringAt(node, "name")
	kind, err := engine.ParseWidgetKind(stringAt(node, "widget"))
	if err != nil {
		return engine.Widget{}, engine.NewConfigError(taskID, "widget %q: %v", name, err)
	}

	widget := engine.Widget{
		Name:        name,
		Label:       stringAt(node, "label"),
		Kind:        kind,
		Mandatory:   boolAt(node, "mandatory"),
		ReplayLabel: stringAt(node, "replay"),
	}

	if lookupNode := node.Path("lookup"); lookupNode != nil {
		filter := make(map[string]string)
		for key, value := range lookupNode.ChildrenMap() {
			if s, ok := value.Data().(string); ok {
				filter[key] = s
			}
		}
		widget.Lookup = &engine.Lookup{Filter: filter}
	}

	for _, choiceNode := range node.Path("choices").Children() {
		widget.Choices = append(widget.Choices, engine.Choice{
			Value: stringAt(choiceNode, "value"),
			Label: stringAt(choiceNode, "label"),
		})
	}

	widget.Rules, err = parseRules(taskID, node)
	if err != nil {
		return engine.Widget{}, err
	}
	return widget, nil
}

func parseRules(taskID int, node *gabs.Container) ([]engine.Rule, error) {
	var rules []engine.Rule
	for _, ruleNode := range node.Path("validation").Children() {
		kind := engine.RuleKind(stringAt(ruleNode, "type"))
		rule, err := engine.CompileRule(
			kind,
			stringAt(ruleNode, "arg"),
			int(floatAt(ruleNode, "max")),
			stringAt(ruleNode, "message"),
		)
		if err != nil {
			return nil, engine.NewConfigError(taskID, "invalid validation rule: %v", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func stringAt(node *gabs.Container, path string) string {
	if s, ok := node.Path(path).Data().(string); ok {
		return s
	}
	return ""
}

func floatAt(node *gabs.Container, path string) float64 {
	if f, ok := node.Path(path).Data().(float64); ok {
		return f
	}
	return 0
}

func boolAt(node *gabs.Container, path string) bool {
	if b, ok := node.Path(path).Data().(bool); ok {
		return b
	}
	return false
}
