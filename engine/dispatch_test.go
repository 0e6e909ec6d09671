package engine

import (
	"context"
	"fmt"
	"testing"
)

type recordedRender struct {
	licences  []string
	variables map[string]any
	mode      SendMode
}

type fakeRenderer struct {
	calls    []recordedRender
	messages []RenderedMessage
	count    int
	err      error
}

func (f *fakeRenderer) Render(_ context.Context, _ int, licences []string, variables map[string]any, mode SendMode) ([]RenderedMessage, int, error) {
	f.calls = append(f.calls, recordedRender{licences: licences, variables: variables, mode: mode})
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.messages, f.count, nil
}

type fakeSlots struct {
	cleared []string
	err     error
}

func (f *fakeSlots) Clear(_ context.Context, sessionID string, taskID int) error {
	f.cleared = append(f.cleared, fmt.Sprintf("%s/%d", sessionID, taskID))
	return f.err
}

type noopCounter struct {
	succeeded int
	failed    int
	messages  int
}

func (c *noopCounter) SendSucceeded(messages int) {
	c.succeeded++
	c.messages += messages
}

func (c *noopCounter) SendFailed() {
	c.failed++
}

func dispatchFixture(t *testing.T) (*TaskDefinition, *FlowState) {
	t.Helper()
	def := variablesDefinition(t)
	state := NewFlowState(def.ID)
	state.Params["region"] = "anglian"
	state.Params["licences"] = []string{"01/123", "01/124"}
	state.Params["gauging_station"] = "Bourton Mill"
	state.LicenceNumbers = []string{"01/123", "01/124"}
	return def, state
}

func TestPreviewIsIdempotent(t *testing.T) {
	def, state := dispatchFixture(t)
	renderer := &fakeRenderer{
		messages: []RenderedMessage{{Recipient: "a@x.com", Body: "Dear holder of 01/123"}},
		count:    2,
	}
	d := NewDispatcher(renderer, &fakeSlots{}, &noopCounter{}, testLogger())

	first, err := d.Preview(context.Background(), def, state)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	second, err := d.Preview(context.Background(), def, state)
	if err != nil {
		t.Fatalf("Second preview failed: %v", err)
	}

	if first.RecipientCount != second.RecipientCount || len(first.Messages) != len(second.Messages) {
		t.Errorf("Previews differ: %+v vs %+v", first, second)
	}
	if first.Messages[0].Body != second.Messages[0].Body {
		t.Errorf("Sample message differs between previews")
	}
	for _, call := range renderer.calls {
		if _, ok := call.mode.(Preview); !ok {
			t.Errorf("Preview must never carry a sender, got %T", call.mode)
		}
	}
	if len(state.LicenceNumbers) != 2 || len(state.Params) != 3 {
		t.Errorf("Preview mutated state: %+v", state)
	}
}

func TestPreviewSendsOnlyVariableSubset(t *testing.T) {
	def, state := dispatchFixture(t)
	renderer := &fakeRenderer{count: 2}
	d := NewDispatcher(renderer, &fakeSlots{}, &noopCounter{}, testLogger())

	if _, err := d.Preview(context.Background(), def, state); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	call := renderer.calls[0]
	if len(call.licences) != 2 {
		t.Errorf("Expected audience from state, got %v", call.licences)
	}
	if _, leaked := call.variables["region"]; leaked {
		t.Errorf("Step answers must not be sent to the renderer: %v", call.variables)
	}
	if call.variables["gauging_station"] != "Bourton Mill" {
		t.Errorf("Expected declared variable in request, got %v", call.variables)
	}
}

func TestPreviewRequiresSelection(t *testing.T) {
	def, state := dispatchFixture(t)
	state.LicenceNumbers = nil
	d := NewDispatcher(&fakeRenderer{}, &fakeSlots{}, &noopCounter{}, testLogger())

	if _, err := d.Preview(context.Background(), def, state); KindOf(err) != KindNoSelection {
		t.Fatalf("Expected no-selection error, got %v", err)
	}
}

func TestCommitClearsSlotAndSummarizes(t *testing.T) {
	def, state := dispatchFixture(t)
	renderer := &fakeRenderer{
		messages: []RenderedMessage{
			{Recipient: "a@x.com", Body: "Dear holder"},
			{Recipient: "b@x.com", Body: "Dear holder"},
		},
		count: 3,
	}
	slots := &fakeSlots{}
	counter := &noopCounter{}
	d := NewDispatcher(renderer, slots, counter, testLogger())

	result, err := d.Commit(context.Background(), def, state, "sess-1", "a@b.com")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if result.MessageCount != 2 || result.RecipientCount != 3 {
		t.Errorf("Unexpected summary %+v", result)
	}
	if result.Sample == nil || result.Sample.Recipient != "a@x.com" {
		t.Errorf("Expected first message as sample, got %+v", result.Sample)
	}
	if len(slots.cleared) != 1 || slots.cleared[0] != "sess-1/3" {
		t.Errorf("Expected slot sess-1/3 cleared, got %v", slots.cleared)
	}
	if commit, ok := renderer.calls[0].mode.(Commit); !ok || commit.Sender != "a@b.com" {
		t.Errorf("Expected commit mode with sender, got %+v", renderer.calls[0].mode)
	}
	if counter.succeeded != 1 || counter.messages != 2 {
		t.Errorf("Expected success recorded, got %+v", counter)
	}
}

func TestCommitFailurePreservesSlot(t *testing.T) {
	def, state := dispatchFixture(t)
	renderer := &fakeRenderer{err: fmt.Errorf("notify service down")}
	slots := &fakeSlots{}
	counter := &noopCounter{}
	d := NewDispatcher(renderer, slots, counter, testLogger())

	_, err := d.Commit(context.Background(), def, state, "sess-1", "a@b.com")
	if KindOf(err) != KindUpstream {
		t.Fatalf("Expected upstream error, got %v", err)
	}
	if len(slots.cleared) != 0 {
		t.Errorf("Slot must survive a failed commit, got %v", slots.cleared)
	}
	if counter.failed != 1 {
		t.Errorf("Expected failure recorded, got %+v", counter)
	}
}

func TestCommitRejectsEmptySender(t *testing.T) {
	def, state := dispatchFixture(t)
	renderer := &fakeRenderer{}
	d := NewDispatcher(renderer, &fakeSlots{}, &noopCounter{}, testLogger())

	_, err := d.Commit(context.Background(), def, state, "sess-1", "")
	if KindOf(err) != KindConfig {
		t.Fatalf("Expected config error for empty sender, got %v", err)
	}
	if len(renderer.calls) != 0 {
		t.Errorf("Renderer must not be called without a sender")
	}
}
