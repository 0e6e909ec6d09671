package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// SendMode distinguishes the two phases of the dispatch protocol. It is a
// closed union rather than an optional sender string, so an accidentally
// empty sender can never silently turn a preview into a send.
type SendMode interface {
	isSendMode()
}

// Preview renders messages without dispatching them. Safe to repeat.
type Preview struct{}

// Commit dispatches the messages under the given sender identity.
type Commit struct {
	Sender string
}

func (Preview) isSendMode() {}
func (Commit) isSendMode()  {}

// RenderedMessage is one message produced by the rendering service. A
// single rendered message may cover several audience members sharing a
// recipient, so len(messages) can be below the recipient count.
type RenderedMessage struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

// Renderer is the external rendering/dispatch service. A Preview mode call
// must have no side effects; a Commit mode call sends the messages.
type Renderer interface {
	Render(ctx context.Context, taskID int, licenceNumbers []string, variables map[string]any, mode SendMode) ([]RenderedMessage, int, error)
}

// SlotClearer clears one flow-state slot. Implemented by the session store;
// the dispatcher uses it to end the flow after a successful commit.
type SlotClearer interface {
	Clear(ctx context.Context, sessionID string, taskID int) error
}

// SendCounter records dispatch outcomes. Implemented by the metrics
// package; a no-op implementation is fine for tests.
type SendCounter interface {
	SendSucceeded(messages int)
	SendFailed()
}

// PreviewResult is the ephemeral outcome of a preview call. Never persisted.
type PreviewResult struct {
	Messages       []RenderedMessage `json:"messages"`
	RecipientCount int               `json:"recipientCount"`
	Replay         []ReplayRow       `json:"replay,omitempty"`
}

// SendResult summarizes a successful commit for the confirmation page.
type SendResult struct {
	MessageCount   int              `json:"messageCount"`
	RecipientCount int              `json:"recipientCount"`
	Sample         *RenderedMessage `json:"sample,omitempty"`
}

// Dispatcher drives the two-phase preview/commit protocol against the
// rendering service.
type Dispatcher struct {
	Renderer Renderer
	Slots    SlotClearer
	Counter  SendCounter
	Log      *slog.Logger
}

func NewDispatcher(renderer Renderer, slots SlotClearer, counter SendCounter, log *slog.Logger) *Dispatcher {
	return &Dispatcher{Renderer: renderer, Slots: slots, Counter: counter, Log: log}
}

// Preview renders the messages the current flow state would send. It never
// mutates state and is safe to call repeatedly: two previews over identical
// state yield identical results.
func (d *Dispatcher) Preview(ctx context.Context, def *TaskDefinition, state *FlowState) (PreviewResult, error) {
	if len(state.LicenceNumbers) == 0 {
		return PreviewResult{}, NewNoSelectionError(def.ID)
	}
	messages, recipients, err := d.Renderer.Render(ctx, def.ID, state.LicenceNumbers, VariableParams(def, state), Preview{})
	if err != nil {
		return PreviewResult{}, NewUpstreamError(def.ID, fmt.Errorf("preview render: %w", err))
	}
	return PreviewResult{
		Messages:       messages,
		RecipientCount: recipients,
		Replay:         def.ReplayRows(state.Params),
	}, nil
}

// Commit dispatches the messages under the operator's identity and, only
// after the rendering service reports success, clears the flow-state slot:
// the flow is terminal and cannot be resumed. On failure the slot is left
// intact so the operator can retry without re-answering. sessionID names
// the slot being consumed.
func (d *Dispatcher) Commit(ctx context.Context, def *TaskDefinition, state *FlowState, sessionID, sender string) (SendResult, error) {
	if len(state.LicenceNumbers) == 0 {
		return SendResult{}, NewNoSelectionError(def.ID)
	}
	if sender == "" {
		return SendResult{}, NewConfigError(def.ID, "commit requires a sender identity")
	}

	messages, recipients, err := d.Renderer.Render(ctx, def.ID, state.LicenceNumbers, VariableParams(def, state), Commit{Sender: sender})
	if err != nil {
		d.Counter.SendFailed()
		return SendResult{}, NewUpstreamError(def.ID, fmt.Errorf("commit render: %w", err))
	}

	// Messages are already sent; a failure to clear the slot must not be
	// reported as a send failure or a retry would dispatch twice.
	if err := d.Slots.Clear(ctx, sessionID, def.ID); err != nil {
		d.Log.ErrorContext(ctx, "clearing flow state after send", "task", def.ID, "error", err)
	}
	d.Counter.SendSucceeded(len(messages))
	d.Log.InfoContext(ctx, "notification sent",
		"task", def.ID,
		"sender", sender,
		"messages", len(messages),
		"recipients", recipients)

	result := SendResult{MessageCount: len(messages), RecipientCount: recipients}
	if len(messages) > 0 {
		result.Sample = &messages[0]
	}
	return result, nil
}
