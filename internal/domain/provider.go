package domain

import "context"

// PromptTurn is one role-tagged entry of the context window handed to
// a completion call, ascending chronological order.
type PromptTurn struct {
	Role Role
	Text string
}

// CompletionRequest is a single stateless completion call: the fixed
// system instruction, the conversation history so far, and the current
// inbound text as the final prompt. All history must be re-supplied on
// every call; providers hold no conversation state.
type CompletionRequest struct {
	SystemInstruction string
	History           []PromptTurn
	Prompt            string
	Model             string
	MaxTokens         int
	Temperature       float64
}

// Completion is the generated reply for one request.
type Completion struct {
	Text      string
	Model     string
	LatencyMs int64
	Usage     Usage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider is the interface all generative backends implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Name() string
	Healthy(ctx context.Context) error
}
