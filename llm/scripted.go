package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedProvider replays pre-scripted responses in order. It backs
// tests that need a deterministic collaborator without network access.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []Response
	next      int

	// Calls records every request for assertions.
	Calls [][]ChatMessage
}

// NewScriptedProvider creates a provider replaying responses in order.
// When the script runs out, further calls return an error.
func NewScriptedProvider(responses ...Response) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

func (p *ScriptedProvider) Name() string  { return "scripted" }
func (p *ScriptedProvider) Model() string { return "scripted" }

func (p *ScriptedProvider) Chat(_ context.Context, messages []ChatMessage) (Response, error) {
	return p.pop(messages)
}

func (p *ScriptedProvider) ChatWithTools(_ context.Context, messages []ChatMessage, _ []ToolDefinition) (Response, error) {
	return p.pop(messages)
}

func (p *ScriptedProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	resp, err := p.pop(messages)
	if err != nil {
		return nil, err
	}
	select {
	case chunks <- resp.Content:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return resp.Usage, nil
}

func (p *ScriptedProvider) pop(messages []ChatMessage) (Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, messages)
	if p.next >= len(p.responses) {
		return Response{}, fmt.Errorf("scripted provider exhausted after %d responses", len(p.responses))
	}
	resp := p.responses[p.next]
	p.next++
	return resp, nil
}

var _ Provider = (*ScriptedProvider)(nil)
