package agent

import (
	"context"
	"strings"

	"github.com/donhauser/atlas-agent/llm"
)

// Stream processes one turn like Chat but delivers the reply text
// incrementally on chunks. Plan-matched turns resolve fully server-side
// and arrive as a single chunk; unmatched turns stream straight from
// the collaborator without the tool loop. The caller owns the channel
// and closes nothing; Stream stops sending when it returns.
func (a *Agent) Stream(ctx context.Context, req ChatRequest, chunks chan<- string) (ChatResponse, error) {
	if plan := a.matcher.Match(req.Message, req.Context.Module); plan != nil {
		resp := a.Chat(ctx, req)
		select {
		case chunks <- resp.Content:
		case <-ctx.Done():
			return resp, ctx.Err()
		}
		return resp, nil
	}

	s := a.sessions.GetOrCreate(ctx, req.SessionID)
	a.sessions.Append(ctx, s, llm.UserMessage(req.Message))
	resp := ChatResponse{SessionID: s.ID}

	messages := append([]llm.ChatMessage{llm.SystemMessage(systemPrompt)}, s.History...)

	inner := make(chan string)
	errc := make(chan error, 1)
	go func() {
		_, err := a.provider.StreamChat(ctx, messages, inner)
		close(inner)
		errc <- err
	}()

	var full strings.Builder
	for chunk := range inner {
		full.WriteString(chunk)
		select {
		case chunks <- chunk:
		case <-ctx.Done():
			<-errc
			return resp, ctx.Err()
		}
	}
	if err := <-errc; err != nil {
		a.logger.Warn("streaming failed", "sessionId", s.ID, "error", err)
		resp.Error = &WireError{Code: "ProviderError", Message: err.Error()}
		return resp, err
	}

	resp.Content = full.String()
	a.sessions.Append(ctx, s, llm.AssistantMessage(resp.Content))
	return resp, nil
}
