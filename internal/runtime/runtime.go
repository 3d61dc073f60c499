package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/marmot/internal/skills"
	"github.com/user/marmot/internal/types"
	"github.com/user/marmot/pkg/llm"
)

// maxRoundsFallback is returned when the model keeps requesting tools past
// the iteration cap. It is not persisted as conversation history.
const maxRoundsFallback = "I've reached the maximum number of tool call iterations. Please try rephrasing your request."

// Runtime implements the agentic turn loop.
type Runtime struct {
	provider      llm.Provider
	conversations types.ConversationStore
	registry      *Registry
	skills        *skills.Registry
	trimmer       *Trimmer
	maxRounds     int
	basePrompt    string
	userLocation  string
}

// New creates a Runtime with the given dependencies. A nil trimmer
// disables context-window trimming.
func New(
	provider llm.Provider,
	conversations types.ConversationStore,
	registry *Registry,
	skillReg *skills.Registry,
	trimmer *Trimmer,
	maxRounds int,
) *Runtime {
	if maxRounds <= 0 {
		maxRounds = 10
	}
	return &Runtime{
		provider:      provider,
		conversations: conversations,
		registry:      registry,
		skills:        skillReg,
		trimmer:       trimmer,
		maxRounds:     maxRounds,
		basePrompt:    DefaultPrompt,
	}
}

// SetBasePrompt overrides the built-in system instructions.
func (rt *Runtime) SetBasePrompt(prompt string) {
	if prompt != "" {
		rt.basePrompt = prompt
	}
}

// SetUserLocation attaches a location line to the system prompt.
func (rt *Runtime) SetUserLocation(loc string) {
	rt.userLocation = loc
}

// Registry exposes the tool registry for wiring and inspection.
func (rt *Runtime) Registry() *Registry {
	return rt.registry
}

// buildSystemPrompt assembles the live system message: base instructions,
// the current skill snapshot, the clock, and the user's location.
func (rt *Runtime) buildSystemPrompt() string {
	prompt := rt.basePrompt

	if rt.skills != nil {
		if skillContext := rt.skills.BuildContext(); skillContext != "" {
			prompt += "\n\n# Available Skills\n\n" + skillContext
		}
	}

	prompt += "\n\nCurrent date and time: " + time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	if rt.userLocation != "" {
		prompt += "\nUser location: " + rt.userLocation
	}
	return prompt
}

type toolResult struct {
	callID string
	text   string
}

// ProcessTurn runs one complete turn of the agent loop for an inbound
// message and returns the final answer text. sink may be nil; when set it
// receives a ToolStarted event per tool call before the batch executes.
func (rt *Runtime) ProcessTurn(ctx context.Context, incoming *types.IncomingMessage, sink types.EventSink) (string, error) {
	convID, err := rt.conversations.GetOrCreate(ctx, incoming.Platform, incoming.UserID)
	if err != nil {
		return "", fmt.Errorf("resolve conversation: %w", err)
	}

	messages, err := rt.conversations.LoadMessages(ctx, convID)
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}

	// The system message is rebuilt every turn so skill reloads take
	// effect immediately. It is persisted only once, at conversation
	// start; afterwards only the in-memory copy is refreshed and the
	// stored row stays as written.
	systemPrompt := rt.buildSystemPrompt()
	if len(messages) == 0 {
		systemMsg := llm.Message{Role: llm.RoleSystem, Content: systemPrompt}
		if _, err := rt.conversations.AppendMessage(ctx, convID, systemMsg); err != nil {
			return "", fmt.Errorf("persist system message: %w", err)
		}
		messages = append(messages, systemMsg)
	} else {
		refreshed := false
		for i := range messages {
			if messages[i].Role == llm.RoleSystem {
				messages[i].Content = systemPrompt
				refreshed = true
				break
			}
		}
		if !refreshed {
			messages = append([]llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}, messages...)
		}
	}

	userMsg := llm.Message{Role: llm.RoleUser, Content: incoming.Text}
	if _, err := rt.conversations.AppendMessage(ctx, convID, userMsg); err != nil {
		return "", fmt.Errorf("persist user message: %w", err)
	}
	messages = append(messages, userMsg)

	tools := rt.registry.Definitions()

	for round := 0; round < rt.maxRounds; round++ {
		prompt := messages
		if rt.trimmer != nil {
			prompt = rt.trimmer.Trim(messages)
		}

		resp, err := rt.provider.Complete(ctx, prompt, tools)
		if err != nil {
			return "", fmt.Errorf("model call: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			assistantMsg := llm.Message{Role: llm.RoleAssistant, Content: resp.Content}
			if _, err := rt.conversations.AppendMessage(ctx, convID, assistantMsg); err != nil {
				return "", fmt.Errorf("persist assistant message: %w", err)
			}
			return resp.Content, nil
		}

		slog.Info("model requested tool calls", "count", len(resp.ToolCalls), "round", round)

		assistantMsg := llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		if _, err := rt.conversations.AppendMessage(ctx, convID, assistantMsg); err != nil {
			return "", fmt.Errorf("persist assistant message: %w", err)
		}
		messages = append(messages, assistantMsg)

		for _, tc := range resp.ToolCalls {
			sink.Emit(types.ToolStarted{Name: tc.Function.Name})
		}

		// The batch runs concurrently; results are persisted in
		// completion order, which carries no meaning for the model
		// since tool messages are matched by call id.
		results := make(chan toolResult, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			go func(tc llm.ToolCall) {
				text := rt.registry.Execute(ctx, tc.Function.Name, Call{
					Args:     tc.Function.Arguments,
					UserID:   incoming.UserID,
					ChatID:   incoming.ChatID,
					Platform: incoming.Platform,
				})
				results <- toolResult{callID: tc.ID, text: text}
			}(tc)
		}
		for range resp.ToolCalls {
			res := <-results
			toolMsg := llm.Message{Role: llm.RoleTool, Content: res.text, ToolCallID: res.callID}
			if _, err := rt.conversations.AppendMessage(ctx, convID, toolMsg); err != nil {
				return "", fmt.Errorf("persist tool result: %w", err)
			}
			messages = append(messages, toolMsg)
		}
	}

	slog.Warn("turn hit tool round cap", "user_id", incoming.UserID, "rounds", rt.maxRounds)
	return maxRoundsFallback, nil
}
