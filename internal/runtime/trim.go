package runtime

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/marmot/pkg/llm"
)

// Trimmer keeps prompts inside the model's context window.
type Trimmer struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// NewTrimmer creates a trimmer for the given model's tokenizer.
// maxTokens is the model's context window size and reserve is the number
// of tokens held back for the model's response.
func NewTrimmer(model string, maxTokens, reserve int) (*Trimmer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Trimmer{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

func (t *Trimmer) countTokens(text string) int {
	return len(t.tokenizer.Encode(text, nil, nil))
}

func (t *Trimmer) messageTokens(msg llm.Message) int {
	n := t.countTokens(msg.Content)
	for _, tc := range msg.ToolCalls {
		n += t.countTokens(tc.Function.Name)
		n += t.countTokens(string(tc.Function.Arguments))
	}
	return n
}

// Trim drops the oldest non-system messages until the list fits the input
// budget. The leading system message always survives, and a tool message
// is never left without the assistant message that requested it.
func (t *Trimmer) Trim(messages []llm.Message) []llm.Message {
	if len(messages) == 0 {
		return messages
	}

	budget := t.maxTokens - t.reserve
	total := 0
	for _, msg := range messages {
		total += t.messageTokens(msg)
	}
	if total <= budget {
		return messages
	}

	head := 0
	if messages[0].Role == llm.RoleSystem {
		head = 1
	}
	tail := messages[head:]
	for len(tail) > 1 && total > budget {
		total -= t.messageTokens(tail[0])
		tail = tail[1:]
	}
	// Orphaned tool results confuse the model; drop them too.
	for len(tail) > 1 && tail[0].Role == llm.RoleTool {
		total -= t.messageTokens(tail[0])
		tail = tail[1:]
	}

	out := make([]llm.Message, 0, head+len(tail))
	out = append(out, messages[:head]...)
	out = append(out, tail...)
	return out
}
