package generator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// MockLLM 本地调试用，不调用外部模型。
// Replies are returned in order; after the last one it keeps returning the last.
// With no replies it drafts a short post from the prompt itself.
type MockLLM struct {
	Replies []string
	Err     error

	mu      sync.Mutex
	calls   int
	prompts []Prompt
}

func (m *MockLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) > 0 {
		i := m.calls - 1
		if i >= len(m.Replies) {
			i = len(m.Replies) - 1
		}
		return m.Replies[i], nil
	}

	firstLine := strings.TrimSpace(strings.SplitN(prompt.User, "\n", 2)[0])
	out, _ := json.Marshal(Sections{
		Hook:     "What the Android community is talking about today.",
		Insight:  firstLine,
		Takeaway: "Try it in your next project and measure the difference.",
		CTA:      "What's your experience? #AndroidDev #Kotlin",
	})
	return string(out), nil
}

// Calls returns how many completions were requested.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns a copy of the prompts received so far.
func (m *MockLLM) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}
