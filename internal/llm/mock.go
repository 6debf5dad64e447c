package llm

import "context"

// MockClient is a test double for the Client interface.
type MockClient struct {
	Response *Response
	Err      error
	Calls    []string // records user messages sent
}

// Generate records the call and returns the mock response.
func (m *MockClient) Generate(ctx context.Context, systemPrompt, userMessage string, temperature float64, maxTokens int) (*Response, error) {
	m.Calls = append(m.Calls, userMessage)
	return m.Response, m.Err
}
