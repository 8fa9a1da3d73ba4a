package agent

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockChatModel plays back canned responses in order; the last one repeats.
type MockChatModel struct {
	Responses []string
	Err       error
	LastInput []*schema.Message
	Calls     int
}

func (m *MockChatModel) BindTools(tools []*schema.ToolInfo) error { return nil }

func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.LastInput = input
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	content := "Mock Response"
	if len(m.Responses) > 0 {
		idx := m.Calls - 1
		if idx >= len(m.Responses) {
			idx = len(m.Responses) - 1
		}
		content = m.Responses[idx]
	}
	return &schema.Message{Role: schema.Assistant, Content: content}, nil
}

func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}
