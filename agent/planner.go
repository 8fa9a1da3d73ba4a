package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// personaPrompt is prepended as the system message on every model call so
// that all specialists answer in one consistent voice.
const personaPrompt = "You are Susan, a precise, friendly technology analyst who can reason " +
	"step-by-step, choose tools, and explain results succinctly. Favor tables and bullet " +
	"points. When the user asks about data, you may call the SQL or Chart tools. When they " +
	"ask about web pages or 'check this link', use the Web Checker tool. Never fabricate " +
	"facts; if uncertain, say so and propose how to verify."

var jsonSpanRe = regexp.MustCompile(`(?s)\{.*\}`)

// Planner wraps the chat model for the two call shapes the specialists
// need: structured JSON planning and free-form prose.
type Planner struct {
	chatModel model.ChatModel
	logFunc   func(string)
}

func NewPlanner(chatModel model.ChatModel, logFunc func(string)) *Planner {
	if logFunc == nil {
		logFunc = func(string) {}
	}
	return &Planner{chatModel: chatModel, logFunc: logFunc}
}

// PlanJSON asks the model for a minified JSON object matching schemaHint and
// parses whatever comes back. Malformed output never reaches the caller as
// an error: after fence stripping and a brace-span rescue the result
// degrades to {"error": "no json"}. Only transport failures return err.
func (p *Planner) PlanJSON(ctx context.Context, task, schemaHint string) (map[string]any, error) {
	messages := []*schema.Message{
		{
			Role: schema.System,
			Content: personaPrompt +
				" Return ONLY a minified JSON object matching this schema, no prose: " + schemaHint,
		},
		{Role: schema.User, Content: task},
	}

	resp, err := p.chatModel.Generate(ctx, messages)
	if err != nil {
		p.logFunc(fmt.Sprintf("[PLANNER] Model call failed: %v", err))
		return nil, fmt.Errorf("model call failed: %v", err)
	}

	content := extractJSON(strings.TrimSpace(resp.Content))

	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err == nil {
		return out, nil
	}
	if span := jsonSpanRe.FindString(content); span != "" {
		if err := json.Unmarshal([]byte(span), &out); err == nil {
			return out, nil
		}
	}

	p.logFunc(fmt.Sprintf("[PLANNER] No parseable JSON in model output: %.200s", content))
	return map[string]any{"error": "no json"}, nil
}

// Respond sends a single persona-framed prompt and returns the prose reply.
func (p *Planner) Respond(ctx context.Context, human string) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: personaPrompt},
		{Role: schema.User, Content: human},
	}
	resp, err := p.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("model call failed: %v", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// extractJSON strips a surrounding markdown code fence, if any, so that
// fenced model output parses like bare JSON.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
