package agent

import (
	"susan/datasource"
)

// Intent classifies a user turn into one of four fixed categories.
type Intent string

const (
	IntentSQL   Intent = "sql"
	IntentChart Intent = "chart"
	IntentWeb   Intent = "web"
	IntentChat  Intent = "chat"
)

// ValidIntent reports whether s is one of the four routable intents.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentSQL, IntentChart, IntentWeb, IntentChat:
		return true
	}
	return false
}

// Message roles used in the conversation log.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry in the conversation log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State carries one user turn through the dispatch graph. It is created
// fresh per invocation and mutated in place by whichever specialist runs.
type State struct {
	UserInput  string            `json:"user_input"`
	Intent     Intent            `json:"intent,omitempty"`
	Result     *datasource.Table `json:"sql_result,omitempty"`
	ChartSpec  *ChartSpec        `json:"chart_spec,omitempty"`
	ChartPath  string            `json:"chart_path,omitempty"`
	WebSummary string            `json:"web_summary,omitempty"`
	Messages   []Message         `json:"messages"`
}

// NewState builds a fresh state for one user turn.
func NewState(input string) *State {
	return &State{UserInput: input}
}

// AddMessage appends a role-tagged entry to the conversation log.
func (s *State) AddMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}
