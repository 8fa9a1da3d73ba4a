package agent

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestAgent builds a full dispatch graph around a fixed intent and a
// canned model. The SQL specialist has no backend so its replies are
// deterministic without a database.
func newTestAgent(t *testing.T, intent Intent, store *CheckpointStore, responses ...string) *Agent {
	t.Helper()
	mock := &MockChatModel{Responses: responses}
	planner := NewPlanner(mock, nil)

	router := NewRouter(fixedClassifier{intent: intent, note: "fixed"}, nil)
	sqlSpec := NewSQLSpecialist(planner, nil, 10, nil)
	chart := NewChartSpecialist(planner, sqlSpec, "", nil)
	web := NewWebChecker(planner, time.Second, "", nil)
	web.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	chat := NewChatFallback(planner, nil)

	agent, err := New(context.Background(), router, sqlSpec, chart, web, chat, store, nil)
	if err != nil {
		t.Fatalf("failed to build agent: %v", err)
	}
	return agent
}

func TestAgent_RoutesToOneSpecialist(t *testing.T) {
	tests := []struct {
		name      string
		intent    Intent
		question  string
		wantReply string
	}{
		{"sql", IntentSQL, "total revenue", "No data backend is configured."},
		{"chart", IntentChart, "plot revenue", "No data available to chart."},
		{"web", IntentWeb, "check my site", "Provide a URL to check, or ask me to search specific sites."},
		{"chat", IntentChat, "hello", "Mock Response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := newTestAgent(t, tt.intent, nil)

			state, err := agent.Run(context.Background(), "", tt.question)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			last := state.Messages[len(state.Messages)-1]
			if last.Role != RoleAssistant || last.Content != tt.wantReply {
				t.Errorf("reply = %q (%s), want %q", last.Content, last.Role, tt.wantReply)
			}

			var routed int
			for _, m := range state.Messages {
				if strings.HasPrefix(m.Content, "Router chose: ") {
					routed++
					if !strings.Contains(m.Content, string(tt.intent)) {
						t.Errorf("router message %q does not mention %q", m.Content, tt.intent)
					}
				}
			}
			if routed != 1 {
				t.Errorf("expected exactly one router decision, got %d", routed)
			}
		})
	}
}

func TestAgent_ThreadCarriesHistory(t *testing.T) {
	store, err := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	agent := newTestAgent(t, IntentChat, store, "first reply", "second reply")
	ctx := context.Background()

	s1, err := agent.Run(ctx, "thread-9", "hello")
	if err != nil {
		t.Fatal(err)
	}
	n1 := len(s1.Messages)

	s2, err := agent.Run(ctx, "thread-9", "and again")
	if err != nil {
		t.Fatal(err)
	}
	if len(s2.Messages) <= n1 {
		t.Errorf("second turn should extend the log: %d then %d", n1, len(s2.Messages))
	}
	if s2.Messages[0].Content != "hello" {
		t.Errorf("history lost, first message is %q", s2.Messages[0].Content)
	}
}

func TestAgent_FreshThreadStartsEmpty(t *testing.T) {
	store, err := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	agent := newTestAgent(t, IntentChat, store)
	ctx := context.Background()

	if _, err := agent.Run(ctx, "a", "one"); err != nil {
		t.Fatal(err)
	}
	s, err := agent.Run(ctx, "b", "two")
	if err != nil {
		t.Fatal(err)
	}
	if s.Messages[0].Content != "two" {
		t.Errorf("threads must not share history, got %q", s.Messages[0].Content)
	}
}
