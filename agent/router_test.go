package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fixedClassifier struct {
	intent Intent
	note   string
	err    error
}

func (f fixedClassifier) Classify(ctx context.Context, text string) (Intent, string, error) {
	return f.intent, f.note, f.err
}

func TestLLMClassifier(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Intent
	}{
		{"sql", `{"intent":"sql","note":"asks about revenue"}`, IntentSQL},
		{"chart", `{"intent":"chart","note":"wants a plot"}`, IntentChart},
		{"web", `{"intent":"web","note":"has a link"}`, IntentWeb},
		{"chat", `{"intent":"chat","note":"small talk"}`, IntentChat},
		{"uppercase", `{"intent":"SQL","note":""}`, IntentSQL},
		{"unknown label", `{"intent":"banana","note":""}`, IntentChat},
		{"no json at all", "sorry, no idea", IntentChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockChatModel{Responses: []string{tt.response}}
			c := NewLLMClassifier(NewPlanner(mock, nil))

			intent, _, err := c.Classify(context.Background(), "whatever")
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if intent != tt.want {
				t.Errorf("intent = %q, want %q", intent, tt.want)
			}
		})
	}
}

func TestRouter_RecordsDecision(t *testing.T) {
	r := NewRouter(fixedClassifier{intent: IntentSQL, note: "data question"}, nil)
	state := r.Route(context.Background(), NewState("total revenue?"))

	if state.Intent != IntentSQL {
		t.Errorf("intent = %q, want sql", state.Intent)
	}
	if len(state.Messages) != 1 || state.Messages[0].Role != RoleSystem {
		t.Fatalf("expected one system message, got %v", state.Messages)
	}
	if !strings.Contains(state.Messages[0].Content, "Router chose: sql (data question)") {
		t.Errorf("unexpected router message: %q", state.Messages[0].Content)
	}
}

func TestRouter_ClassifierErrorDefaultsToChat(t *testing.T) {
	r := NewRouter(fixedClassifier{err: errors.New("boom")}, nil)
	state := r.Route(context.Background(), NewState("hi"))

	if state.Intent != IntentChat {
		t.Errorf("classifier failure should route to chat, got %q", state.Intent)
	}
}

func TestRouter_InvalidIntentDefaultsToChat(t *testing.T) {
	r := NewRouter(fixedClassifier{intent: Intent("email")}, nil)
	state := r.Route(context.Background(), NewState("hi"))

	if state.Intent != IntentChat {
		t.Errorf("invalid intent should route to chat, got %q", state.Intent)
	}
}
