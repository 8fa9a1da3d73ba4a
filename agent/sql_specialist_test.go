package agent

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"susan/datasource"
)

func demoBackend(t *testing.T) datasource.Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.db")
	if err := datasource.InitDemoDB(path); err != nil {
		t.Fatalf("InitDemoDB failed: %v", err)
	}
	b, err := datasource.NewDatabaseBackend(path)
	if err != nil {
		t.Fatalf("NewDatabaseBackend failed: %v", err)
	}
	return b
}

func lastMessage(t *testing.T, state *State) string {
	t.Helper()
	if len(state.Messages) == 0 {
		t.Fatal("no messages recorded")
	}
	return state.Messages[len(state.Messages)-1].Content
}

func TestSQLSpecialist_HappyPath(t *testing.T) {
	mock := &MockChatModel{Responses: []string{
		`{"sql":"SELECT customer, qty FROM sales ORDER BY id","columns":["customer","qty"],"explanation":"all orders"}`,
	}}
	s := NewSQLSpecialist(NewPlanner(mock, nil), demoBackend(t), 10, nil)

	state := s.Answer(context.Background(), NewState("show all orders"))

	if state.Result == nil || len(state.Result.Rows) != 7 {
		t.Fatalf("expected 7 result rows, got %v", state.Result)
	}
	msg := lastMessage(t, state)
	if !strings.Contains(msg, "SQL executed") || !strings.Contains(msg, "all orders") {
		t.Errorf("unexpected reply: %q", msg)
	}
	if !strings.Contains(msg, "| Acme Corp |") {
		t.Errorf("expected markdown preview in reply: %q", msg)
	}
}

func TestSQLSpecialist_UnsafePlanRefused(t *testing.T) {
	mock := &MockChatModel{Responses: []string{`{"sql":"DROP TABLE sales"}`}}
	s := NewSQLSpecialist(NewPlanner(mock, nil), demoBackend(t), 10, nil)

	state := s.Answer(context.Background(), NewState("delete everything please"))

	if state.Result != nil {
		t.Error("unsafe query must not produce a result")
	}
	if lastMessage(t, state) != "I couldn't produce a safe SELECT. Please rephrase your data request." {
		t.Errorf("unexpected reply: %q", lastMessage(t, state))
	}
}

func TestSQLSpecialist_ExecutionError(t *testing.T) {
	mock := &MockChatModel{Responses: []string{`{"sql":"SELECT * FROM missing_table"}`}}
	s := NewSQLSpecialist(NewPlanner(mock, nil), demoBackend(t), 10, nil)

	state := s.Answer(context.Background(), NewState("query a missing table"))

	if state.Result != nil {
		t.Error("failed query must not set a result")
	}
	if !strings.HasPrefix(lastMessage(t, state), "SQL error:") {
		t.Errorf("expected SQL error reply, got %q", lastMessage(t, state))
	}
}

func TestSQLSpecialist_NoBackend(t *testing.T) {
	mock := &MockChatModel{}
	s := NewSQLSpecialist(NewPlanner(mock, nil), nil, 10, nil)

	state := s.Answer(context.Background(), NewState("anything"))

	if lastMessage(t, state) != "No data backend is configured." {
		t.Errorf("unexpected reply: %q", lastMessage(t, state))
	}
	if mock.Calls != 0 {
		t.Error("planner must not be called without a backend")
	}
}

func TestSQLSpecialist_NoJSONPlanRefused(t *testing.T) {
	mock := &MockChatModel{Responses: []string{"I would just look at the data manually."}}
	s := NewSQLSpecialist(NewPlanner(mock, nil), demoBackend(t), 10, nil)

	state := s.Answer(context.Background(), NewState("total revenue"))

	if lastMessage(t, state) != "I couldn't produce a safe SELECT. Please rephrase your data request." {
		t.Errorf("unexpected reply: %q", lastMessage(t, state))
	}
}
