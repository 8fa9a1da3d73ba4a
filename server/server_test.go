package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"susan/config"
	"susan/datasource"
)

type scriptedModel struct {
	responses []string
	calls     int
	bound     []*schema.ToolInfo
}

func (m *scriptedModel) BindTools(tools []*schema.ToolInfo) error {
	m.bound = tools
	return nil
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.calls++
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return &schema.Message{Role: schema.Assistant, Content: m.responses[idx]}, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func newTestServer(t *testing.T, responses ...string) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.DBURL = filepath.Join(t.TempDir(), "demo.db")
	cfg.ArtifactsDir = t.TempDir()
	if err := datasource.InitDemoDB(cfg.DBURL); err != nil {
		t.Fatalf("InitDemoDB failed: %v", err)
	}
	if len(responses) == 0 {
		responses = []string{`{"intent":"chat","note":"default"}`, "hi"}
	}
	factory := func(ctx context.Context) (model.ChatModel, error) {
		return &scriptedModel{responses: responses}, nil
	}
	return New(cfg, factory, nil, nil)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAsk_SQLQuestion(t *testing.T) {
	srv := newTestServer(t,
		`{"intent":"sql","note":"asks about sales"}`,
		`{"sql":"SELECT customer, SUM(qty*unit_price) AS revenue FROM sales GROUP BY customer ORDER BY revenue DESC","columns":["customer","revenue"],"explanation":"revenue per customer"}`,
	)

	rec := postJSON(t, srv.Handler(), "/ask", AskRequest{Question: "revenue by customer?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp AskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(resp.Columns) != 2 || resp.Columns[0] != "customer" {
		t.Errorf("unexpected columns: %v", resp.Columns)
	}
	if len(resp.Table) != 4 {
		t.Errorf("expected 4 customers, got %d", len(resp.Table))
	}
	if len(resp.Messages) == 0 {
		t.Fatal("expected messages in response")
	}
	last := resp.Messages[len(resp.Messages)-1].Content
	if !strings.Contains(last, "SQL executed") {
		t.Errorf("unexpected final message: %q", last)
	}
}

func TestAsk_ChatQuestion(t *testing.T) {
	srv := newTestServer(t,
		`{"intent":"chat","note":"small talk"}`,
		"Hello! How can I help?",
	)

	rec := postJSON(t, srv.Handler(), "/ask", AskRequest{Question: "hi susan"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp AskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Table != nil || resp.ChartSpec != nil {
		t.Error("chat answers carry no table or chart")
	}
	if resp.Messages[len(resp.Messages)-1].Content != "Hello! How can I help?" {
		t.Errorf("unexpected reply: %v", resp.Messages)
	}
}

func TestAsk_CSVSource(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "m.csv")
	if err := os.WriteFile(csvPath, []byte("month,revenue\nJan,100\nFeb,120\n"), 0644); err != nil {
		t.Fatal(err)
	}

	srv := newTestServer(t,
		`{"intent":"sql","note":"data"}`,
		`{"sql":"SELECT * FROM data","columns":["month","revenue"],"explanation":"all rows"}`,
	)

	rec := postJSON(t, srv.Handler(), "/ask", AskRequest{Question: "show it", CSV: csvPath})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp AskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Table) != 2 {
		t.Errorf("expected 2 rows, got %d", len(resp.Table))
	}
}

func TestAsk_TableAgentModelIsolation(t *testing.T) {
	cfg := config.Default()
	cfg.DBURL = filepath.Join(t.TempDir(), "demo.db")
	if err := datasource.InitDemoDB(cfg.DBURL); err != nil {
		t.Fatalf("InitDemoDB failed: %v", err)
	}

	models := []*scriptedModel{
		{responses: []string{`{"intent":"sql","note":"data question"}`, "There are 7 orders."}},
		{responses: []string{`{"intent":"chat","note":"small talk"}`, "hi there"}},
	}
	var created int
	factory := func(ctx context.Context) (model.ChatModel, error) {
		m := models[created]
		created++
		return m, nil
	}
	srv := New(cfg, factory, nil, nil)
	h := srv.Handler()

	rec := postJSON(t, h, "/ask", AskRequest{Question: "how many orders?", TableAgent: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("table-agent request: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec2 := postJSON(t, h, "/ask", AskRequest{Question: "hi susan"})
	if rec2.Code != http.StatusOK {
		t.Fatalf("follow-up request: status = %d, body = %s", rec2.Code, rec2.Body.String())
	}

	// every request runs on its own model; tool bindings must not leak
	if created != 2 {
		t.Errorf("expected one model per request, got %d", created)
	}
	if models[0].bound == nil {
		t.Error("table-agent request should bind its tool onto its own model")
	}
	if models[1].bound != nil {
		t.Error("tool bindings leaked into a later request's model")
	}

	var resp AskResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Messages[len(resp.Messages)-1].Content != "hi there" {
		t.Errorf("follow-up reply affected: %v", resp.Messages)
	}
}

func TestAsk_BadRequests(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := postJSON(t, h, "/ask", AskRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing question: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/ask", nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, req)
	if getRec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /ask: status = %d", getRec.Code)
	}

	raw := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader("{not json"))
	rawRec := httptest.NewRecorder()
	h.ServeHTTP(rawRec, raw)
	if rawRec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d", rawRec.Code)
	}
}

func TestWebCheck_NoURL(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv.Handler(), "/web-check", WebCheckRequest{Question: "anything new?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp WebCheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.WebSummary != "" {
		t.Error("no summary expected without URLs")
	}
	if resp.Messages[len(resp.Messages)-1].Content != "Provide a URL to check, or ask me to search specific sites." {
		t.Errorf("unexpected reply: %v", resp.Messages)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
