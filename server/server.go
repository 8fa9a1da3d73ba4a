package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"

	"susan/agent"
	"susan/config"
	"susan/datasource"
)

const responseRowCap = 200

// ModelFactory builds a chat model for one request.
type ModelFactory func(ctx context.Context) (model.ChatModel, error)

// Server exposes the agent over HTTP. Each /ask request may point at its
// own data source, so the dispatch graph is assembled per request. The chat
// model is also constructed per request: table-agent mode binds tools onto
// its model, and concurrent turns must never see each other's bindings.
type Server struct {
	cfg         config.Config
	newModel    ModelFactory
	checkpoints *agent.CheckpointStore
	logFunc     func(string)
}

func New(cfg config.Config, newModel ModelFactory, checkpoints *agent.CheckpointStore, logFunc func(string)) *Server {
	if logFunc == nil {
		logFunc = func(string) {}
	}
	return &Server{cfg: cfg, newModel: newModel, checkpoints: checkpoints, logFunc: logFunc}
}

// AskRequest is one question plus an optional data source description.
// When no source fields are set the configured default database is used.
type AskRequest struct {
	Question   string            `json:"question"`
	ThreadID   string            `json:"thread_id,omitempty"`
	Source     string            `json:"source,omitempty"`
	DBURL      string            `json:"db_url,omitempty"`
	CSV        string            `json:"csv,omitempty"`
	Excel      string            `json:"excel,omitempty"`
	Sheet      string            `json:"sheet,omitempty"`
	DuckFiles  map[string]string `json:"duck_files,omitempty"`
	Table      string            `json:"table,omitempty"`
	TableAgent bool              `json:"table_agent,omitempty"`
}

type AskResponse struct {
	Messages  []agent.Message  `json:"messages"`
	Columns   []string         `json:"columns,omitempty"`
	Table     []map[string]any `json:"table,omitempty"`
	ChartSpec *agent.ChartSpec `json:"chart_spec,omitempty"`
	ChartPath string           `json:"chart_path,omitempty"`
}

type WebCheckRequest struct {
	Question string   `json:"question"`
	URLs     []string `json:"urls,omitempty"`
}

type WebCheckResponse struct {
	Messages   []agent.Message `json:"messages"`
	WebSummary string          `json:"web_summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/web-check", s.handleWebCheck)
	mux.HandleFunc("/healthz", s.handleHealth)
	return withCORS(mux)
}

// ListenAndServe blocks serving the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logFunc(fmt.Sprintf("[SERVER] Listening on %s", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{"POST only"})
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{"question is required"})
		return
	}

	backend, err := s.openBackend(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	if c, ok := backend.(interface{ Close() error }); ok {
		defer c.Close()
	}

	chatModel, err := s.newModel(r.Context())
	if err != nil {
		s.logFunc(fmt.Sprintf("[SERVER] Failed to create chat model: %v", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
		return
	}

	ag, err := s.buildAgent(r.Context(), chatModel, backend, req.TableAgent)
	if err != nil {
		s.logFunc(fmt.Sprintf("[SERVER] Failed to build agent: %v", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
		return
	}

	state, err := ag.Run(r.Context(), req.ThreadID, req.Question)
	if err != nil {
		s.logFunc(fmt.Sprintf("[SERVER] Run failed: %v", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
		return
	}

	resp := AskResponse{
		Messages:  state.Messages,
		ChartSpec: state.ChartSpec,
		ChartPath: state.ChartPath,
	}
	if state.Result != nil {
		resp.Columns = state.Result.Columns
		resp.Table = state.Result.Records(responseRowCap)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWebCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{"POST only"})
		return
	}

	var req WebCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	input := req.Question
	for _, u := range req.URLs {
		input += " " + u
	}

	chatModel, err := s.newModel(r.Context())
	if err != nil {
		s.logFunc(fmt.Sprintf("[SERVER] Failed to create chat model: %v", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
		return
	}

	planner := agent.NewPlanner(chatModel, s.logFunc)
	checker := agent.NewWebChecker(planner,
		time.Duration(s.cfg.FetchTimeoutSec)*time.Second, s.cfg.UserAgent, s.logFunc)

	state := checker.Answer(r.Context(), agent.NewState(input))
	writeJSON(w, http.StatusOK, WebCheckResponse{
		Messages:   state.Messages,
		WebSummary: state.WebSummary,
	})
}

// openBackend resolves the request's data source, defaulting to the
// configured database when the request names none.
func (s *Server) openBackend(req AskRequest) (datasource.Backend, error) {
	opts := datasource.Options{
		Source:    req.Source,
		DBURL:     req.DBURL,
		CSV:       req.CSV,
		Excel:     req.Excel,
		Sheet:     req.Sheet,
		DuckFiles: req.DuckFiles,
		Table:     req.Table,
	}
	if opts.Source == "" && opts.DBURL == "" && opts.CSV == "" &&
		opts.Excel == "" && len(opts.DuckFiles) == 0 {
		opts.DBURL = s.cfg.DBURL
	}
	return datasource.Open(opts, s.logFunc)
}

func (s *Server) buildAgent(ctx context.Context, chatModel model.ChatModel, backend datasource.Backend, useTableAgent bool) (*agent.Agent, error) {
	planner := agent.NewPlanner(chatModel, s.logFunc)

	sqlSpec := agent.NewSQLSpecialist(planner, backend, s.cfg.MaxPreviewRows, s.logFunc)
	if useTableAgent {
		ta, err := agent.NewTableAgent(ctx, chatModel, backend, s.logFunc)
		if err != nil {
			return nil, fmt.Errorf("failed to build table agent: %v", err)
		}
		sqlSpec.SetTableAgent(ta)
	}

	router := agent.NewRouter(agent.NewLLMClassifier(planner), s.logFunc)
	chart := agent.NewChartSpecialist(planner, sqlSpec, s.cfg.ArtifactsDir, s.logFunc)
	web := agent.NewWebChecker(planner,
		time.Duration(s.cfg.FetchTimeoutSec)*time.Second, s.cfg.UserAgent, s.logFunc)
	chat := agent.NewChatFallback(planner, s.logFunc)

	return agent.New(ctx, router, sqlSpec, chart, web, chat, s.checkpoints, s.logFunc)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
