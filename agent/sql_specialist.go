package agent

import (
	"context"
	"fmt"
	"strings"

	"susan/datasource"
)

// SQLSpecialist turns a natural-language question into a single safe SELECT,
// runs it against the configured backend and reports a capped preview. When
// a TableAgent is attached the whole question is delegated to its tool loop
// instead.
type SQLSpecialist struct {
	planner     *Planner
	backend     datasource.Backend
	tableAgent  *TableAgent
	previewRows int
	logFunc     func(string)
}

func NewSQLSpecialist(planner *Planner, backend datasource.Backend, previewRows int, logFunc func(string)) *SQLSpecialist {
	if previewRows <= 0 {
		previewRows = 10
	}
	if logFunc == nil {
		logFunc = func(string) {}
	}
	return &SQLSpecialist{
		planner:     planner,
		backend:     backend,
		previewRows: previewRows,
		logFunc:     logFunc,
	}
}

// SetTableAgent switches the specialist into delegate mode.
func (s *SQLSpecialist) SetTableAgent(ta *TableAgent) { s.tableAgent = ta }

func (s *SQLSpecialist) Answer(ctx context.Context, state *State) *State {
	if s.tableAgent != nil {
		content, err := s.tableAgent.Run(ctx, state.UserInput)
		if err != nil {
			s.logFunc(fmt.Sprintf("[SQL] Table agent failed: %v", err))
			state.AddMessage(RoleAssistant, fmt.Sprintf("Table agent error: %v", err))
			return state
		}
		state.AddMessage(RoleAssistant, content)
		return state
	}

	if s.backend == nil || !s.backend.Ready() {
		state.AddMessage(RoleAssistant, "No data backend is configured.")
		return state
	}

	schemaHint := `{"sql": "one SELECT statement", "columns": ["expected output columns"], "explanation": "1-2 lines"}`
	task := fmt.Sprintf("Write a single read-only SELECT query answering: %s%s",
		state.UserInput, s.schemaContext())

	plan, err := s.planner.PlanJSON(ctx, task, schemaHint)
	if err != nil {
		state.AddMessage(RoleAssistant, fmt.Sprintf("Planner error: %v", err))
		return state
	}

	query, _ := plan["sql"].(string)
	query = strings.TrimSpace(query)
	if !IsSelectOnly(query) {
		s.logFunc(fmt.Sprintf("[SQL] Rejected unsafe query: %.200s", query))
		state.AddMessage(RoleAssistant, "I couldn't produce a safe SELECT. Please rephrase your data request.")
		return state
	}

	s.logFunc(fmt.Sprintf("[SQL] Executing: %s", query))
	table, err := s.backend.RunSelect(ctx, query)
	if err != nil {
		s.logFunc(fmt.Sprintf("[SQL] Execution failed: %v", err))
		state.AddMessage(RoleAssistant, fmt.Sprintf("SQL error: %v", err))
		return state
	}

	state.Result = table
	explanation, _ := plan["explanation"].(string)
	state.AddMessage(RoleAssistant, fmt.Sprintf(
		"SQL executed. Columns: %s\nReason: %s\nTop rows:\n%s",
		strings.Join(table.Columns, ", "), explanation, table.Markdown(s.previewRows)))
	return state
}

// schemaContext tells the planner what it is querying: the default table for
// file-backed sources, or just the dialect for remote databases.
func (s *SQLSpecialist) schemaContext() string {
	if name := s.backend.TableName(); name != "" {
		return fmt.Sprintf("\nQuery the table %q (%s backend).", name, s.backend.Kind())
	}
	return fmt.Sprintf("\nTarget is a %s database.", s.backend.Kind())
}
